// Package auth holds the credential store: registration, login tokens and approval.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"jobportal/database"
	"jobportal/logger"
	"jobportal/models"
	"jobportal/notify"
)

var (
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrDuplicateGroup     = errors.New("group already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("must be logged in")
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
)

// Form fields that are never kept as user settings.
var bookkeepingFields = map[string]bool{
	"email":            true,
	"password":         true,
	"confirm-password": true,
	"remember":         true,
	"token":            true,
}

// Options configures a Service.
type Options struct {
	TokenTTL time.Duration
	// PublicURL prefixes the approval link sent to administrators. It ends with a slash.
	PublicURL string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service implements registration, login and approval.
type Service struct {
	db        *database.DB
	notifier  notify.Notifier
	ttl       time.Duration
	publicURL string
	now       func() time.Time
}

// NewService returns a Service backed by db.
func NewService(db *database.DB, notifier notify.Notifier, opt Options) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if opt.TokenTTL <= 0 {
		opt.TokenTTL = 24 * time.Hour
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Service{
		db:        db,
		notifier:  notifier,
		ttl:       opt.TokenTTL,
		publicURL: opt.PublicURL,
		now:       opt.Now,
	}
}

// FilterSettings drops credential and form bookkeeping fields.
func FilterSettings(form map[string]string) map[string]string {
	out := make(map[string]string, len(form))
	for k, v := range form {
		if !bookkeepingFields[k] {
			out[k] = v
		}
	}
	return out
}

// Register creates an unapproved user and returns its id and a fresh token.
// Administrators are told about the new account in the background.
func (s *Service) Register(ctx context.Context, email, password string, settings map[string]string) (int64, string, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return 0, "", fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, "", fmt.Errorf("hash password: %w", err)
	}
	token, err := NewToken(tokenBytes)
	if err != nil {
		return 0, "", err
	}

	kept := FilterSettings(settings)
	var uid int64
	err = s.db.WithTx(ctx, func(q *database.Queries) error {
		id, err := q.CreateUser(ctx, email, string(hashed), token, s.now())
		if err != nil {
			if errors.Is(err, database.ErrConflict) {
				return ErrDuplicateEmail
			}
			return err
		}
		uid = id
		return q.PutUserSettings(ctx, uid, kept)
	})
	if err != nil {
		return 0, "", err
	}

	logger.Info("Registered user %d (%s), awaiting approval", uid, email)
	s.notifier.NotifyAdmins(ctx, s.approvalMessage(uid, email, kept))
	return uid, token, nil
}

func (s *Service) approvalMessage(uid int64, email string, settings map[string]string) string {
	form := make(map[string]string, len(settings)+1)
	for k, v := range settings {
		form[k] = v
	}
	form["email"] = email
	buf, _ := json.Marshal(form)
	return fmt.Sprintf("Approve new account?%s\nClick %susers/approve/%d to approve", buf, s.publicURL, uid)
}

// Authenticate checks the password and issues a new token, invalidating the previous one.
// Unapproved users get a token too; it is not accepted until they are approved.
func (s *Service) Authenticate(ctx context.Context, email, password string) (string, error) {
	if email == "" || password == "" {
		return "", ErrInvalidCredentials
	}
	u, err := s.db.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, database.ErrMissing) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	token, err := NewToken(tokenBytes)
	if err != nil {
		return "", err
	}
	if err := s.db.SetToken(ctx, u.ID, token, s.now()); err != nil {
		return "", err
	}
	return token, nil
}

// IsAuthorized resolves token to the id of an approved user whose token is younger than the TTL.
func (s *Service) IsAuthorized(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, ErrUnauthenticated
	}
	u, err := s.db.GetUserByToken(ctx, token)
	if err != nil {
		if errors.Is(err, database.ErrMissing) {
			return 0, ErrUnauthenticated
		}
		return 0, err
	}
	if !u.Approved {
		return 0, ErrUnauthenticated
	}
	if s.now().Sub(u.TokenCreated) >= s.ttl {
		return 0, ErrUnauthenticated
	}
	return u.ID, nil
}

// Approve marks the user approved and tells them so. Approving twice is fine.
func (s *Service) Approve(ctx context.Context, uid int64) error {
	if err := s.setApproved(ctx, uid, true); err != nil {
		return err
	}
	logger.Info("Approved user %d", uid)

	u, err := s.db.GetUserByID(ctx, uid)
	if err != nil {
		logger.Warn("Approved user %d but could not load it for notification: %v", uid, err)
		return nil
	}
	s.notifier.NotifyUser(ctx, u.Email, "Your Image Processing Portal account has been approved.")
	return nil
}

// Deny revokes approval. Denying twice is fine.
func (s *Service) Deny(ctx context.Context, uid int64) error {
	if err := s.setApproved(ctx, uid, false); err != nil {
		return err
	}
	logger.Info("Denied user %d", uid)
	return nil
}

func (s *Service) setApproved(ctx context.Context, uid int64, approved bool) error {
	if err := s.db.SetApproved(ctx, uid, approved); err != nil {
		if errors.Is(err, database.ErrMissing) {
			return fmt.Errorf("%w: user %d", ErrNotFound, uid)
		}
		return err
	}
	return nil
}

// Users lists every account.
func (s *Service) Users(ctx context.Context) ([]models.User, error) {
	return s.db.GetAllUsers(ctx)
}

// User returns one account.
func (s *Service) User(ctx context.Context, uid int64) (*models.User, error) {
	u, err := s.db.GetUserByID(ctx, uid)
	if errors.Is(err, database.ErrMissing) {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, uid)
	}
	return u, err
}

// UserSettings returns the user's stored settings.
func (s *Service) UserSettings(ctx context.Context, uid int64) (map[string]string, error) {
	return s.db.UserSettings(ctx, uid)
}

// PutUserSettings upserts settings. Credential fields are ignored.
func (s *Service) PutUserSettings(ctx context.Context, uid int64, settings map[string]string) error {
	return s.db.WithTx(ctx, func(q *database.Queries) error {
		return q.PutUserSettings(ctx, uid, FilterSettings(settings))
	})
}

// CreateGroup adds a named group.
func (s *Service) CreateGroup(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("%w: group name is required", ErrInvalidInput)
	}
	gid, err := s.db.CreateGroup(ctx, name)
	if errors.Is(err, database.ErrConflict) {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateGroup, name)
	}
	return gid, err
}

// AddUserToGroup adds uid to gid. Existing memberships are left alone.
func (s *Service) AddUserToGroup(ctx context.Context, gid, uid int64) error {
	err := s.db.AddUserToGroup(ctx, gid, uid)
	if errors.Is(err, database.ErrMissing) {
		return fmt.Errorf("%w: group %d or user %d", ErrNotFound, gid, uid)
	}
	return err
}

// GroupsForUser lists the user's groups.
func (s *Service) GroupsForUser(ctx context.Context, uid int64) ([]models.Group, error) {
	return s.db.GroupsForUser(ctx, uid)
}
