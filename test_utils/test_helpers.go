package testutils

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/crypto/bcrypt"

	"jobportal/database"
	"jobportal/storage"
)

// TestPassword is the password of every user created by CreateTestUser.
const TestPassword = "correct horse battery staple"

// SetupTestDB opens an in-memory SQLite database that is closed when the test ends.
func SetupTestDB(t testing.TB) *database.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// SetupMemLayout returns an upload layout on an in-memory filesystem.
func SetupMemLayout() *storage.Layout {
	return storage.NewLayout(afero.NewMemMapFs(), "/uploads")
}

// SetupDiskLayout returns an upload layout under a temporary directory.
func SetupDiskLayout(t testing.TB) *storage.Layout {
	t.Helper()
	return storage.NewOsLayout(t.TempDir())
}

// CreateTestUser inserts a user holding token, issued at issued.
func CreateTestUser(t testing.TB, db *database.DB, email, token string, approved bool, issued time.Time) int64 {
	t.Helper()
	ctx := context.Background()

	hashed, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	uid, err := db.CreateUser(ctx, email, string(hashed), token, issued)
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	if approved {
		if err := db.SetApproved(ctx, uid, true); err != nil {
			t.Fatalf("approve user %s: %v", email, err)
		}
	}
	return uid
}

// CreateApprovedUser inserts an approved user with a token issued now and returns both.
func CreateApprovedUser(t testing.TB, db *database.DB, email string) (int64, string) {
	t.Helper()
	token := fmt.Sprintf("token-%s", email)
	return CreateTestUser(t, db, email, token, true, time.Now()), token
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock fixed at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Notification is one message captured by RecordingNotifier.
type Notification struct {
	To      string // "admins" for administrator broadcasts
	Message string
}

// RecordingNotifier captures notifications instead of sending them.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *RecordingNotifier) NotifyAdmins(_ context.Context, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Notification{To: "admins", Message: message})
}

func (r *RecordingNotifier) NotifyUser(_ context.Context, email, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Notification{To: email, Message: message})
}

// Sent returns a copy of everything captured so far.
func (r *RecordingNotifier) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent...)
}
