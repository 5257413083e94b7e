package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"jobportal/models"
)

const userColumns = "id, email, password, token, token_created, approved, created"

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var (
		u       models.User
		token   sql.NullString
		issued  sql.NullTime
		approve int
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Password, &token, &issued, &approve, &u.Created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMissing
		}
		return nil, err
	}
	u.Token = token.String
	if issued.Valid {
		u.TokenCreated = issued.Time
	}
	u.Approved = approve != 0
	return &u, nil
}

// CreateUser inserts an unapproved user holding a freshly issued token.
// It returns ErrConflict when the email is taken.
func (q *Queries) CreateUser(ctx context.Context, email, passwordHash, token string, now time.Time) (int64, error) {
	res, err := q.q.ExecContext(ctx,
		"INSERT INTO users (email, password, token, token_created, approved, created) VALUES (?, ?, ?, ?, 0, ?)",
		email, passwordHash, token, now.UTC(), now.UTC())
	if err != nil {
		return 0, asConflict(err)
	}
	return res.LastInsertId()
}

// GetUserByID retrieves a user by ID
func (q *Queries) GetUserByID(ctx context.Context, uid int64) (*models.User, error) {
	return scanUser(q.q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", uid))
}

// GetUserByEmail retrieves a user by email
func (q *Queries) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(q.q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email))
}

// GetUserByToken retrieves the user currently holding token.
func (q *Queries) GetUserByToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrMissing
	}
	return scanUser(q.q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE token = ?", token))
}

// SetToken replaces the user's token and restarts its lifetime.
func (q *Queries) SetToken(ctx context.Context, uid int64, token string, now time.Time) error {
	res, err := q.q.ExecContext(ctx,
		"UPDATE users SET token = ?, token_created = ? WHERE id = ?", token, now.UTC(), uid)
	if err != nil {
		return asConflict(err)
	}
	return expectOne(res, fmt.Sprintf("user %d", uid))
}

// SetApproved flips the approval flag. Setting the current value again is not an error.
func (q *Queries) SetApproved(ctx context.Context, uid int64, approved bool) error {
	v := 0
	if approved {
		v = 1
	}
	res, err := q.q.ExecContext(ctx, "UPDATE users SET approved = ? WHERE id = ?", v, uid)
	if err != nil {
		return err
	}
	return expectOne(res, fmt.Sprintf("user %d", uid))
}

// GetAllUsers retrieves all users ordered by id.
func (q *Queries) GetAllUsers(ctx context.Context) ([]models.User, error) {
	rows, err := q.q.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrMissing, what)
	}
	return nil
}
