package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrMissing is returned when a looked-up row does not exist.
	ErrMissing = errors.New("missing")
	// ErrConflict is returned when a unique constraint rejects a write.
	ErrConflict = errors.New("conflict")
	// ErrInvalidStateChanging is returned when an experiment cannot move to the requested status.
	ErrInvalidStateChanging = errors.New("cannot change experiment status")
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds every read and write. It runs either on the pool or inside a transaction.
type Queries struct {
	q querier
}

// DB is the portal's relational store.
type DB struct {
	*Queries
	sql *sql.DB
}

// Open opens the sqlite database and creates tables if they don't exist.
func Open(dataSourceName string) (*DB, error) {
	dsn := dataSourceName
	if strings.Contains(dsn, "?") {
		dsn += "&"
	} else {
		dsn += "?"
	}
	dsn += "_foreign_keys=on&_busy_timeout=5000"

	s, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// A single connection serialises writers and keeps :memory: databases alive.
	s.SetMaxOpenConns(1)
	s.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.PingContext(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("error pinging database: %w", err)
	}

	if err := createTables(ctx, s); err != nil {
		s.Close()
		return nil, err
	}
	return &DB{Queries: &Queries{q: s}, sql: s}, nil
}

// Close closes the underlying pool.
func (d *DB) Close() error {
	return d.sql.Close()
}

// Ping checks the connection.
func (d *DB) Ping(ctx context.Context) error {
	return d.sql.PingContext(ctx)
}

// WithTx runs fn in a transaction. fn must only use the Queries it is given.
func (d *DB) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&Queries{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func createTables(ctx context.Context, db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			token TEXT UNIQUE,
			token_created DATETIME,
			approved INTEGER NOT NULL DEFAULT 0,
			created DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS user_settings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uid INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			value TEXT NOT NULL,
			UNIQUE(uid, name)
		);`,
		`CREATE TABLE IF NOT EXISTS portal_groups (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		);`,
		`CREATE TABLE IF NOT EXISTS group_members (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			gid INTEGER NOT NULL REFERENCES portal_groups(id) ON DELETE CASCADE,
			uid INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			UNIQUE(gid, uid)
		);`,
		`CREATE TABLE IF NOT EXISTS experiments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uid INTEGER NOT NULL REFERENCES users(id),
			label TEXT NOT NULL DEFAULT '',
			host TEXT NOT NULL DEFAULT '',
			status INTEGER NOT NULL DEFAULT 0,
			created DATETIME NOT NULL,
			updated DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS experiment_settings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			eid INTEGER NOT NULL REFERENCES experiments(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			value TEXT NOT NULL,
			UNIQUE(eid, name)
		);`,
		`CREATE TABLE IF NOT EXISTS files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS experiment_files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			eid INTEGER NOT NULL REFERENCES experiments(id) ON DELETE CASCADE,
			fid INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_experiments_status ON experiments(status);`,
		`CREATE INDEX IF NOT EXISTS idx_experiments_uid ON experiments(uid);`,
		`CREATE INDEX IF NOT EXISTS idx_experiment_files_eid ON experiment_files(eid);`,
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("could not create tables: %w", err)
		}
	}
	return nil
}

// asConflict maps sqlite constraint violations onto the package errors.
func asConflict(err error) error {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return fmt.Errorf("%w: %s", ErrConflict, se.Error())
	case sqlite3.ErrConstraintForeignKey:
		return fmt.Errorf("%w: %s", ErrMissing, se.Error())
	}
	return err
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
