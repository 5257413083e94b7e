package database

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"jobportal/models"
)

const experimentColumns = "id, uid, label, host, status, created, updated"

func scanExperiment(row interface{ Scan(...any) error }) (*models.Experiment, error) {
	var (
		e      models.Experiment
		status int
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.Label, &e.Host, &status, &e.Created, &e.Updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMissing
		}
		return nil, err
	}
	s, err := models.AsStatus(status)
	if err != nil {
		return nil, fmt.Errorf("experiment %d: %w", e.ID, err)
	}
	e.Status = s
	return &e, nil
}

func (q *Queries) listExperiments(ctx context.Context, query string, args ...any) ([]models.Experiment, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Experiment
	for rows.Next() {
		e, err := scanExperiment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// NewErrInvalidStateChanging describes a rejected transition.
func NewErrInvalidStateChanging(from, to models.Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStateChanging, from, to)
}

// CreateExperiment inserts a SUBMITTED experiment owned by uid.
func (q *Queries) CreateExperiment(ctx context.Context, uid int64, label, host string, now time.Time) (int64, error) {
	res, err := q.q.ExecContext(ctx,
		"INSERT INTO experiments (uid, label, host, status, created, updated) VALUES (?, ?, ?, ?, ?, ?)",
		uid, label, host, int(models.Submitted), now.UTC(), now.UTC())
	if err != nil {
		return 0, asConflict(err)
	}
	return res.LastInsertId()
}

// GetExperiment retrieves an experiment by ID
func (q *Queries) GetExperiment(ctx context.Context, eid int64) (*models.Experiment, error) {
	return scanExperiment(q.q.QueryRowContext(ctx,
		"SELECT "+experimentColumns+" FROM experiments WHERE id = ?", eid))
}

// ListExperimentsByUser returns the user's experiments, newest first.
func (q *Queries) ListExperimentsByUser(ctx context.Context, uid int64) ([]models.Experiment, error) {
	return q.listExperiments(ctx,
		"SELECT "+experimentColumns+" FROM experiments WHERE uid = ? ORDER BY created DESC, id DESC", uid)
}

// ListExperimentsCreatedBefore returns experiments created strictly before cutoff.
func (q *Queries) ListExperimentsCreatedBefore(ctx context.Context, cutoff time.Time) ([]models.Experiment, error) {
	all, err := q.listExperiments(ctx, "SELECT "+experimentColumns+" FROM experiments ORDER BY id")
	if err != nil {
		return nil, err
	}
	// compared in Go: stored timestamps are text and fractional seconds vary in width
	var out []models.Experiment
	for _, e := range all {
		if e.Created.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out, nil
}

// claimBatchSize bounds the bind variables of one read-back query, well under SQLite's limit.
var claimBatchSize = 500

// ClaimSubmitted moves every SUBMITTED experiment to QUEUED in one statement and returns
// the claimed experiments, newest first. Run it inside WithTx so the claim and the reads
// that follow observe the same snapshot.
func (q *Queries) ClaimSubmitted(ctx context.Context, now time.Time) ([]models.Experiment, error) {
	rows, err := q.q.QueryContext(ctx,
		"UPDATE experiments SET status = ?, updated = ? WHERE status = ? RETURNING id",
		int(models.Queued), now.UTC(), int(models.Submitted))
	if err != nil {
		return nil, err
	}
	var ids []any
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	claimed := make([]models.Experiment, 0, len(ids))
	for len(ids) > 0 {
		n := min(len(ids), claimBatchSize)
		batch, err := q.listExperiments(ctx,
			"SELECT "+experimentColumns+" FROM experiments WHERE id IN ("+placeholders(n)+")", ids[:n]...)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, batch...)
		ids = ids[n:]
	}
	slices.SortFunc(claimed, func(a, b models.Experiment) int {
		if c := b.Created.Compare(a.Created); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return claimed, nil
}

// SetStatus moves the experiment to next if its current status allows it.
// It returns ErrMissing for unknown experiments and ErrInvalidStateChanging otherwise.
func (q *Queries) SetStatus(ctx context.Context, eid int64, next models.Status, now time.Time) (*models.Experiment, error) {
	e, err := q.GetExperiment(ctx, eid)
	if err != nil {
		return nil, err
	}
	if !e.Status.CanTransitionTo(next) {
		return nil, NewErrInvalidStateChanging(e.Status, next)
	}

	res, err := q.q.ExecContext(ctx,
		"UPDATE experiments SET status = ?, updated = ? WHERE id = ? AND status = ?",
		int(next), now.UTC(), eid, int(e.Status))
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// someone else moved it between the read and the write
		return nil, NewErrInvalidStateChanging(e.Status, next)
	}

	e.Status = next
	e.Updated = now.UTC()
	return e, nil
}
