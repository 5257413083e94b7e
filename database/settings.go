package database

import (
	"context"
	"sort"
)

// PutUserSettings upserts each (name, value) pair for the user.
func (q *Queries) PutUserSettings(ctx context.Context, uid int64, settings map[string]string) error {
	return q.putSettings(ctx,
		`INSERT INTO user_settings (uid, name, value) VALUES (?, ?, ?)
		 ON CONFLICT(uid, name) DO UPDATE SET value = excluded.value`,
		uid, settings)
}

// UserSettings returns every setting stored for the user.
func (q *Queries) UserSettings(ctx context.Context, uid int64) (map[string]string, error) {
	return q.settings(ctx, "SELECT name, value FROM user_settings WHERE uid = ?", uid)
}

// PutExperimentSettings upserts each (name, value) pair for the experiment.
func (q *Queries) PutExperimentSettings(ctx context.Context, eid int64, settings map[string]string) error {
	return q.putSettings(ctx,
		`INSERT INTO experiment_settings (eid, name, value) VALUES (?, ?, ?)
		 ON CONFLICT(eid, name) DO UPDATE SET value = excluded.value`,
		eid, settings)
}

// ExperimentSettings returns every setting stored for the experiment.
func (q *Queries) ExperimentSettings(ctx context.Context, eid int64) (map[string]string, error) {
	return q.settings(ctx, "SELECT name, value FROM experiment_settings WHERE eid = ?", eid)
}

func (q *Queries) putSettings(ctx context.Context, stmt string, owner int64, settings map[string]string) error {
	// sorted so that failures are reproducible
	names := make([]string, 0, len(settings))
	for name := range settings {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := q.q.ExecContext(ctx, stmt, owner, name, settings[name]); err != nil {
			return asConflict(err)
		}
	}
	return nil
}

func (q *Queries) settings(ctx context.Context, query string, owner int64) (map[string]string, error) {
	rows, err := q.q.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, rows.Err()
}
