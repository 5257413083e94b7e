package database

import (
	"context"

	"jobportal/models"
)

// CreateGroup inserts a named group. Duplicate names yield ErrConflict.
func (q *Queries) CreateGroup(ctx context.Context, name string) (int64, error) {
	res, err := q.q.ExecContext(ctx, "INSERT INTO portal_groups (name) VALUES (?)", name)
	if err != nil {
		return 0, asConflict(err)
	}
	return res.LastInsertId()
}

// AddUserToGroup adds a membership. Adding an existing member is a no-op;
// an unknown group or user yields ErrMissing.
func (q *Queries) AddUserToGroup(ctx context.Context, gid, uid int64) error {
	_, err := q.q.ExecContext(ctx,
		"INSERT INTO group_members (gid, uid) VALUES (?, ?) ON CONFLICT(gid, uid) DO NOTHING", gid, uid)
	return asConflict(err)
}

// GroupsForUser lists the groups the user belongs to.
func (q *Queries) GroupsForUser(ctx context.Context, uid int64) ([]models.Group, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT g.id, g.name
		FROM portal_groups g
		JOIN group_members m ON m.gid = g.id
		WHERE m.uid = ?
		ORDER BY g.name`, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
