package database

import (
	"context"

	"jobportal/models"
)

// CountFilesForUser counts distinct file rows reachable from the user's experiments.
func (q *Queries) CountFilesForUser(ctx context.Context, uid int64) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT f.id)
		FROM files f
		JOIN experiment_files ef ON ef.fid = f.id
		JOIN experiments e ON e.id = ef.eid
		WHERE e.uid = ?`, uid).Scan(&n)
	return n, err
}

// AddExperimentFile records a stored upload and attaches it to the experiment.
func (q *Queries) AddExperimentFile(ctx context.Context, eid int64, path string) (int64, error) {
	res, err := q.q.ExecContext(ctx, "INSERT INTO files (path) VALUES (?)", path)
	if err != nil {
		return 0, err
	}
	fid, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if _, err := q.q.ExecContext(ctx,
		"INSERT INTO experiment_files (eid, fid) VALUES (?, ?)", eid, fid); err != nil {
		return 0, asConflict(err)
	}
	return fid, nil
}

// ExperimentFiles lists the input files attached to the experiment.
func (q *Queries) ExperimentFiles(ctx context.Context, eid int64) ([]models.File, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT f.id, f.path
		FROM files f
		JOIN experiment_files ef ON ef.fid = f.id
		WHERE ef.eid = ?
		ORDER BY f.id`, eid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []models.File
	for rows.Next() {
		var f models.File
		if err := rows.Scan(&f.ID, &f.Path); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// DeleteFile removes a file row and its experiment mappings.
func (q *Queries) DeleteFile(ctx context.Context, fid int64) error {
	if _, err := q.q.ExecContext(ctx, "DELETE FROM experiment_files WHERE fid = ?", fid); err != nil {
		return err
	}
	_, err := q.q.ExecContext(ctx, "DELETE FROM files WHERE id = ?", fid)
	return err
}

// DeleteExperimentFiles removes every input file row of the experiment and returns how many went.
func (q *Queries) DeleteExperimentFiles(ctx context.Context, eid int64) (int64, error) {
	files, err := q.ExperimentFiles(ctx, eid)
	if err != nil {
		return 0, err
	}
	for _, f := range files {
		if err := q.DeleteFile(ctx, f.ID); err != nil {
			return 0, err
		}
	}
	return int64(len(files)), nil
}
