// Package experiments drives the experiment lifecycle.
//
// An experiment is SUBMITTED by a user, QUEUED when the worker drains the queue, and ends
// COMPLETED or FAILED. The status column is the only lifecycle authority; the directory
// layout in package storage carries the inputs and outputs.
package experiments

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"jobportal/database"
	"jobportal/logger"
	"jobportal/models"
	"jobportal/notify"
	"jobportal/storage"
)

// Limits are the per-user quota constants.
type Limits struct {
	MaxFilesPerUser int
	MaxFileSize     int64
}

// DefaultLimits are 50 files per user and 1 GiB per file.
var DefaultLimits = Limits{MaxFilesPerUser: 50, MaxFileSize: 1 << 30}

// Options configures a Service.
type Options struct {
	Limits Limits
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service owns experiment rows and their directories.
type Service struct {
	db       *database.DB
	layout   *storage.Layout
	notifier notify.Notifier
	limits   Limits
	now      func() time.Time
}

// NewService wires a Service. A zero Limits means DefaultLimits.
func NewService(db *database.DB, layout *storage.Layout, notifier notify.Notifier, opt Options) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if opt.Limits == (Limits{}) {
		opt.Limits = DefaultLimits
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Service{
		db:       db,
		layout:   layout,
		notifier: notifier,
		limits:   opt.Limits,
		now:      opt.Now,
	}
}

// Upload is one file of a submission or of a result set.
type Upload struct {
	// Filename is the client supplied name; it is sanitised before use.
	Filename string
	Open     func() (io.ReadCloser, error)
}

// Submission is what a user posts to create an experiment.
type Submission struct {
	Label    string
	Host     string
	Settings map[string]string
	Files    []Upload
}

// Fields of the submission form that are not experiment settings.
var nonSettingFields = map[string]bool{"token": true, "host": true, "label": true}

// Create stores a new SUBMITTED experiment with its settings and input files.
// Nothing is left behind on failure: the transaction is rolled back and the
// experiment's directories are removed.
func (s *Service) Create(ctx context.Context, uid int64, sub Submission) (int64, error) {
	settings := make(map[string]string, len(sub.Settings))
	for k, v := range sub.Settings {
		if !nonSettingFields[k] {
			settings[k] = v
		}
	}

	var (
		eid     int64
		hasDirs bool
	)
	err := s.db.WithTx(ctx, func(q *database.Queries) error {
		id, err := q.CreateExperiment(ctx, uid, sub.Label, sub.Host, s.now())
		if err != nil {
			return err
		}
		eid = id

		hasDirs = true
		if err := s.layout.Create(uid, eid); err != nil {
			return err
		}
		if err := q.PutExperimentSettings(ctx, eid, settings); err != nil {
			return err
		}
		return s.submitFiles(ctx, q, uid, eid, sub.Files)
	})
	if err != nil {
		if hasDirs {
			if rmErr := s.layout.Remove(uid, eid); rmErr != nil {
				logger.Error("Failed to clean up directories of rejected experiment %d: %v", eid, rmErr)
			}
		}
		return 0, err
	}

	logger.Info("User %d submitted experiment %d", uid, eid)
	s.notifier.NotifyAdmins(ctx, fmt.Sprintf("New experiment %d submitted by user %d", eid, uid))
	return eid, nil
}

type namedUpload struct {
	name string
	Upload
}

// sanitizeBatch drops uploads without a name and rejects names that are unusable or
// collide once sanitised.
func sanitizeBatch(uploads []Upload) ([]namedUpload, error) {
	out := make([]namedUpload, 0, len(uploads))
	seen := make(map[string]bool, len(uploads))
	for _, u := range uploads {
		if u.Filename == "" {
			continue
		}
		name := storage.SanitizeFilename(u.Filename)
		if name == "" {
			return nil, reject(ErrInvalidFilename, "The file name %q is not allowed", u.Filename)
		}
		if seen[name] {
			return nil, reject(ErrInvalidFilename, "The file name %q is used more than once", name)
		}
		seen[name] = true
		out = append(out, namedUpload{name: name, Upload: u})
	}
	return out, nil
}

// submitFiles enforces both quotas and records every stored input. The whole batch is
// rejected before anything is written when it would exceed the user's file quota.
func (s *Service) submitFiles(ctx context.Context, q *database.Queries, uid, eid int64, uploads []Upload) error {
	batch, err := sanitizeBatch(uploads)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	if limit := s.limits.MaxFilesPerUser; limit > 0 {
		current, err := q.CountFilesForUser(ctx, uid)
		if err != nil {
			return err
		}
		remaining := limit - current
		if remaining < 0 {
			remaining = 0
		}
		if len(batch) > remaining {
			return reject(ErrQuotaExceeded,
				"The %d files you tried to upload exceed the %d remaining files you have left in your quota",
				len(batch), remaining)
		}
	}

	for _, u := range batch {
		path, size, err := s.store(uid, eid, storage.Submitted, u, s.limits.MaxFileSize)
		if err != nil {
			return err
		}
		if s.limits.MaxFileSize > 0 && size > s.limits.MaxFileSize {
			if err := s.layout.RemoveFile(path); err != nil {
				logger.Error("Failed to remove oversize upload %s: %v", path, err)
			}
			return reject(ErrFileTooLarge, `The file "%s" exceeds the %s file size limit`,
				u.Filename, formatSize(s.limits.MaxFileSize))
		}
		if _, err := q.AddExperimentFile(ctx, eid, path); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) store(uid, eid int64, ns storage.Namespace, u namedUpload, limit int64) (string, int64, error) {
	rc, err := u.Open()
	if err != nil {
		return "", 0, fmt.Errorf("open upload %s: %w", u.name, err)
	}
	defer rc.Close()
	return s.layout.Save(uid, eid, ns, u.name, rc, limit)
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<30 && n%(1<<30) == 0:
		return fmt.Sprintf("%dGB", n>>30)
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%dMB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%dKB", n>>10)
	}
	return fmt.Sprintf("%d byte", n)
}

// Get returns one experiment.
func (s *Service) Get(ctx context.Context, eid int64) (*models.Experiment, error) {
	e, err := s.db.GetExperiment(ctx, eid)
	return e, translate(eid, err)
}

// ListForUser returns the user's experiments, newest first, with their settings, input
// names and the current content of their completed directory.
func (s *Service) ListForUser(ctx context.Context, uid int64) ([]models.ExperimentView, error) {
	exps, err := s.db.ListExperimentsByUser(ctx, uid)
	if err != nil {
		return nil, err
	}

	views := make([]models.ExperimentView, 0, len(exps))
	for _, e := range exps {
		settings, err := s.db.ExperimentSettings(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		files, err := s.db.ExperimentFiles(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		outputs, err := s.layout.List(uid, e.ID, storage.Completed)
		if err != nil {
			return nil, err
		}

		app, name, desc, params := models.SplitSettings(settings)
		inputs := make([]string, 0, len(files))
		for _, f := range files {
			inputs = append(inputs, filepath.Base(f.Path))
		}
		views = append(views, models.ExperimentView{
			ID:                    e.ID,
			Label:                 e.Label,
			Host:                  e.Host,
			Created:               e.Created,
			StatusCode:            e.Status,
			Status:                e.Status.String(),
			App:                   app,
			ExperimentName:        name,
			ExperimentDescription: desc,
			Params:                params,
			Inputs:                inputs,
			Outputs:               outputs,
		})
	}
	return views, nil
}

func (s *Service) notifyOwner(ctx context.Context, uid int64, message string) {
	u, err := s.db.GetUserByID(ctx, uid)
	if err != nil {
		logger.Warn("Cannot notify user %d: %v", uid, err)
		return
	}
	s.notifier.NotifyUser(ctx, u.Email, message)
}
