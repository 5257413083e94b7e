package experiments

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"

	"jobportal/database"
	"jobportal/logger"
	"jobportal/models"
	"jobportal/storage"
)

// DrainQueue claims every SUBMITTED experiment and returns their descriptors, newest first.
// A claimed experiment is never handed out again; a second drain without new submissions
// returns an empty slice.
func (s *Service) DrainQueue(ctx context.Context) ([]models.JobDescriptor, error) {
	var jobs []models.JobDescriptor
	err := s.db.WithTx(ctx, func(q *database.Queries) error {
		claimed, err := q.ClaimSubmitted(ctx, s.now())
		if err != nil {
			return err
		}
		jobs = make([]models.JobDescriptor, 0, len(claimed))
		for _, e := range claimed {
			settings, err := q.ExperimentSettings(ctx, e.ID)
			if err != nil {
				return err
			}
			app, name, desc, params := models.SplitSettings(settings)
			jobs = append(jobs, models.JobDescriptor{
				ID:                    e.ID,
				Owner:                 e.UserID,
				Host:                  e.Host,
				App:                   app,
				ExperimentName:        name,
				ExperimentDescription: desc,
				Params:                params,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("drain queue: %w", err)
	}

	if len(jobs) > 0 {
		logger.Info("Queued %d experiments", len(jobs))
	}
	return jobs, nil
}

// owned loads eid and checks that uid owns it.
func owned(ctx context.Context, q *database.Queries, uid, eid int64) (*models.Experiment, error) {
	e, err := q.GetExperiment(ctx, eid)
	if err != nil {
		return nil, translate(eid, err)
	}
	if e.UserID != uid {
		return nil, fmt.Errorf("%w: experiment %d, user %d", ErrOwnerMismatch, eid, uid)
	}
	return e, nil
}

// Complete stores the worker's outputs under completed/{eid} and marks the experiment
// COMPLETED. Only QUEUED experiments can complete. Outputs written by a call that fails
// are removed again.
func (s *Service) Complete(ctx context.Context, uid, eid int64, outputs []Upload) error {
	var written []string
	err := s.db.WithTx(ctx, func(q *database.Queries) error {
		e, err := owned(ctx, q, uid, eid)
		if err != nil {
			return err
		}
		if e.Status != models.Queued {
			return invalidTransition(eid, e.Status, models.Completed)
		}

		batch, err := sanitizeBatch(outputs)
		if err != nil {
			return err
		}
		for _, u := range batch {
			path, _, err := s.store(uid, eid, storage.Completed, u, 0)
			if err != nil {
				return err
			}
			written = append(written, path)
		}

		_, err = q.SetStatus(ctx, eid, models.Completed, s.now())
		return translate(eid, err)
	})
	if err != nil {
		for _, p := range written {
			if rmErr := s.layout.RemoveFile(p); rmErr != nil {
				logger.Error("Failed to remove output %s of experiment %d: %v", p, eid, rmErr)
			}
		}
		return err
	}

	logger.Info("Experiment %d completed with %d outputs", eid, len(written))
	s.notifyOwner(ctx, uid, fmt.Sprintf("Your experiment %d has completed.", eid))
	return nil
}

// Fail marks a SUBMITTED or QUEUED experiment FAILED. Terminal experiments are left alone.
func (s *Service) Fail(ctx context.Context, uid, eid int64) error {
	err := s.db.WithTx(ctx, func(q *database.Queries) error {
		if _, err := owned(ctx, q, uid, eid); err != nil {
			return err
		}
		_, err := q.SetStatus(ctx, eid, models.Failed, s.now())
		return translate(eid, err)
	})
	if err != nil {
		return err
	}

	logger.Info("Experiment %d failed", eid)
	s.notifyOwner(ctx, uid, fmt.Sprintf("Your experiment %d has failed.", eid))
	return nil
}

// InputFiles lists the names in submitted/{eid} for the worker.
func (s *Service) InputFiles(ctx context.Context, uid, eid int64) ([]string, error) {
	if _, err := owned(ctx, s.db.Queries, uid, eid); err != nil {
		return nil, err
	}
	return s.layout.List(uid, eid, storage.Submitted)
}

// OpenInput opens one input file for the worker.
func (s *Service) OpenInput(ctx context.Context, uid, eid int64, name string) (afero.File, error) {
	if _, err := owned(ctx, s.db.Queries, uid, eid); err != nil {
		return nil, err
	}
	f, err := s.layout.Open(uid, eid, storage.Submitted, name)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidName) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: input %q of experiment %d", ErrNotFound, name, eid)
		}
		return nil, err
	}
	return f, nil
}
