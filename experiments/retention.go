package experiments

import (
	"context"
	"fmt"
	"time"

	"jobportal/database"
	"jobportal/logger"
	"jobportal/storage"
)

// PurgeReport lists what a purge found, and removed when it was destructive.
type PurgeReport struct {
	Cutoff      time.Time `json:"cutoff"`
	Destructive bool      `json:"destructive"`
	Inputs      []string  `json:"inputs"`
	Outputs     []string  `json:"outputs"`
	Errors      []string  `json:"errors"`
}

// PurgeOlderThan finds input files of experiments created more than days ago and output
// files last modified more than days ago. In destructive mode they are deleted together
// with their rows. A file that cannot be removed is reported and the sweep goes on.
func (s *Service) PurgeOlderThan(ctx context.Context, days int, destructive bool) (*PurgeReport, error) {
	if days < 0 {
		return nil, fmt.Errorf("%w: days must not be negative", ErrInvalidArgument)
	}
	report := &PurgeReport{
		Cutoff:      s.now().Add(-time.Duration(days) * 24 * time.Hour),
		Destructive: destructive,
		Inputs:      []string{},
		Outputs:     []string{},
		Errors:      []string{},
	}

	old, err := s.db.ListExperimentsCreatedBefore(ctx, report.Cutoff)
	if err != nil {
		return nil, err
	}
	for _, e := range old {
		files, err := s.db.ExperimentFiles(ctx, e.ID)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("experiment %d: %v", e.ID, err))
			continue
		}
		for _, f := range files {
			report.Inputs = append(report.Inputs, f.Path)
			if !destructive {
				continue
			}
			if err := s.layout.RemoveFile(f.Path); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", f.Path, err))
				continue
			}
			if err := s.db.DeleteFile(ctx, f.ID); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", f.Path, err))
			}
		}
	}

	err = s.layout.WalkNamespace(storage.Completed, func(sf storage.StoredFile) error {
		if !sf.Info.ModTime().Before(report.Cutoff) {
			return nil
		}
		report.Outputs = append(report.Outputs, sf.Path)
		if destructive {
			if err := s.layout.RemoveFile(sf.Path); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", sf.Path, err))
			}
		}
		return nil
	})
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("walk outputs: %v", err))
	}

	verb := "Found"
	if destructive {
		verb = "Purged"
	}
	logger.Info("%s %d inputs and %d outputs older than %d days (%d errors)",
		verb, len(report.Inputs), len(report.Outputs), days, len(report.Errors))
	return report, nil
}

// DeleteInputs removes submitted/{eid} and the experiment's input rows, returning how many
// rows went. Deleting inputs that are already gone is fine.
func (s *Service) DeleteInputs(ctx context.Context, eid int64) (int64, error) {
	e, err := s.Get(ctx, eid)
	if err != nil {
		return 0, err
	}

	var n int64
	err = s.db.WithTx(ctx, func(q *database.Queries) error {
		removed, err := q.DeleteExperimentFiles(ctx, eid)
		if err != nil {
			return err
		}
		n = removed
		return s.layout.RemoveNamespace(e.UserID, eid, storage.Submitted)
	})
	if err != nil {
		return 0, err
	}

	logger.Info("Deleted %d inputs of experiment %d", n, eid)
	return n, nil
}
