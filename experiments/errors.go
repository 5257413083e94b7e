package experiments

import (
	"errors"
	"fmt"

	"jobportal/database"
	"jobportal/models"
)

var (
	ErrNotFound          = errors.New("experiment not found")
	ErrOwnerMismatch     = errors.New("experiment does not belong to user")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrQuotaExceeded     = errors.New("file quota exceeded")
	ErrFileTooLarge      = errors.New("file too large")
	ErrInvalidFilename   = errors.New("invalid filename")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// rejection is an error whose message is meant for the submitting user.
// errors.Is matches it against its kind.
type rejection struct {
	kind error
	msg  string
}

func (r *rejection) Error() string { return r.msg }
func (r *rejection) Unwrap() error { return r.kind }

func reject(kind error, format string, args ...any) error {
	return &rejection{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// translate maps store errors onto this package's errors.
func translate(eid int64, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrMissing):
		return fmt.Errorf("%w: %d", ErrNotFound, eid)
	case errors.Is(err, database.ErrInvalidStateChanging):
		return fmt.Errorf("%w: experiment %d: %v", ErrInvalidTransition, eid, err)
	}
	return err
}

func invalidTransition(eid int64, from, to models.Status) error {
	return fmt.Errorf("%w: experiment %d is %s, cannot become %s", ErrInvalidTransition, eid, from, to)
}
