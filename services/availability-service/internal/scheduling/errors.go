package scheduling

import (
	"errors"
	"fmt"

	"github.com/servicehomie/platform/services/availability-service/internal/availability"
)

var (
	ErrOwnerRequired     = errors.New("owner id is required")
	ErrStaleOverwrite    = errors.New("availability was changed by another session")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid booking status transition")
	ErrServiceInactive   = errors.New("service is not bookable")
	ErrInvalidInput      = errors.New("invalid input")
)

// PersistenceError reports a failed store operation. It is never retried here.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// passthrough are errors a store may return that already carry meaning for callers.
var passthrough = []error{
	ErrOwnerRequired, ErrStaleOverwrite, ErrNotFound, ErrInvalidTransition, ErrServiceInactive, ErrInvalidInput,
	availability.ErrInvalidSlot, availability.ErrSlotConflict, availability.ErrInvalidWindow,
	availability.ErrInvalidWeekday, availability.ErrWindowIndex, availability.ErrWindowField, availability.ErrInvalidDate,
}

func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	for _, target := range passthrough {
		if errors.Is(err, target) {
			return err
		}
	}
	return &PersistenceError{Op: op, Err: err}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
