package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrJobExists is returned when creating a job whose id already exists;
	// jobs are write-once at creation and must never be silently overwritten
	ErrJobExists = errors.New("job already exists")

	// ErrStaleTransition is returned when a conditional status transition finds
	// the job no longer in the expected source status
	ErrStaleTransition = errors.New("stale job transition")

	// ErrUnknownFeature is returned for a feature with no pricing entry
	ErrUnknownFeature = errors.New("unknown feature")

	// ErrMalformedOutput is returned when the provider's response cannot be
	// parsed into the feature's result shape; terminal, never retried
	ErrMalformedOutput = errors.New("malformed provider output")

	// ErrWorkerUnreachable is returned when the worker hand-off was not
	// acknowledged within its deadline
	ErrWorkerUnreachable = errors.New("worker unreachable")
)

// InsufficientCreditsError reports a debit that observed too small a balance.
// The balance is left unchanged when this is returned.
type InsufficientCreditsError struct {
	Need int
	Have int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: need %d, have %d", e.Need, e.Have)
}
