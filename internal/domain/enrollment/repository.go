package enrollment

import (
	"context"
)

// Repository defines storage operations for enrollment records.
// Implementations live in infrastructure/persistence.
type Repository interface {
	// Create persists the record and bumps the run's student counter in the
	// same unit of work. The write is accepted only if the run's version
	// token still equals expectedRunVersion; otherwise
	// shared.ErrOptimisticLock is returned and nothing changes.
	// A duplicate (run, user) pair yields ErrAlreadyEnrolled.
	Create(ctx context.Context, rec *Record, expectedRunVersion int64) error

	// Exists reports whether a record exists for the (run, user) pair.
	Exists(ctx context.Context, runID, userID string) (bool, error)

	// GetByRunAndUser returns the record for the pair, or ErrNotEnrolled.
	GetByRunAndUser(ctx context.Context, runID, userID string) (*Record, error)

	// GetByRun returns all records of a run, oldest first.
	GetByRun(ctx context.Context, runID string) ([]*Record, error)

	// CountByRun returns the number of students associated with a run.
	CountByRun(ctx context.Context, runID string) (int, error)
}
