package run

import (
	"context"
)

// Repository defines the read-side operations of the run directory. The
// contended write, bumping the run's enrollment counter under its optimistic
// version token, happens inside the enrollment repository's transaction.
// Implementations live in infrastructure/persistence.
type Repository interface {
	// GetByCode returns a run by its runcode.
	// Returns ErrRunNotFound if no run matches.
	GetByCode(ctx context.Context, code Runcode) (*Run, error)

	// GetByID returns a run by internal ID.
	// Returns ErrRunNotFound if no run matches.
	GetByID(ctx context.Context, id string) (*Run, error)

	// GetByOwner returns runs owned by a teacher.
	GetByOwner(ctx context.Context, ownerID string) ([]*Run, error)

	// GetByStudent returns runs a student is associated with, newest first.
	GetByStudent(ctx context.Context, userID string) ([]*Run, error)
}

// StatsRepository maintains the per-run statistics read model.
// Treated as an external-collaborator write: failures are logged, not surfaced.
type StatsRepository interface {
	// Get returns the statistics for a run, or ErrRunNotFound.
	Get(ctx context.Context, runID string) (*Stats, error)

	// Upsert stores the statistics for a run.
	Upsert(ctx context.Context, stats *Stats) error
}
