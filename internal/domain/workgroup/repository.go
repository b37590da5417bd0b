package workgroup

import (
	"context"
)

// Repository defines storage operations for workgroups.
// Implementations live in infrastructure/persistence.
type Repository interface {
	// Create persists a new workgroup with its initial member set.
	Create(ctx context.Context, wg *Workgroup) error

	// GetByID returns a workgroup by ID.
	// Returns ErrWorkgroupNotFound if the workgroup does not exist.
	GetByID(ctx context.Context, id string) (*Workgroup, error)

	// GetByRun returns all workgroups of a run, smallest id first.
	GetByRun(ctx context.Context, runID string) ([]*Workgroup, error)

	// FindByRunAndUser returns the workgroups of the run the user belongs to,
	// smallest id first. An empty slice means the user is in no workgroup for
	// the run.
	FindByRunAndUser(ctx context.Context, runID, userID string) ([]*Workgroup, error)

	// AddMembers persists new members of the workgroup. The write is accepted
	// only if the workgroup's version token still equals expectedVersion;
	// otherwise shared.ErrOptimisticLock is returned and nothing changes.
	AddMembers(ctx context.Context, wg *Workgroup, newMemberIDs []string, expectedVersion int64) error

	// CountByRun returns the number of workgroups in a run.
	CountByRun(ctx context.Context, runID string) (int, error)
}
