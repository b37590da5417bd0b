package attendance

import (
	"context"
)

// Repository defines storage operations for the attendance log.
// Pure append: storage failures propagate as I/O errors, never business errors.
type Repository interface {
	// Append persists an entry. No uniqueness constraint applies.
	Append(ctx context.Context, entry *Entry) error

	// GetByRun returns all entries of a run in timestamp order.
	GetByRun(ctx context.Context, runID string) ([]*Entry, error)

	// GetByWorkgroup returns all entries of a workgroup in timestamp order.
	GetByWorkgroup(ctx context.Context, workgroupID string) ([]*Entry, error)
}
