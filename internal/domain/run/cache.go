package run

import (
	"context"
	"time"
)

// Cache is a read-through cache for run lookups. Runs change rarely compared
// to how often students resolve them, so code and id lookups are cached with
// a short TTL. A miss is not an error.
type Cache interface {
	// GetByCode returns the cached run for a runcode, or nil on miss.
	GetByCode(ctx context.Context, code Runcode) (*Run, error)

	// GetByID returns the cached run for an id, or nil on miss.
	GetByID(ctx context.Context, id string) (*Run, error)

	// Set stores the run under both its id and runcode keys.
	Set(ctx context.Context, r *Run, ttl time.Duration) error

	// Invalidate drops both keys for the run.
	Invalidate(ctx context.Context, id string, code Runcode) error
}
