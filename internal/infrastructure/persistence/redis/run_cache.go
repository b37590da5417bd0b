package redis

import (
	"context"
	"errors"
	"time"

	"github.com/encorelab/SCORE/internal/domain/run"
)

// RunCache implements run.Cache on top of the Redis client. Runs are stored
// under both their id and runcode keys so either lookup path hits.
type RunCache struct {
	cache *Cache
}

// NewRunCache creates a new Redis-backed run cache.
func NewRunCache(cache *Cache) *RunCache {
	return &RunCache{cache: cache}
}

// runDocument is the cached wire shape of a run. The domain entity carries no
// JSON tags, so the mapping lives here.
type runDocument struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Runcode          string           `json:"runcode"`
	Periods          []periodDocument `json:"periods"`
	MaxWorkgroupSize int              `json:"max_workgroup_size"`
	StartTime        time.Time        `json:"start_time"`
	EndTime          time.Time        `json:"end_time"`
	OwnerID          string           `json:"owner_id"`
	StudentCount     int              `json:"student_count"`
	Version          int64            `json:"version"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

type periodDocument struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func toDocument(r *run.Run) runDocument {
	periods := make([]periodDocument, 0, len(r.Periods))
	for _, p := range r.Periods {
		periods = append(periods, periodDocument{ID: p.ID, Name: p.Name})
	}
	return runDocument{
		ID:               r.ID,
		Name:             r.Name,
		Runcode:          r.Runcode.String(),
		Periods:          periods,
		MaxWorkgroupSize: r.MaxWorkgroupSize,
		StartTime:        r.StartTime,
		EndTime:          r.EndTime,
		OwnerID:          r.OwnerID,
		StudentCount:     r.StudentCount,
		Version:          r.Version,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func fromDocument(doc runDocument) *run.Run {
	periods := make([]run.Period, 0, len(doc.Periods))
	for _, p := range doc.Periods {
		periods = append(periods, run.Period{ID: p.ID, Name: p.Name})
	}
	return &run.Run{
		ID:               doc.ID,
		Name:             doc.Name,
		Runcode:          run.Runcode(doc.Runcode),
		Periods:          periods,
		MaxWorkgroupSize: doc.MaxWorkgroupSize,
		StartTime:        doc.StartTime,
		EndTime:          doc.EndTime,
		OwnerID:          doc.OwnerID,
		StudentCount:     doc.StudentCount,
		Version:          doc.Version,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}
}

// GetByCode returns the cached run for a runcode, or nil on miss.
func (c *RunCache) GetByCode(ctx context.Context, code run.Runcode) (*run.Run, error) {
	return c.get(ctx, RunByCodeKey(code.String()))
}

// GetByID returns the cached run for an id, or nil on miss.
func (c *RunCache) GetByID(ctx context.Context, id string) (*run.Run, error) {
	return c.get(ctx, RunByIDKey(id))
}

func (c *RunCache) get(ctx context.Context, key string) (*run.Run, error) {
	var doc runDocument
	err := c.cache.Get(ctx, key, &doc)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) || errors.Is(err, ErrInvalidValue) {
			return nil, nil
		}
		return nil, err
	}
	return fromDocument(doc), nil
}

// Set stores the run under both its id and runcode keys.
func (c *RunCache) Set(ctx context.Context, r *run.Run, ttl time.Duration) error {
	doc := toDocument(r)
	if err := c.cache.Set(ctx, RunByIDKey(r.ID), doc, ttl); err != nil {
		return err
	}
	return c.cache.Set(ctx, RunByCodeKey(r.Runcode.String()), doc, ttl)
}

// Invalidate drops both keys for the run.
func (c *RunCache) Invalidate(ctx context.Context, id string, code run.Runcode) error {
	return c.cache.Delete(ctx, RunByIDKey(id), RunByCodeKey(code.String()))
}
