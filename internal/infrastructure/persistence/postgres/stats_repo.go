package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/encorelab/SCORE/internal/domain/run"
)

// RunStatsRepository implements run.StatsRepository using PostgreSQL.
type RunStatsRepository struct {
	conn *Connection
}

// NewRunStatsRepository creates a new PostgreSQL run statistics repository.
func NewRunStatsRepository(conn *Connection) *RunStatsRepository {
	return &RunStatsRepository{conn: conn}
}

// Get returns the statistics for a run, or run.ErrRunNotFound.
func (r *RunStatsRepository) Get(ctx context.Context, runID string) (*run.Stats, error) {
	query := `
		SELECT run_id, student_count, workgroup_count, last_launch_at, updated_at
		FROM run_stats
		WHERE run_id = $1`

	var stats run.Stats
	var lastLaunch *time.Time

	err := r.conn.QueryRow(ctx, query, runID).Scan(
		&stats.RunID,
		&stats.StudentCount,
		&stats.WorkgroupCount,
		&lastLaunch,
		&stats.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, run.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run stats: %w", err)
	}

	if lastLaunch != nil {
		stats.LastLaunchAt = *lastLaunch
	}

	return &stats, nil
}

// Upsert stores the statistics for a run.
func (r *RunStatsRepository) Upsert(ctx context.Context, stats *run.Stats) error {
	query := `
		INSERT INTO run_stats (run_id, student_count, workgroup_count, last_launch_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO UPDATE SET
			student_count = EXCLUDED.student_count,
			workgroup_count = EXCLUDED.workgroup_count,
			last_launch_at = GREATEST(run_stats.last_launch_at, EXCLUDED.last_launch_at),
			updated_at = EXCLUDED.updated_at`

	var lastLaunch *time.Time
	if !stats.LastLaunchAt.IsZero() {
		lastLaunch = &stats.LastLaunchAt
	}

	_, err := r.conn.Exec(ctx, query,
		stats.RunID,
		stats.StudentCount,
		stats.WorkgroupCount,
		lastLaunch,
		stats.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert run stats: %w", err)
	}

	return nil
}
