// Package jobs contains the worker's scheduled jobs.
package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/encorelab/SCORE/internal/application/eventhandler"
	"github.com/encorelab/SCORE/pkg/logger"
)

// RunLister lists run ids for reconciliation sweeps. Implemented by the
// PostgreSQL run repository.
type RunLister interface {
	ListIDs(ctx context.Context) ([]string, error)
}

// RefreshRunStatsJob periodically recomputes the statistics projection for
// every run. The event-driven refresh keeps stats fresh in the common case;
// this sweep repairs whatever dropped events left stale.
type RefreshRunStatsJob struct {
	runs      RunLister
	refresher *eventhandler.RefreshRunStatsHandler
	log       *logger.Logger

	lastStats atomic.Pointer[SweepStats]
}

// SweepStats summarizes the last reconciliation sweep.
type SweepStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Total     int
	Failed    int
}

// NewRefreshRunStatsJob creates the reconciliation job.
func NewRefreshRunStatsJob(runs RunLister, refresher *eventhandler.RefreshRunStatsHandler, log *logger.Logger) *RefreshRunStatsJob {
	return &RefreshRunStatsJob{
		runs:      runs,
		refresher: refresher,
		log:       log.With(logger.Component("refresh_run_stats_job")),
	}
}

// Name implements scheduler.Job.
func (j *RefreshRunStatsJob) Name() string {
	return "refresh_run_stats"
}

// Description implements scheduler.Job.
func (j *RefreshRunStatsJob) Description() string {
	return "recomputes the per-run statistics projection for all runs"
}

// Run implements scheduler.Job. A failing run is logged and skipped so one
// bad row never stalls the sweep.
func (j *RefreshRunStatsJob) Run(ctx context.Context) error {
	started := time.Now()

	ids, err := j.runs.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("refresh_run_stats: list runs: %w", err)
	}

	failed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := j.refresher.Refresh(ctx, id, time.Time{}); err != nil {
			failed++
			j.log.Warn("stats refresh failed", logger.RunID(id), logger.Err(err))
		}
	}

	stats := &SweepStats{
		StartedAt: started,
		Duration:  time.Since(started),
		Total:     len(ids),
		Failed:    failed,
	}
	j.lastStats.Store(stats)

	j.log.Info("stats sweep completed",
		logger.Int("runs", stats.Total),
		logger.Int("failed", stats.Failed),
		logger.Duration("duration", stats.Duration),
	)

	return nil
}

// LastSweep returns the stats of the most recent sweep, or nil.
func (j *RefreshRunStatsJob) LastSweep() *SweepStats {
	return j.lastStats.Load()
}
