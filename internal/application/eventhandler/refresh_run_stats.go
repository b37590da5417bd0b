// Package eventhandler contains domain event subscribers. They react to
// enrollment and launch events and keep read models fresh without blocking
// the write path.
package eventhandler

import (
	"context"
	"time"

	"github.com/encorelab/SCORE/internal/domain/enrollment"
	"github.com/encorelab/SCORE/internal/domain/run"
	"github.com/encorelab/SCORE/internal/domain/shared"
	"github.com/encorelab/SCORE/internal/domain/workgroup"
	"github.com/encorelab/SCORE/pkg/circuitbreaker"
	"github.com/encorelab/SCORE/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// REFRESH RUN STATS HANDLER
// Recomputes the per-run statistics projection on enrollment and launch
// events. Stats are best-effort bookkeeping: every failure is logged and
// swallowed, and the stats store sits behind a circuit breaker so a broken
// projection never slows the event loop down.
// ═══════════════════════════════════════════════════════════════════════════

// refreshTimeout bounds a single projection refresh.
const refreshTimeout = 5 * time.Second

// RefreshRunStatsHandler refreshes the run statistics read model.
type RefreshRunStatsHandler struct {
	enrollmentRepo enrollment.Repository
	workgroupRepo  workgroup.Repository
	statsRepo      run.StatsRepository
	breaker        *circuitbreaker.CircuitBreaker
	log            *logger.Logger
}

// NewRefreshRunStatsHandler creates a new handler.
func NewRefreshRunStatsHandler(
	enrollmentRepo enrollment.Repository,
	workgroupRepo workgroup.Repository,
	statsRepo run.StatsRepository,
	log *logger.Logger,
) *RefreshRunStatsHandler {
	h := &RefreshRunStatsHandler{
		enrollmentRepo: enrollmentRepo,
		workgroupRepo:  workgroupRepo,
		statsRepo:      statsRepo,
		log:            log.With(logger.Component("refresh_run_stats")),
	}
	h.breaker = circuitbreaker.StatsStoreBreaker(func(name string, from, to circuitbreaker.State) {
		h.log.Warn("stats store breaker state change",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	})
	return h
}

// Handle implements the event subscriber contract.
func (h *RefreshRunStatsHandler) Handle(event shared.Event) error {
	var runID string
	var lastLaunch time.Time

	switch e := event.(type) {
	case shared.StudentEnrolledEvent:
		runID = e.RunID
	case shared.RunLaunchedEvent:
		runID = e.AggregateID()
		lastLaunch = e.OccurredAt()
	default:
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	if err := h.Refresh(ctx, runID, lastLaunch); err != nil {
		h.log.Error("run stats refresh failed", logger.RunID(runID), logger.Err(err))
	}
	return nil
}

// Refresh recomputes and stores the statistics for one run. The worker's
// reconciliation job calls this directly.
func (h *RefreshRunStatsHandler) Refresh(ctx context.Context, runID string, lastLaunch time.Time) error {
	students, err := h.enrollmentRepo.CountByRun(ctx, runID)
	if err != nil {
		return err
	}
	groups, err := h.workgroupRepo.CountByRun(ctx, runID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	stats := &run.Stats{
		RunID:          runID,
		StudentCount:   students,
		WorkgroupCount: groups,
		UpdatedAt:      now,
	}
	if !lastLaunch.IsZero() {
		stats.LastLaunchAt = lastLaunch
	} else if prev, err := h.statsRepo.Get(ctx, runID); err == nil {
		stats.LastLaunchAt = prev.LastLaunchAt
	}

	return h.breaker.Execute(ctx, func(ctx context.Context) error {
		return h.statsRepo.Upsert(ctx, stats)
	})
}
