// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"time"

	"github.com/encorelab/SCORE/internal/domain/run"
	"github.com/encorelab/SCORE/internal/domain/shared"
	"github.com/encorelab/SCORE/internal/domain/user"
	"github.com/encorelab/SCORE/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET RUN INFO QUERY
// Resolves a run by code or id and shapes it for the registration screen.
// Pure read, fronted by the run cache.
// ══════════════════════════════════════════════════════════════════════════════

// runInfoCacheTTL bounds staleness of the registration screen.
const runInfoCacheTTL = 2 * time.Minute

// GetRunInfoQuery contains the lookup parameters. Exactly one of RunCode or
// RunID must be set.
type GetRunInfoQuery struct {
	// RunCode is the human code students type in.
	RunCode string

	// RunID is the internal run id.
	RunID string
}

// Validate validates the query.
func (q GetRunInfoQuery) Validate() error {
	if q.RunCode == "" && q.RunID == "" {
		return errors.New("get_run_info: run_code or run_id is required")
	}
	if q.RunCode != "" && q.RunID != "" {
		return errors.New("get_run_info: run_code and run_id are mutually exclusive")
	}
	return nil
}

// RunInfoDTO is the registration-screen shape of a run.
type RunInfoDTO struct {
	// ID - internal run id.
	ID string `json:"id"`

	// Name - display name of the run.
	Name string `json:"name"`

	// RunCode - the human registration code.
	RunCode string `json:"runCode"`

	// StartTime / EndTime bound the run's lifetime (zero EndTime = open-ended).
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`

	// Ended is the derived lifecycle flag at query time.
	Ended bool `json:"ended"`

	// Periods - the period names students can register into, roster order.
	Periods []string `json:"periods"`

	// MaxStudentsPerTeam - workgroup capacity limit.
	MaxStudentsPerTeam int `json:"maxStudentsPerTeam"`

	// TeacherFirstName / TeacherLastName identify the owning teacher.
	TeacherFirstName string `json:"teacherFirstName"`
	TeacherLastName  string `json:"teacherLastName"`
}

// GetRunInfoResult contains the result of the run lookup.
type GetRunInfoResult struct {
	Run RunInfoDTO `json:"run"`
}

// GetRunInfoHandler handles run info lookups.
type GetRunInfoHandler struct {
	runRepo  run.Repository
	userRepo user.Repository
	cache    run.Cache
	log      *logger.Logger
}

// NewGetRunInfoHandler creates a new handler. cache may be nil.
func NewGetRunInfoHandler(
	runRepo run.Repository,
	userRepo user.Repository,
	cache run.Cache,
	log *logger.Logger,
) *GetRunInfoHandler {
	return &GetRunInfoHandler{
		runRepo:  runRepo,
		userRepo: userRepo,
		cache:    cache,
		log:      log,
	}
}

// Handle executes the run info query.
func (h *GetRunInfoHandler) Handle(ctx context.Context, query GetRunInfoQuery) (*GetRunInfoResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetRunInfo", shared.ErrValidation, err.Error(), err)
	}

	r, err := h.lookup(ctx, query)
	if err != nil {
		return nil, err
	}

	dto := RunInfoDTO{
		ID:                 r.ID,
		Name:               r.Name,
		RunCode:            r.Runcode.String(),
		StartTime:          r.StartTime,
		Ended:              r.HasEnded(time.Now().UTC()),
		Periods:            r.PeriodNames(),
		MaxStudentsPerTeam: r.MaxWorkgroupSize,
	}
	if !r.EndTime.IsZero() {
		end := r.EndTime
		dto.EndTime = &end
	}

	// Owner name is display sugar: a missing owner never fails the lookup.
	if r.OwnerID != "" {
		owner, err := h.userRepo.GetByID(ctx, r.OwnerID)
		if err == nil {
			dto.TeacherFirstName = owner.FirstName
			dto.TeacherLastName = owner.LastName
		} else {
			h.log.Warn("run owner lookup failed", logger.RunID(r.ID), logger.Err(err))
		}
	}

	return &GetRunInfoResult{Run: dto}, nil
}

// lookup resolves the run, consulting the cache first.
func (h *GetRunInfoHandler) lookup(ctx context.Context, query GetRunInfoQuery) (*run.Run, error) {
	if h.cache != nil {
		var cached *run.Run
		var err error
		if query.RunID != "" {
			cached, err = h.cache.GetByID(ctx, query.RunID)
		} else {
			cached, err = h.cache.GetByCode(ctx, run.Runcode(query.RunCode))
		}
		if err == nil && cached != nil {
			return cached, nil
		}
	}

	var r *run.Run
	var err error
	if query.RunID != "" {
		r, err = h.runRepo.GetByID(ctx, query.RunID)
	} else {
		r, err = h.runRepo.GetByCode(ctx, run.Runcode(query.RunCode))
	}
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, r, runInfoCacheTTL); err != nil {
			h.log.Warn("run cache write failed", logger.RunID(r.ID), logger.Err(err))
		}
	}
	return r, nil
}
