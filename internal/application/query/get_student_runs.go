package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/encorelab/SCORE/internal/domain/enrollment"
	"github.com/encorelab/SCORE/internal/domain/run"
	"github.com/encorelab/SCORE/internal/domain/shared"
	"github.com/encorelab/SCORE/internal/domain/user"
	"github.com/encorelab/SCORE/internal/domain/workgroup"
	"github.com/encorelab/SCORE/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STUDENT RUNS QUERY
// Lists the signed-in student's runs with period and workgroup roster.
// Powers the student home screen. Pure read.
// ══════════════════════════════════════════════════════════════════════════════

// GetStudentRunsQuery contains the lookup parameters.
type GetStudentRunsQuery struct {
	// UserID is the signed-in student.
	UserID string
}

// Validate validates the query.
func (q GetStudentRunsQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("get_student_runs: user_id is required")
	}
	return nil
}

// StudentRunDTO is the home-screen shape of one of the student's runs.
type StudentRunDTO struct {
	// RunID - internal run id.
	RunID string `json:"runId"`

	// Name - display name of the run.
	Name string `json:"name"`

	// RunCode - the human registration code.
	RunCode string `json:"runCode"`

	// PeriodName - the period the student registered into.
	PeriodName string `json:"periodName"`

	// MaxStudentsPerTeam - workgroup capacity limit.
	MaxStudentsPerTeam int `json:"maxStudentsPerTeam"`

	// StartTime / EndTime bound the run's lifetime.
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`

	// Ended is the derived lifecycle flag at query time.
	Ended bool `json:"ended"`

	// WorkgroupID is the student's workgroup for the run, if any.
	WorkgroupID string `json:"workgroupId,omitempty"`

	// WorkgroupMembers is the student's team roster (teammates only).
	WorkgroupMembers []user.Summary `json:"workgroupMembers"`
}

// GetStudentRunsResult contains the student's run list, newest first.
type GetStudentRunsResult struct {
	Runs []StudentRunDTO `json:"runs"`
}

// GetStudentRunsHandler handles student run list queries.
type GetStudentRunsHandler struct {
	runRepo        run.Repository
	userRepo       user.Repository
	workgroupRepo  workgroup.Repository
	enrollmentRepo enrollment.Repository
	log            *logger.Logger
}

// NewGetStudentRunsHandler creates a new handler.
func NewGetStudentRunsHandler(
	runRepo run.Repository,
	userRepo user.Repository,
	workgroupRepo workgroup.Repository,
	enrollmentRepo enrollment.Repository,
	log *logger.Logger,
) *GetStudentRunsHandler {
	return &GetStudentRunsHandler{
		runRepo:        runRepo,
		userRepo:       userRepo,
		workgroupRepo:  workgroupRepo,
		enrollmentRepo: enrollmentRepo,
		log:            log,
	}
}

// Handle executes the student run list query.
func (h *GetStudentRunsHandler) Handle(ctx context.Context, query GetStudentRunsQuery) (*GetStudentRunsResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetStudentRuns", shared.ErrValidation, err.Error(), err)
	}

	if _, err := h.userRepo.GetByID(ctx, query.UserID); err != nil {
		return nil, fmt.Errorf("get_student_runs: user: %w", err)
	}

	runs, err := h.runRepo.GetByStudent(ctx, query.UserID)
	if err != nil {
		return nil, fmt.Errorf("get_student_runs: runs: %w", err)
	}

	now := time.Now().UTC()
	result := &GetStudentRunsResult{Runs: make([]StudentRunDTO, 0, len(runs))}

	for _, r := range runs {
		dto := StudentRunDTO{
			RunID:              r.ID,
			Name:               r.Name,
			RunCode:            r.Runcode.String(),
			MaxStudentsPerTeam: r.MaxWorkgroupSize,
			StartTime:          r.StartTime,
			Ended:              r.HasEnded(now),
			WorkgroupMembers:   make([]user.Summary, 0),
		}
		if !r.EndTime.IsZero() {
			end := r.EndTime
			dto.EndTime = &end
		}

		rec, err := h.enrollmentRepo.GetByRunAndUser(ctx, r.ID, query.UserID)
		if err == nil {
			dto.PeriodName = rec.PeriodName
		} else {
			h.log.Warn("enrollment record missing for listed run",
				logger.RunID(r.ID), logger.UserID(query.UserID), logger.Err(err))
		}

		if err := h.attachWorkgroup(ctx, r.ID, query.UserID, &dto); err != nil {
			return nil, err
		}

		result.Runs = append(result.Runs, dto)
	}

	return result, nil
}

// attachWorkgroup fills in the student's workgroup and teammate roster.
func (h *GetStudentRunsHandler) attachWorkgroup(ctx context.Context, runID, userID string, dto *StudentRunDTO) error {
	groups, err := h.workgroupRepo.FindByRunAndUser(ctx, runID, userID)
	if err != nil {
		return fmt.Errorf("get_student_runs: workgroups: %w", err)
	}
	if len(groups) == 0 {
		return nil
	}

	wg := groups[0]
	dto.WorkgroupID = wg.ID

	teammateIDs := make([]string, 0, wg.Size())
	for _, id := range wg.MemberIDs() {
		if id != userID {
			teammateIDs = append(teammateIDs, id)
		}
	}
	if len(teammateIDs) == 0 {
		return nil
	}

	teammates, err := h.userRepo.GetByIDs(ctx, teammateIDs)
	if err != nil {
		return fmt.Errorf("get_student_runs: teammates: %w", err)
	}
	for _, t := range teammates {
		dto.WorkgroupMembers = append(dto.WorkgroupMembers, t.Summarize())
	}
	return nil
}
