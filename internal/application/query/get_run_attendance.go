package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/encorelab/SCORE/internal/domain/attendance"
	"github.com/encorelab/SCORE/internal/domain/run"
	"github.com/encorelab/SCORE/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET RUN ATTENDANCE QUERY
// Audit listing of a run's attendance log in timestamp order.
// ══════════════════════════════════════════════════════════════════════════════

// GetRunAttendanceQuery contains the lookup parameters.
type GetRunAttendanceQuery struct {
	// RunID is the internal id of the run.
	RunID string

	// WorkgroupID optionally narrows the listing to one workgroup.
	WorkgroupID string
}

// Validate validates the query.
func (q GetRunAttendanceQuery) Validate() error {
	if q.RunID == "" {
		return errors.New("get_run_attendance: run_id is required")
	}
	return nil
}

// GetRunAttendanceResult contains the entries, oldest first.
type GetRunAttendanceResult struct {
	RunID   string              `json:"runId"`
	Entries []*attendance.Entry `json:"entries"`
}

// GetRunAttendanceHandler handles attendance audit queries.
type GetRunAttendanceHandler struct {
	runRepo        run.Repository
	attendanceRepo attendance.Repository
}

// NewGetRunAttendanceHandler creates a new handler.
func NewGetRunAttendanceHandler(runRepo run.Repository, attendanceRepo attendance.Repository) *GetRunAttendanceHandler {
	return &GetRunAttendanceHandler{
		runRepo:        runRepo,
		attendanceRepo: attendanceRepo,
	}
}

// Handle executes the attendance audit query.
func (h *GetRunAttendanceHandler) Handle(ctx context.Context, query GetRunAttendanceQuery) (*GetRunAttendanceResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetRunAttendance", shared.ErrValidation, err.Error(), err)
	}

	r, err := h.runRepo.GetByID(ctx, query.RunID)
	if err != nil {
		return nil, fmt.Errorf("get_run_attendance: run: %w", err)
	}

	var entries []*attendance.Entry
	if query.WorkgroupID != "" {
		entries, err = h.attendanceRepo.GetByWorkgroup(ctx, query.WorkgroupID)
	} else {
		entries, err = h.attendanceRepo.GetByRun(ctx, r.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("get_run_attendance: entries: %w", err)
	}

	return &GetRunAttendanceResult{
		RunID:   r.ID,
		Entries: entries,
	}, nil
}
