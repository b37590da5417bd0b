package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/encorelab/SCORE/internal/domain/run"
	"github.com/encorelab/SCORE/internal/domain/shared"
	"github.com/encorelab/SCORE/internal/domain/user"
	"github.com/encorelab/SCORE/internal/domain/workgroup"
)

// ══════════════════════════════════════════════════════════════════════════════
// CAN JOIN WORKGROUP QUERY
// Pure eligibility predicate: may this student be added to this workgroup
// for this run. No mutation, no retry.
// ══════════════════════════════════════════════════════════════════════════════

// CanJoinWorkgroupQuery contains the eligibility parameters.
type CanJoinWorkgroupQuery struct {
	// RunID is the internal id of the run.
	RunID string

	// WorkgroupID optionally names the target workgroup. When empty and the
	// candidate is already in some workgroup for the run, that workgroup
	// becomes the effective target.
	WorkgroupID string

	// UserID is the candidate being checked.
	UserID string

	// ActingUserID is the signed-in actor making the request. A full team is
	// only visible-and-joinable to its own members.
	ActingUserID string
}

// Validate validates the query.
func (q CanJoinWorkgroupQuery) Validate() error {
	if q.RunID == "" {
		return errors.New("can_join_workgroup: run_id is required")
	}
	if q.UserID == "" {
		return errors.New("can_join_workgroup: user_id is required")
	}
	if q.ActingUserID == "" {
		return errors.New("can_join_workgroup: acting_user_id is required")
	}
	return nil
}

// CanJoinWorkgroupResult is the eligibility verdict.
type CanJoinWorkgroupResult struct {
	// Status is true if the candidate may be added.
	Status bool `json:"status"`

	// IsTeacher is true if the candidate is a teacher.
	IsTeacher bool `json:"isTeacher"`

	// WorkgroupID is the effective target workgroup, if any.
	WorkgroupID string `json:"workgroupId,omitempty"`

	// WorkgroupMembers is the target's roster excluding the candidate.
	WorkgroupMembers []user.Summary `json:"workgroupMembers"`
}

// CanJoinWorkgroupHandler handles eligibility queries.
type CanJoinWorkgroupHandler struct {
	runRepo       run.Repository
	userRepo      user.Repository
	workgroupRepo workgroup.Repository
}

// NewCanJoinWorkgroupHandler creates a new handler.
func NewCanJoinWorkgroupHandler(
	runRepo run.Repository,
	userRepo user.Repository,
	workgroupRepo workgroup.Repository,
) *CanJoinWorkgroupHandler {
	return &CanJoinWorkgroupHandler{
		runRepo:       runRepo,
		userRepo:      userRepo,
		workgroupRepo: workgroupRepo,
	}
}

// Handle executes the eligibility query.
func (h *CanJoinWorkgroupHandler) Handle(ctx context.Context, query CanJoinWorkgroupQuery) (*CanJoinWorkgroupResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "CanJoinWorkgroup", shared.ErrValidation, err.Error(), err)
	}

	r, err := h.runRepo.GetByID(ctx, query.RunID)
	if err != nil {
		return nil, fmt.Errorf("can_join_workgroup: run: %w", err)
	}

	candidate, err := h.userRepo.GetByID(ctx, query.UserID)
	if err != nil {
		return nil, fmt.Errorf("can_join_workgroup: user: %w", err)
	}

	result := &CanJoinWorkgroupResult{
		IsTeacher:        candidate.IsTeacher(),
		WorkgroupMembers: make([]user.Summary, 0),
	}

	existing, err := h.workgroupRepo.FindByRunAndUser(ctx, r.ID, candidate.ID)
	if err != nil {
		return nil, fmt.Errorf("can_join_workgroup: candidate workgroups: %w", err)
	}
	inSomeWorkgroup := len(existing) > 0

	// Resolve the effective target: the named workgroup, or the candidate's
	// own workgroup for the run when none was named.
	var target *workgroup.Workgroup
	if query.WorkgroupID != "" {
		target, err = h.workgroupRepo.GetByID(ctx, query.WorkgroupID)
		if err != nil {
			return nil, fmt.Errorf("can_join_workgroup: workgroup: %w", err)
		}
	} else if inSomeWorkgroup {
		target = existing[0]
	}

	// Eligible when the candidate is in no workgroup for the run, or is
	// already a member of the target itself.
	result.Status = !inSomeWorkgroup
	if target != nil && target.HasMember(candidate.ID) {
		result.Status = true
	}

	if target != nil {
		result.WorkgroupID = target.ID

		// Outsiders cannot view-and-join a full team; members still see
		// their own roster.
		if r.MaxWorkgroupSize > 0 &&
			target.Size() >= r.MaxWorkgroupSize &&
			!target.HasMember(query.ActingUserID) {
			result.Status = false
		}

		members, err := h.visibleMembers(ctx, target, candidate.ID)
		if err != nil {
			return nil, err
		}
		result.WorkgroupMembers = members
	}

	return result, nil
}

// visibleMembers resolves the target's roster excluding the candidate.
func (h *CanJoinWorkgroupHandler) visibleMembers(ctx context.Context, target *workgroup.Workgroup, excludeID string) ([]user.Summary, error) {
	ids := make([]string, 0, target.Size())
	for _, id := range target.MemberIDs() {
		if id != excludeID {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return []user.Summary{}, nil
	}

	members, err := h.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("can_join_workgroup: members: %w", err)
	}

	summaries := make([]user.Summary, 0, len(members))
	for _, m := range members {
		summaries = append(summaries, m.Summarize())
	}
	return summaries, nil
}
