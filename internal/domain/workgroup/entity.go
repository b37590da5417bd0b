// Package workgroup contains the workgroup domain model: a capacity-bounded
// team of students collaborating within one run/period.
package workgroup

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrWorkgroupNotFound - the workgroup does not exist.
	ErrWorkgroupNotFound = errors.New("workgroup not found")

	// ErrCapacityExceeded - admitting the new members would push the member
	// set over the run's limit. The member set is left unmodified.
	ErrCapacityExceeded = errors.New("too many members in workgroup")

	// ErrNoMembers - a workgroup cannot be created without members.
	ErrNoMembers = errors.New("workgroup requires at least one member")

	// ErrAlreadyInWorkgroup - the student already belongs to a different
	// workgroup for the same run. A student is in at most one workgroup per
	// run, so admission into a second one is refused.
	ErrAlreadyInWorkgroup = errors.New("student already in another workgroup for this run")
)

// CapacityError carries the id of the workgroup that was at capacity so the
// boundary can report which team rejected the admission. Matches
// ErrCapacityExceeded under errors.Is.
type CapacityError struct {
	WorkgroupID string
}

// Error implements the error interface.
func (e *CapacityError) Error() string {
	return fmt.Sprintf("too many members in workgroup %s", e.WorkgroupID)
}

// Unwrap returns the base capacity error.
func (e *CapacityError) Unwrap() error {
	return ErrCapacityExceeded
}

// MembershipError carries which student clashed and which workgroup already
// holds them. Matches ErrAlreadyInWorkgroup under errors.Is.
type MembershipError struct {
	UserID      string
	WorkgroupID string
}

// Error implements the error interface.
func (e *MembershipError) Error() string {
	return fmt.Sprintf("student %s already in workgroup %s", e.UserID, e.WorkgroupID)
}

// Unwrap returns the base membership error.
func (e *MembershipError) Unwrap() error {
	return ErrAlreadyInWorkgroup
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: WORKGROUP
// ══════════════════════════════════════════════════════════════════════════════

// Workgroup is a team of students within one run/period. Members form a set -
// a student appears at most once - and the set never exceeds the run's
// MaxWorkgroupSize after any successful mutation. Members are only ever added
// within this core, never removed, merged, or split.
type Workgroup struct {
	// ID - internal unique identifier (UUID in string form).
	ID string

	// Name - display name, derived from the creating student.
	Name string

	// RunID - the owning run.
	RunID string

	// PeriodID / PeriodName - the owning period within the run.
	PeriodID   string
	PeriodName string

	// Version - optimistic concurrency token for membership writes.
	Version int64

	// CreatedAt - when the workgroup was created.
	CreatedAt time.Time

	// UpdatedAt - when the membership last changed.
	UpdatedAt time.Time

	members map[string]struct{}
}

// NewParams contains parameters for creating a workgroup.
type NewParams struct {
	ID         string
	Name       string
	RunID      string
	PeriodID   string
	PeriodName string
	MemberIDs  []string

	// MaxSize is the owning run's MaxWorkgroupSize.
	MaxSize int
}

// New creates a workgroup with the given initial members. The capacity
// invariant holds from creation: an initial member set larger than MaxSize
// fails with ErrCapacityExceeded.
func New(params NewParams) (*Workgroup, error) {
	if params.ID == "" {
		return nil, errors.New("workgroup id is required")
	}
	if params.RunID == "" {
		return nil, errors.New("workgroup run id is required")
	}
	if len(params.MemberIDs) == 0 {
		return nil, ErrNoMembers
	}

	members := make(map[string]struct{}, len(params.MemberIDs))
	for _, id := range params.MemberIDs {
		members[id] = struct{}{}
	}
	if params.MaxSize > 0 && len(members) > params.MaxSize {
		return nil, ErrCapacityExceeded
	}

	now := time.Now().UTC()

	return &Workgroup{
		ID:         params.ID,
		Name:       params.Name,
		RunID:      params.RunID,
		PeriodID:   params.PeriodID,
		PeriodName: params.PeriodName,
		CreatedAt:  now,
		UpdatedAt:  now,
		members:    members,
	}, nil
}

// Restore rebuilds a workgroup from persisted state.
func Restore(wg Workgroup, memberIDs []string) *Workgroup {
	wg.members = make(map[string]struct{}, len(memberIDs))
	for _, id := range memberIDs {
		wg.members[id] = struct{}{}
	}
	return &wg
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS
// ══════════════════════════════════════════════════════════════════════════════

// Size returns the number of members.
func (w *Workgroup) Size() int {
	return len(w.members)
}

// HasMember reports whether the user is a member.
func (w *Workgroup) HasMember(userID string) bool {
	_, ok := w.members[userID]
	return ok
}

// MemberIDs returns the member ids in sorted order.
func (w *Workgroup) MemberIDs() []string {
	ids := make([]string, 0, len(w.members))
	for id := range w.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NewMembers returns the subset of the given ids that are not yet members,
// preserving input order and dropping duplicates.
func (w *Workgroup) NewMembers(userIDs []string) []string {
	seen := make(map[string]struct{}, len(userIDs))
	var out []string
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if !w.HasMember(id) {
			out = append(out, id)
		}
	}
	return out
}

// AddMembers admits the given users, enforcing the capacity limit. Adding an
// existing member is a no-op, never a duplicate. If the admission would exceed
// maxSize the member set is left unchanged and ErrCapacityExceeded is returned
// - no partial admission.
func (w *Workgroup) AddMembers(userIDs []string, maxSize int) error {
	newMembers := w.NewMembers(userIDs)
	if len(newMembers) == 0 {
		return nil
	}
	if maxSize > 0 && len(w.members)+len(newMembers) > maxSize {
		return ErrCapacityExceeded
	}

	for _, id := range newMembers {
		w.members[id] = struct{}{}
	}
	w.UpdatedAt = time.Now().UTC()
	return nil
}

// String returns a string representation for logging.
func (w *Workgroup) String() string {
	return fmt.Sprintf("Workgroup{ID: %s, RunID: %s, Period: %s, Members: %d}",
		w.ID, w.RunID, w.PeriodName, len(w.members))
}

// Clone creates a deep copy of the workgroup.
func (w *Workgroup) Clone() *Workgroup {
	if w == nil {
		return nil
	}
	clone := *w
	clone.members = make(map[string]struct{}, len(w.members))
	for id := range w.members {
		clone.members[id] = struct{}{}
	}
	return &clone
}
