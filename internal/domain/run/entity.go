// Package run contains the run domain model: a scheduled, time-bounded
// instance of a learning project that students enroll into.
package run

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Runcode is the human code students type in to register (e.g. "Falcon123").
type Runcode string

// IsValid checks that the runcode is well formed.
func (r Runcode) IsValid() bool {
	s := string(r)
	return len(s) >= 3 && len(s) <= 30 && !strings.ContainsAny(s, " \t\n\r")
}

// String returns the string representation of the runcode.
func (r Runcode) String() string {
	return string(r)
}

// EnrollmentKey is the (runcode, period name) pair identifying where a student
// registers. Two keys are equal iff both fields match exactly (case-sensitive).
type EnrollmentKey struct {
	Runcode    Runcode
	PeriodName string
}

// NewEnrollmentKey builds an enrollment key from its raw parts.
func NewEnrollmentKey(runcode, periodName string) EnrollmentKey {
	return EnrollmentKey{
		Runcode:    Runcode(runcode),
		PeriodName: periodName,
	}
}

// IsValid checks that both parts are present.
func (k EnrollmentKey) IsValid() bool {
	return k.Runcode.IsValid() && k.PeriodName != ""
}

// Equal reports exact, case-sensitive equality of both fields.
func (k EnrollmentKey) Equal(other EnrollmentKey) bool {
	return k.Runcode == other.Runcode && k.PeriodName == other.PeriodName
}

// String returns "runcode-period" for logging.
func (k EnrollmentKey) String() string {
	return fmt.Sprintf("%s-%s", k.Runcode, k.PeriodName)
}

// Period is a named sub-division of a run's roster (e.g. a class section).
// Scoped to exactly one run.
type Period struct {
	// ID - unique identifier of the period.
	ID string

	// Name - the period name students pick at registration (e.g. "1", "3rd").
	Name string
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: RUN
// ══════════════════════════════════════════════════════════════════════════════

// Run is a scheduled instance of a project. It is created and administered
// elsewhere; this core treats it as a read-only input apart from the
// enrollment counters guarded by the version token.
type Run struct {
	// ID - internal unique identifier (UUID in string form).
	ID string

	// Name - the display name of the run (usually the project title).
	Name string

	// Runcode - the human code for registration, unique among open runs.
	Runcode Runcode

	// Periods - ordered set of named periods.
	Periods []Period

	// MaxWorkgroupSize - workgroup capacity limit, always positive.
	MaxWorkgroupSize int

	// StartTime / EndTime bound the run's lifetime. A zero EndTime means the
	// run is open-ended.
	StartTime time.Time
	EndTime   time.Time

	// OwnerID - the teacher who owns the run.
	OwnerID string

	// StudentCount - number of students associated with the run. Touched by
	// every enrollment, which is why enrollments contend on the run row.
	StudentCount int

	// Version - optimistic concurrency token. A write is accepted only if the
	// token is unchanged since it was read.
	Version int64

	// CreatedAt - when the record was created.
	CreatedAt time.Time

	// UpdatedAt - when the record was last updated.
	UpdatedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrRunNotFound - no run matches the code or id.
	ErrRunNotFound = errors.New("run not found")

	// ErrPeriodNotFound - the run has no period with the given name.
	ErrPeriodNotFound = errors.New("period not found in run")

	// ErrRunHasEnded - the run's end time has passed.
	ErrRunHasEnded = errors.New("run has ended")

	// ErrInvalidRuncode - the runcode is malformed.
	ErrInvalidRuncode = errors.New("invalid runcode")

	// ErrInvalidCapacity - the workgroup capacity is not positive.
	ErrInvalidCapacity = errors.New("max workgroup size must be positive")
)

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS
// ══════════════════════════════════════════════════════════════════════════════

// HasEnded reports whether the run's end time has passed at the given instant.
// A zero end time never ends.
func (r *Run) HasEnded(now time.Time) bool {
	return !r.EndTime.IsZero() && now.After(r.EndTime)
}

// PeriodByName returns the period with the given name (case-sensitive).
// Returns ErrPeriodNotFound if the run has no such period.
func (r *Run) PeriodByName(name string) (Period, error) {
	for _, p := range r.Periods {
		if p.Name == name {
			return p, nil
		}
	}
	return Period{}, ErrPeriodNotFound
}

// PeriodNames returns the period names in roster order.
func (r *Run) PeriodNames() []string {
	names := make([]string, 0, len(r.Periods))
	for _, p := range r.Periods {
		names = append(names, p.Name)
	}
	return names
}

// Validate checks the structural invariants of the run.
func (r *Run) Validate() error {
	if r.ID == "" {
		return errors.New("run id is required")
	}
	if !r.Runcode.IsValid() {
		return ErrInvalidRuncode
	}
	if r.MaxWorkgroupSize <= 0 {
		return ErrInvalidCapacity
	}
	return nil
}

// String returns a string representation for logging.
func (r *Run) String() string {
	return fmt.Sprintf("Run{ID: %s, Runcode: %s, Periods: %d, MaxWorkgroupSize: %d}",
		r.ID, r.Runcode, len(r.Periods), r.MaxWorkgroupSize)
}

// Clone creates a deep copy of the run.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Periods = make([]Period, len(r.Periods))
	copy(clone.Periods, r.Periods)
	return &clone
}

// ══════════════════════════════════════════════════════════════════════════════
// STATISTICS (read model shape)
// ══════════════════════════════════════════════════════════════════════════════

// Stats is the per-run statistics projection: counts of active students and
// workgroups. It is maintained as a read model and refreshed after launches.
type Stats struct {
	RunID          string    `json:"run_id"`
	StudentCount   int       `json:"student_count"`
	WorkgroupCount int       `json:"workgroup_count"`
	LastLaunchAt   time.Time `json:"last_launch_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
