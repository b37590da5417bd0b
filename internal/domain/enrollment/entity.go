// Package enrollment contains the enrollment ledger: the record type that
// associates a student with a run, and the domain service that creates it
// under the run's optimistic version token.
package enrollment

import (
	"errors"
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrAlreadyEnrolled - an enrollment record already exists for the
	// (student, run) pair. Re-creating is a no-op error, never a silent
	// success and never a duplicate.
	ErrAlreadyEnrolled = errors.New("student already associated with run")

	// ErrNotEnrolled - no enrollment record exists for the (student, run) pair.
	ErrNotEnrolled = errors.New("student not associated with run")
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: RECORD
// ══════════════════════════════════════════════════════════════════════════════

// Record associates a student with a run. Created once per (student, run)
// pair and never mutated.
type Record struct {
	// ID - internal unique identifier (UUID in string form).
	ID string

	// RunID / UserID - the associated pair, unique together.
	RunID  string
	UserID string

	// PeriodID / PeriodName - the period the student registered into.
	PeriodID   string
	PeriodName string

	// EnrolledAt - when the association was created.
	EnrolledAt time.Time
}

// NewRecordParams contains parameters for creating an enrollment record.
type NewRecordParams struct {
	ID         string
	RunID      string
	UserID     string
	PeriodID   string
	PeriodName string
}

// NewRecord creates an enrollment record with validation.
func NewRecord(params NewRecordParams) (*Record, error) {
	if params.ID == "" {
		return nil, errors.New("enrollment id is required")
	}
	if params.RunID == "" || params.UserID == "" {
		return nil, errors.New("enrollment requires run id and user id")
	}
	if params.PeriodName == "" {
		return nil, errors.New("enrollment requires a period name")
	}

	return &Record{
		ID:         params.ID,
		RunID:      params.RunID,
		UserID:     params.UserID,
		PeriodID:   params.PeriodID,
		PeriodName: params.PeriodName,
		EnrolledAt: time.Now().UTC(),
	}, nil
}

// String returns a string representation for logging.
func (r *Record) String() string {
	return fmt.Sprintf("Enrollment{ID: %s, RunID: %s, UserID: %s, Period: %s}",
		r.ID, r.RunID, r.UserID, r.PeriodName)
}
