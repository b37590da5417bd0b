package enrollment

import (
	"context"
	"fmt"
	"time"

	"github.com/encorelab/SCORE/internal/domain/run"
	"github.com/encorelab/SCORE/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT LEDGER (domain service)
// ══════════════════════════════════════════════════════════════════════════════

// IDGenerator produces identifiers for new records.
type IDGenerator func() string

// Ledger idempotently associates students with runs. One Enroll call is a
// single attempt: a concurrent enrollment into the same run surfaces as
// shared.ErrOptimisticLock (via the repository), which the caller retries;
// business-rule violations are terminal and must never be retried.
type Ledger struct {
	runs    run.Repository
	records Repository
	newID   IDGenerator
}

// NewLedger creates an enrollment ledger.
func NewLedger(runs run.Repository, records Repository, newID IDGenerator) *Ledger {
	return &Ledger{
		runs:    runs,
		records: records,
		newID:   newID,
	}
}

// Enroll associates the student with the run named by the key.
// Preconditions are checked in priority order:
//  1. run.ErrRunNotFound - no run matches the key's runcode.
//  2. run.ErrPeriodNotFound - run exists but has no such period.
//  3. run.ErrRunHasEnded - the run's end time has passed.
//  4. ErrAlreadyEnrolled - a record already exists for (student, run).
//
// On success the record is created, the run's student counter is bumped under
// its version token, and the run is returned.
func (l *Ledger) Enroll(ctx context.Context, u *user.User, key run.EnrollmentKey, now time.Time) (*run.Run, *Record, error) {
	r, err := l.runs.GetByCode(ctx, key.Runcode)
	if err != nil {
		return nil, nil, err
	}

	period, err := r.PeriodByName(key.PeriodName)
	if err != nil {
		return nil, nil, err
	}

	if r.HasEnded(now) {
		return nil, nil, run.ErrRunHasEnded
	}

	exists, err := l.records.Exists(ctx, r.ID, u.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("enrollment: existence check: %w", err)
	}
	if exists {
		return nil, nil, ErrAlreadyEnrolled
	}

	rec, err := NewRecord(NewRecordParams{
		ID:         l.newID(),
		RunID:      r.ID,
		UserID:     u.ID,
		PeriodID:   period.ID,
		PeriodName: period.Name,
	})
	if err != nil {
		return nil, nil, err
	}

	if err := l.records.Create(ctx, rec, r.Version); err != nil {
		return nil, nil, err
	}

	r.StudentCount++
	r.Version++
	return r, rec, nil
}

// IsAssociated reports whether the student already has a record for the run.
func (l *Ledger) IsAssociated(ctx context.Context, runID, userID string) (bool, error) {
	return l.records.Exists(ctx, runID, userID)
}

// RecordFor returns the student's enrollment record for the run, or
// ErrNotEnrolled if no association exists.
func (l *Ledger) RecordFor(ctx context.Context, runID, userID string) (*Record, error) {
	return l.records.GetByRunAndUser(ctx, runID, userID)
}
