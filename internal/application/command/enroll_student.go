// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/encorelab/SCORE/internal/domain/enrollment"
	"github.com/encorelab/SCORE/internal/domain/run"
	"github.com/encorelab/SCORE/internal/domain/shared"
	"github.com/encorelab/SCORE/internal/domain/user"
	"github.com/encorelab/SCORE/pkg/logger"
	"github.com/encorelab/SCORE/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLL STUDENT COMMAND
// Associates a student with a run/period. Enrollments into the same run
// contend on the run's version token, so the whole operation runs inside a
// bounded conflict-retry loop: version mismatches are reattempted up to the
// configured ceiling, business-rule violations stop immediately.
// ══════════════════════════════════════════════════════════════════════════════

// EnrollStudentCommand contains the data to register a student into a run.
type EnrollStudentCommand struct {
	// UserID is the ID of the acting student.
	UserID string

	// RunCode is the human code of the run.
	RunCode string

	// PeriodName is the name of the period within the run.
	PeriodName string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c EnrollStudentCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("enroll_student: user_id is required")
	}
	if c.RunCode == "" {
		return errors.New("enroll_student: run_code is required")
	}
	if c.PeriodName == "" {
		return errors.New("enroll_student: period_name is required")
	}
	return nil
}

// EnrollStudentResult contains the result of a successful enrollment.
type EnrollStudentResult struct {
	// Run is the run the student was associated with.
	Run *run.Run

	// Record is the created enrollment record.
	Record *enrollment.Record

	// Attempts is how many attempts the enrollment took.
	Attempts int

	// Events contains domain events generated.
	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// EnrollStudentHandler handles the EnrollStudentCommand.
type EnrollStudentHandler struct {
	userRepo       user.Repository
	ledger         *enrollment.Ledger
	eventPublisher shared.EventPublisher
	retrier        *retry.Retrier
	maxAttempts    int
	log            *logger.Logger
}

// NewEnrollStudentHandler creates a new EnrollStudentHandler.
// maxAttempts is the conflict-retry ceiling; values <= 0 fall back to 100.
func NewEnrollStudentHandler(
	userRepo user.Repository,
	ledger *enrollment.Ledger,
	eventPublisher shared.EventPublisher,
	maxAttempts int,
	log *logger.Logger,
) *EnrollStudentHandler {
	if maxAttempts <= 0 {
		maxAttempts = 100
	}
	return &EnrollStudentHandler{
		userRepo:       userRepo,
		ledger:         ledger,
		eventPublisher: eventPublisher,
		retrier:        retry.ConflictRetrier(maxAttempts, shared.IsWriteConflict),
		maxAttempts:    maxAttempts,
		log:            log,
	}
}

// Handle executes the enroll student command.
func (h *EnrollStudentHandler) Handle(ctx context.Context, cmd EnrollStudentCommand) (*EnrollStudentResult, error) {
	// Validate command
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("enroll_student: validation failed: %w", err)
	}

	// Resolve the acting student
	actor, err := h.userRepo.GetByID(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("enroll_student: acting user: %w", err)
	}

	key := run.NewEnrollmentKey(cmd.RunCode, cmd.PeriodName)

	result := &EnrollStudentResult{
		Events: make([]shared.Event, 0),
	}

	// Each attempt re-reads the run and replays the full precondition chain,
	// so a loser of a version race revalidates against current state.
	attempts := 0
	err = h.retrier.Do(ctx, func(ctx context.Context) error {
		attempts++
		r, rec, enrollErr := h.ledger.Enroll(ctx, actor, key, time.Now().UTC())
		if enrollErr != nil {
			return enrollErr
		}
		result.Run = r
		result.Record = rec
		return nil
	})
	result.Attempts = attempts

	if err != nil {
		if shared.IsWriteConflict(err) {
			// Ceiling exhausted: terminal generic failure, never confused
			// with a business-rule error.
			h.log.Error("enrollment retry ceiling exhausted",
				logger.UserID(cmd.UserID),
				logger.Runcode(cmd.RunCode),
				logger.Attempt(attempts),
			)
			return nil, shared.ErrEnrollmentFailed
		}
		return nil, err
	}

	h.log.Info("student enrolled",
		logger.UserID(cmd.UserID),
		logger.RunID(result.Run.ID),
		logger.PeriodName(cmd.PeriodName),
		logger.Attempt(attempts),
	)

	// Emit event (best-effort bookkeeping)
	event := shared.NewStudentEnrolledEvent(
		result.Run.ID,
		result.Run.Runcode.String(),
		cmd.PeriodName,
		cmd.UserID,
	)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	result.Events = append(result.Events, event)
	_ = h.eventPublisher.Publish(event)

	return result, nil
}
