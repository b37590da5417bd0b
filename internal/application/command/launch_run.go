package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/encorelab/SCORE/internal/domain/attendance"
	"github.com/encorelab/SCORE/internal/domain/enrollment"
	"github.com/encorelab/SCORE/internal/domain/run"
	"github.com/encorelab/SCORE/internal/domain/shared"
	"github.com/encorelab/SCORE/internal/domain/user"
	"github.com/encorelab/SCORE/internal/domain/workgroup"
	"github.com/encorelab/SCORE/pkg/logger"
	"github.com/encorelab/SCORE/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// LAUNCH RUN COMMAND
// Resolves or creates the workgroup for a set of present students, enrolls
// stragglers, records attendance, and hands back the start-project URL.
// Workgroup resolution tolerates benign duplicate-creation races by
// re-checking for an existing workgroup instead of assuming exclusive
// creation rights.
// ══════════════════════════════════════════════════════════════════════════════

// LaunchURLBuilder produces the continuation URL for a launched workgroup.
// The project-side service that consumes the URL is an external collaborator.
type LaunchURLBuilder interface {
	StartProjectURL(ctx context.Context, r *run.Run, wg *workgroup.Workgroup) (string, error)
}

// LaunchRunCommand contains the data to launch a run for a set of students.
type LaunchRunCommand struct {
	// ActingUserID is the ID of the signed-in student driving the launch.
	ActingUserID string

	// RunID is the internal ID of the run.
	RunID string

	// WorkgroupID optionally names the workgroup to join directly.
	WorkgroupID string

	// PresentUserIDs are the students physically present at the device.
	PresentUserIDs []string

	// AbsentUserIDs are the known-absent teammates.
	AbsentUserIDs []string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c LaunchRunCommand) Validate() error {
	if c.ActingUserID == "" {
		return errors.New("launch_run: acting_user_id is required")
	}
	if c.RunID == "" {
		return errors.New("launch_run: run_id is required")
	}
	if len(c.PresentUserIDs) == 0 {
		return errors.New("launch_run: at least one present user is required")
	}
	return nil
}

// LaunchRunResult contains the result of a successful launch.
type LaunchRunResult struct {
	// Workgroup is the resolved or created workgroup.
	Workgroup *workgroup.Workgroup

	// WorkgroupCreated is true if this launch created the workgroup.
	WorkgroupCreated bool

	// AddedMemberIDs are the students admitted by this launch.
	AddedMemberIDs []string

	// StartProjectURL is the continuation URL for the client.
	StartProjectURL string

	// Events contains domain events generated.
	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// LaunchRunHandler handles the LaunchRunCommand.
type LaunchRunHandler struct {
	runRepo        run.Repository
	userRepo       user.Repository
	workgroupRepo  workgroup.Repository
	attendanceRepo attendance.Repository
	ledger         *enrollment.Ledger
	urlBuilder     LaunchURLBuilder
	eventPublisher shared.EventPublisher
	retrier        *retry.Retrier
	newID          enrollment.IDGenerator
	log            *logger.Logger
}

// NewLaunchRunHandler creates a new LaunchRunHandler.
// maxAttempts bounds the conflict retries of the embedded enrollments.
func NewLaunchRunHandler(
	runRepo run.Repository,
	userRepo user.Repository,
	workgroupRepo workgroup.Repository,
	attendanceRepo attendance.Repository,
	ledger *enrollment.Ledger,
	urlBuilder LaunchURLBuilder,
	eventPublisher shared.EventPublisher,
	maxAttempts int,
	newID enrollment.IDGenerator,
	log *logger.Logger,
) *LaunchRunHandler {
	if maxAttempts <= 0 {
		maxAttempts = 100
	}
	return &LaunchRunHandler{
		runRepo:        runRepo,
		userRepo:       userRepo,
		workgroupRepo:  workgroupRepo,
		attendanceRepo: attendanceRepo,
		ledger:         ledger,
		urlBuilder:     urlBuilder,
		eventPublisher: eventPublisher,
		retrier:        retry.ConflictRetrier(maxAttempts, shared.IsWriteConflict),
		newID:          newID,
		log:            log,
	}
}

// Handle executes the launch run command.
func (h *LaunchRunHandler) Handle(ctx context.Context, cmd LaunchRunCommand) (*LaunchRunResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("launch_run: validation failed: %w", err)
	}

	r, err := h.runRepo.GetByID(ctx, cmd.RunID)
	if err != nil {
		return nil, fmt.Errorf("launch_run: run: %w", err)
	}

	actor, err := h.userRepo.GetByID(ctx, cmd.ActingUserID)
	if err != nil {
		return nil, fmt.Errorf("launch_run: acting user: %w", err)
	}

	// All present students must exist; an unknown id fails the launch.
	present, err := h.userRepo.GetByIDs(ctx, cmd.PresentUserIDs)
	if err != nil {
		return nil, fmt.Errorf("launch_run: present users: %w", err)
	}

	result := &LaunchRunResult{
		Events: make([]shared.Event, 0),
	}

	wg, err := h.resolveWorkgroup(ctx, cmd, r, actor, present)
	if err != nil {
		return nil, err
	}
	result.Workgroup = wg.target
	result.WorkgroupCreated = wg.created
	result.AddedMemberIDs = wg.added

	if wg.created {
		event := shared.NewWorkgroupCreatedEvent(
			wg.target.ID, r.ID, wg.target.PeriodName, wg.target.MemberIDs(),
		)
		if cmd.CorrelationID != "" {
			event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		}
		result.Events = append(result.Events, event)
		_ = h.eventPublisher.Publish(event)
	} else if len(wg.added) > 0 {
		event := shared.NewWorkgroupMembersAddedEvent(
			wg.target.ID, r.ID, wg.added, wg.target.Size(),
		)
		if cmd.CorrelationID != "" {
			event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		}
		result.Events = append(result.Events, event)
		_ = h.eventPublisher.Publish(event)
	}

	// Enroll any present student not yet associated with the run. A hard
	// enrollment failure aborts the launch; membership changes already made
	// above are not rolled back.
	if err := h.enrollStragglers(ctx, r, wg.target, present); err != nil {
		return nil, err
	}

	// Attendance and statistics are best-effort bookkeeping and only happen
	// while the run is live.
	now := time.Now().UTC()
	if !r.HasEnded(now) {
		h.recordAttendance(ctx, cmd, r, wg.target, now, result)
	}

	url, err := h.urlBuilder.StartProjectURL(ctx, r, wg.target)
	if err != nil {
		return nil, fmt.Errorf("launch_run: start project url: %w", err)
	}
	result.StartProjectURL = url

	h.log.Info("run launched",
		logger.RunID(r.ID),
		logger.WorkgroupID(wg.target.ID),
		logger.Int("present", len(cmd.PresentUserIDs)),
		logger.Int("absent", len(cmd.AbsentUserIDs)),
		logger.Bool("workgroup_created", wg.created),
	)

	return result, nil
}

// resolvedWorkgroup is the outcome of workgroup resolution.
type resolvedWorkgroup struct {
	target  *workgroup.Workgroup
	created bool
	added   []string
}

// resolveWorkgroup finds the workgroup the present students belong to, or
// creates one scoped to the acting student's period. When present students
// belong to different existing workgroups, the one with the smallest id wins;
// the choice is deterministic so repeated launches converge on one team.
// A student is in at most one workgroup per run: a named target must belong
// to the run and must not poach members of other teams, and the implicit
// path never admits a student into a second team.
func (h *LaunchRunHandler) resolveWorkgroup(
	ctx context.Context,
	cmd LaunchRunCommand,
	r *run.Run,
	actor *user.User,
	present []*user.User,
) (*resolvedWorkgroup, error) {
	groupsByUser := make(map[string][]*workgroup.Workgroup, len(present))
	for _, p := range present {
		groups, err := h.workgroupRepo.FindByRunAndUser(ctx, r.ID, p.ID)
		if err != nil {
			return nil, fmt.Errorf("launch_run: find workgroup: %w", err)
		}
		groupsByUser[p.ID] = groups
	}

	var target *workgroup.Workgroup

	if cmd.WorkgroupID != "" {
		wg, err := h.workgroupRepo.GetByID(ctx, cmd.WorkgroupID)
		if err != nil {
			return nil, fmt.Errorf("launch_run: workgroup: %w", err)
		}
		if wg.RunID != r.ID {
			return nil, fmt.Errorf("launch_run: workgroup: %w", workgroup.ErrWorkgroupNotFound)
		}
		for _, p := range present {
			for _, g := range groupsByUser[p.ID] {
				if g.ID != wg.ID {
					return nil, &workgroup.MembershipError{UserID: p.ID, WorkgroupID: g.ID}
				}
			}
		}
		target = wg
	} else {
		for _, p := range present {
			for _, g := range groupsByUser[p.ID] {
				if target == nil || g.ID < target.ID {
					target = g
				}
			}
		}
	}

	presentIDs := make([]string, 0, len(present))
	for _, p := range present {
		presentIDs = append(presentIDs, p.ID)
	}

	if target == nil {
		// No existing workgroup: the acting student must already be
		// associated with the run, and their period scopes the new team.
		associated, err := h.ledger.IsAssociated(ctx, r.ID, actor.ID)
		if err != nil {
			return nil, fmt.Errorf("launch_run: association check: %w", err)
		}
		if !associated {
			return nil, shared.ErrActingUserNotAssociated
		}

		rec, err := h.ledger.RecordFor(ctx, r.ID, actor.ID)
		if err != nil {
			return nil, fmt.Errorf("launch_run: acting user record: %w", err)
		}

		wg, err := workgroup.New(workgroup.NewParams{
			ID:         h.newID(),
			Name:       fmt.Sprintf("Team %s", actor.FirstName),
			RunID:      r.ID,
			PeriodID:   rec.PeriodID,
			PeriodName: rec.PeriodName,
			MemberIDs:  presentIDs,
			MaxSize:    r.MaxWorkgroupSize,
		})
		if err != nil {
			if errors.Is(err, workgroup.ErrCapacityExceeded) {
				return nil, &workgroup.CapacityError{WorkgroupID: ""}
			}
			return nil, fmt.Errorf("launch_run: create workgroup: %w", err)
		}
		if err := h.workgroupRepo.Create(ctx, wg); err != nil {
			return nil, fmt.Errorf("launch_run: save workgroup: %w", err)
		}
		return &resolvedWorkgroup{target: wg, created: true, added: wg.MemberIDs()}, nil
	}

	// Existing workgroup: admit the present students not yet in it. A student
	// already on another team stays there instead of joining a second one.
	// No partial admission: over-capacity leaves the member set untouched.
	admissible := make([]string, 0, len(present))
	for _, p := range present {
		elsewhere := false
		for _, g := range groupsByUser[p.ID] {
			if g.ID != target.ID {
				elsewhere = true
				break
			}
		}
		if !elsewhere {
			admissible = append(admissible, p.ID)
		}
	}

	newMembers := target.NewMembers(admissible)
	if len(newMembers) == 0 {
		return &resolvedWorkgroup{target: target}, nil
	}

	expectedVersion := target.Version
	if err := target.AddMembers(admissible, r.MaxWorkgroupSize); err != nil {
		if errors.Is(err, workgroup.ErrCapacityExceeded) {
			return nil, &workgroup.CapacityError{WorkgroupID: target.ID}
		}
		return nil, fmt.Errorf("launch_run: add members: %w", err)
	}
	if err := h.workgroupRepo.AddMembers(ctx, target, newMembers, expectedVersion); err != nil {
		return nil, fmt.Errorf("launch_run: save members: %w", err)
	}

	return &resolvedWorkgroup{target: target, added: newMembers}, nil
}

// enrollStragglers associates present students with the run if they are not
// yet. Each enrollment runs inside the conflict-retry loop; a racing duplicate
// counts as already done.
func (h *LaunchRunHandler) enrollStragglers(
	ctx context.Context,
	r *run.Run,
	wg *workgroup.Workgroup,
	present []*user.User,
) error {
	key := run.NewEnrollmentKey(r.Runcode.String(), wg.PeriodName)

	for _, p := range present {
		associated, err := h.ledger.IsAssociated(ctx, r.ID, p.ID)
		if err != nil {
			return fmt.Errorf("launch_run: association check: %w", err)
		}
		if associated {
			continue
		}

		err = h.retrier.Do(ctx, func(ctx context.Context) error {
			_, _, enrollErr := h.ledger.Enroll(ctx, p, key, time.Now().UTC())
			return enrollErr
		})
		if err != nil {
			if errors.Is(err, enrollment.ErrAlreadyEnrolled) {
				// Lost a race against the student's own device. Done either way.
				continue
			}
			if shared.IsWriteConflict(err) {
				return shared.ErrEnrollmentFailed
			}
			return fmt.Errorf("launch_run: enroll %s: %w", p.ID, err)
		}
	}
	return nil
}

// recordAttendance appends the attendance entry and publishes the launch
// event. Failures are logged, never surfaced: bookkeeping must not fail a
// launch that already committed its membership changes.
func (h *LaunchRunHandler) recordAttendance(
	ctx context.Context,
	cmd LaunchRunCommand,
	r *run.Run,
	wg *workgroup.Workgroup,
	now time.Time,
	result *LaunchRunResult,
) {
	entry, err := attendance.NewEntry(attendance.NewEntryParams{
		ID:             h.newID(),
		WorkgroupID:    wg.ID,
		RunID:          r.ID,
		LoginTimestamp: now,
		PresentUserIDs: cmd.PresentUserIDs,
		AbsentUserIDs:  cmd.AbsentUserIDs,
	})
	if err != nil {
		h.log.Error("attendance entry rejected", logger.Err(err), logger.WorkgroupID(wg.ID))
		return
	}
	if err := h.attendanceRepo.Append(ctx, entry); err != nil {
		h.log.Error("attendance write failed", logger.Err(err), logger.WorkgroupID(wg.ID))
		return
	}

	recorded := shared.NewAttendanceRecordedEvent(
		entry.ID, wg.ID, r.ID, len(entry.PresentUserIDs), len(entry.AbsentUserIDs),
	)
	result.Events = append(result.Events, recorded)
	_ = h.eventPublisher.Publish(recorded)

	launched := shared.NewRunLaunchedEvent(r.ID, wg.ID, entry.PresentUserIDs, entry.AbsentUserIDs)
	if cmd.CorrelationID != "" {
		launched.BaseEvent = launched.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	result.Events = append(result.Events, launched)
	_ = h.eventPublisher.Publish(launched)
}
