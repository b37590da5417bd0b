// Package shared contains common domain types, errors, and events that are
// used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each event represents something significant that
// happened in the enrollment/workgroup domain; subscribers keep the
// run-statistics read model fresh without blocking the write path.
const (
	// Enrollment events
	EventStudentEnrolled EventType = "enrollment.student_enrolled"

	// Workgroup events
	EventWorkgroupCreated      EventType = "workgroup.created"
	EventWorkgroupMembersAdded EventType = "workgroup.members_added"

	// Run events
	EventRunLaunched EventType = "run.launched"

	// Attendance events
	EventAttendanceRecorded EventType = "attendance.recorded"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// EventPublisher publishes domain events to interested subscribers.
// Publishing is best-effort bookkeeping: implementations must never let a
// slow subscriber fail the producing operation.
type EventPublisher interface {
	Publish(event Event) error
}

// EventHandler processes a single domain event.
type EventHandler func(event Event) error

// EventBus is a publisher that also manages subscriptions.
type EventBus interface {
	EventPublisher

	// Subscribe registers a handler for a specific event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error

	// Close shuts the bus down, waiting for in-flight handlers.
	Close() error
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Enrollment Events
// ═══════════════════════════════════════════════════════════════════════════

// StudentEnrolledEvent is emitted when a student is associated with a run.
// The aggregate is the run, since the run's counters are what changed.
type StudentEnrolledEvent struct {
	BaseEvent
	RunID      string `json:"run_id"`
	Runcode    string `json:"runcode"`
	PeriodName string `json:"period_name"`
	UserID     string `json:"user_id"`
}

// Payload implements Event interface.
func (e StudentEnrolledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"run_id":      e.RunID,
		"runcode":     e.Runcode,
		"period_name": e.PeriodName,
		"user_id":     e.UserID,
	}
}

// NewStudentEnrolledEvent creates a new StudentEnrolledEvent.
func NewStudentEnrolledEvent(runID, runcode, periodName, userID string) StudentEnrolledEvent {
	return StudentEnrolledEvent{
		BaseEvent:  NewBaseEvent(EventStudentEnrolled, runID),
		RunID:      runID,
		Runcode:    runcode,
		PeriodName: periodName,
		UserID:     userID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Workgroup Events
// ═══════════════════════════════════════════════════════════════════════════

// WorkgroupCreatedEvent is emitted when a workgroup is created for a run.
type WorkgroupCreatedEvent struct {
	BaseEvent
	RunID      string   `json:"run_id"`
	PeriodName string   `json:"period_name"`
	MemberIDs  []string `json:"member_ids"`
}

// Payload implements Event interface.
func (e WorkgroupCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"run_id":      e.RunID,
		"period_name": e.PeriodName,
		"member_ids":  e.MemberIDs,
	}
}

// NewWorkgroupCreatedEvent creates a new WorkgroupCreatedEvent.
func NewWorkgroupCreatedEvent(workgroupID, runID, periodName string, memberIDs []string) WorkgroupCreatedEvent {
	return WorkgroupCreatedEvent{
		BaseEvent:  NewBaseEvent(EventWorkgroupCreated, workgroupID),
		RunID:      runID,
		PeriodName: periodName,
		MemberIDs:  memberIDs,
	}
}

// WorkgroupMembersAddedEvent is emitted when students join an existing workgroup.
type WorkgroupMembersAddedEvent struct {
	BaseEvent
	RunID        string   `json:"run_id"`
	NewMemberIDs []string `json:"new_member_ids"`
	MemberCount  int      `json:"member_count"`
}

// Payload implements Event interface.
func (e WorkgroupMembersAddedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"run_id":         e.RunID,
		"new_member_ids": e.NewMemberIDs,
		"member_count":   e.MemberCount,
	}
}

// NewWorkgroupMembersAddedEvent creates a new WorkgroupMembersAddedEvent.
func NewWorkgroupMembersAddedEvent(workgroupID, runID string, newMemberIDs []string, memberCount int) WorkgroupMembersAddedEvent {
	return WorkgroupMembersAddedEvent{
		BaseEvent:    NewBaseEvent(EventWorkgroupMembersAdded, workgroupID),
		RunID:        runID,
		NewMemberIDs: newMemberIDs,
		MemberCount:  memberCount,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Run Events
// ═══════════════════════════════════════════════════════════════════════════

// RunLaunchedEvent is emitted after a successful launch, once attendance has
// been recorded. The run-statistics projection refreshes on this event.
type RunLaunchedEvent struct {
	BaseEvent
	WorkgroupID string   `json:"workgroup_id"`
	PresentIDs  []string `json:"present_ids"`
	AbsentIDs   []string `json:"absent_ids"`
}

// Payload implements Event interface.
func (e RunLaunchedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"workgroup_id": e.WorkgroupID,
		"present_ids":  e.PresentIDs,
		"absent_ids":   e.AbsentIDs,
	}
}

// NewRunLaunchedEvent creates a new RunLaunchedEvent.
func NewRunLaunchedEvent(runID, workgroupID string, presentIDs, absentIDs []string) RunLaunchedEvent {
	return RunLaunchedEvent{
		BaseEvent:   NewBaseEvent(EventRunLaunched, runID),
		WorkgroupID: workgroupID,
		PresentIDs:  presentIDs,
		AbsentIDs:   absentIDs,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Attendance Events
// ═══════════════════════════════════════════════════════════════════════════

// AttendanceRecordedEvent is emitted when an attendance entry is appended.
type AttendanceRecordedEvent struct {
	BaseEvent
	WorkgroupID  string `json:"workgroup_id"`
	RunID        string `json:"run_id"`
	PresentCount int    `json:"present_count"`
	AbsentCount  int    `json:"absent_count"`
}

// Payload implements Event interface.
func (e AttendanceRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"workgroup_id":  e.WorkgroupID,
		"run_id":        e.RunID,
		"present_count": e.PresentCount,
		"absent_count":  e.AbsentCount,
	}
}

// NewAttendanceRecordedEvent creates a new AttendanceRecordedEvent.
func NewAttendanceRecordedEvent(entryID, workgroupID, runID string, presentCount, absentCount int) AttendanceRecordedEvent {
	return AttendanceRecordedEvent{
		BaseEvent:    NewBaseEvent(EventAttendanceRecorded, entryID),
		WorkgroupID:  workgroupID,
		RunID:        runID,
		PresentCount: presentCount,
		AbsentCount:  absentCount,
	}
}
