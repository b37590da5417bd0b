// Package attendance contains the append-only attendance log: one immutable
// entry per launch event, preserved in timestamp order for later audit.
package attendance

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrEntryNotFound - the attendance entry does not exist.
var ErrEntryNotFound = errors.New("attendance entry not found")

// Entry is one attendance record for a workgroup+run pair. Never mutated
// after creation. Multiple entries per workgroup/run are expected - one per
// launch event.
type Entry struct {
	// ID - internal unique identifier (UUID in string form).
	ID string

	// WorkgroupID / RunID - the pair the entry belongs to.
	WorkgroupID string
	RunID       string

	// LoginTimestamp - when the launch happened.
	LoginTimestamp time.Time

	// PresentUserIDs / AbsentUserIDs - who was there and who was not.
	PresentUserIDs []string
	AbsentUserIDs  []string
}

// NewEntryParams contains parameters for creating an attendance entry.
type NewEntryParams struct {
	ID             string
	WorkgroupID    string
	RunID          string
	LoginTimestamp time.Time
	PresentUserIDs []string
	AbsentUserIDs  []string
}

// NewEntry creates an attendance entry. Present/absent id sets are
// deduplicated and stored sorted.
func NewEntry(params NewEntryParams) (*Entry, error) {
	if params.ID == "" {
		return nil, errors.New("attendance id is required")
	}
	if params.WorkgroupID == "" || params.RunID == "" {
		return nil, errors.New("attendance requires workgroup id and run id")
	}

	ts := params.LoginTimestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return &Entry{
		ID:             params.ID,
		WorkgroupID:    params.WorkgroupID,
		RunID:          params.RunID,
		LoginTimestamp: ts,
		PresentUserIDs: dedupe(params.PresentUserIDs),
		AbsentUserIDs:  dedupe(params.AbsentUserIDs),
	}, nil
}

func dedupe(ids []string) []string {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// String returns a string representation for logging.
func (e *Entry) String() string {
	return fmt.Sprintf("Attendance{ID: %s, WorkgroupID: %s, RunID: %s, Present: %d, Absent: %d}",
		e.ID, e.WorkgroupID, e.RunID, len(e.PresentUserIDs), len(e.AbsentUserIDs))
}
