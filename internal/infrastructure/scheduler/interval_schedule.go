package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule fires at a fixed interval.
type IntervalSchedule struct {
	interval time.Duration
}

// Every creates a schedule that fires every interval. Intervals below one
// second are clamped to one second.
func Every(interval time.Duration) IntervalSchedule {
	if interval < time.Second {
		interval = time.Second
	}
	return IntervalSchedule{interval: interval}
}

// Next returns the next fire time after t.
func (s IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.interval)
}

// String returns a human-readable schedule description.
func (s IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.interval)
}
