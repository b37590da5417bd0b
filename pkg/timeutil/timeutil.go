// Package timeutil provides timezone-aware helpers for a configurable school
// timezone. Runs start and end on teacher wall-clock time, so run lifecycle
// checks and attendance reports bucket days in the school zone, not UTC.
// No external dependencies - uses only standard library.
package timeutil

import (
	"sync/atomic"
	"time"
)

// schoolTZ holds the active school timezone. Defaults to UTC until
// Configure is called at startup.
var schoolTZ atomic.Pointer[time.Location]

func init() {
	schoolTZ.Store(time.UTC)
}

// Configure sets the school timezone by IANA name (e.g. "America/New_York").
// Call once at startup before any time bucketing happens.
func Configure(name string) error {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return err
	}
	schoolTZ.Store(loc)
	return nil
}

// Zone returns the active school timezone.
func Zone() *time.Location {
	return schoolTZ.Load()
}

// Now returns the current time in the school timezone.
func Now() time.Time {
	return time.Now().In(Zone())
}

// ToSchool converts a time to the school timezone.
func ToSchool(t time.Time) time.Time {
	return t.In(Zone())
}

// ToUTC converts a time to UTC.
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}

// Date creates a time in the school timezone with the given date.
func Date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, Zone())
}

// DateTime creates a time in the school timezone with the given date and time.
func DateTime(year, month, day, hour, min, sec int) time.Time {
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, Zone())
}

// StartOfDay returns the start of the day (00:00:00) in the school timezone.
func StartOfDay(t time.Time) time.Time {
	local := ToSchool(t)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, Zone())
}

// EndOfDay returns the end of the day (23:59:59.999999999) in the school timezone.
func EndOfDay(t time.Time) time.Time {
	local := ToSchool(t)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 999999999, Zone())
}

// StartOfWeek returns the start of the week (Monday 00:00:00) in the school timezone.
func StartOfWeek(t time.Time) time.Time {
	local := ToSchool(t)
	weekday := int(local.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	daysToSubtract := weekday - 1 // Monday = 1
	return StartOfDay(local.AddDate(0, 0, -daysToSubtract))
}

// EndOfWeek returns the end of the week (Sunday 23:59:59) in the school timezone.
func EndOfWeek(t time.Time) time.Time {
	start := StartOfWeek(t)
	return EndOfDay(start.AddDate(0, 0, 6))
}

// IsSameDay checks if two times are on the same day in the school timezone.
func IsSameDay(t1, t2 time.Time) bool {
	a1, a2 := ToSchool(t1), ToSchool(t2)
	return a1.Year() == a2.Year() && a1.YearDay() == a2.YearDay()
}

// DaysBetween calculates the number of days between two times.
func DaysBetween(t1, t2 time.Time) int {
	a1 := StartOfDay(t1)
	a2 := StartOfDay(t2)
	duration := a2.Sub(a1)
	days := int(duration.Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// Common date/time formats for attendance reports.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatTime is the standard time format (HH:MM).
	FormatTime = "15:04"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
	// FormatDateTimeSeconds includes seconds.
	FormatDateTimeSeconds = "2006-01-02 15:04:05"
)

// FormatSchool formats a time in the school timezone with the given layout.
func FormatSchool(t time.Time, layout string) string {
	return ToSchool(t).Format(layout)
}

// FormatDateStr formats a time as a date string (YYYY-MM-DD) in the school timezone.
func FormatDateStr(t time.Time) string {
	return FormatSchool(t, FormatDate)
}

// FormatDateTimeStr formats a time as datetime string in the school timezone.
func FormatDateTimeStr(t time.Time) string {
	return FormatSchool(t, FormatDateTimeSeconds)
}

// ParseSchool parses a time string in the school timezone.
func ParseSchool(layout, value string) (time.Time, error) {
	return time.ParseInLocation(layout, value, Zone())
}

// ParseDateSchool parses a date string (YYYY-MM-DD) in the school timezone.
func ParseDateSchool(value string) (time.Time, error) {
	return ParseSchool(FormatDate, value)
}
