package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/encorelab/SCORE/internal/domain/attendance"
	"github.com/encorelab/SCORE/internal/domain/user"
	"github.com/encorelab/SCORE/pkg/timeutil"
)

// AttendanceExporter renders a run's attendance log as an XLSX workbook for
// teachers. One row per log entry, timestamps in the school timezone.
type AttendanceExporter struct {
	userRepo user.Repository
}

// NewAttendanceExporter creates a new attendance exporter.
func NewAttendanceExporter(userRepo user.Repository) *AttendanceExporter {
	return &AttendanceExporter{userRepo: userRepo}
}

var exportHeader = []string{"Date", "Time", "Workgroup", "Present", "Absent"}

// Export writes the workbook to w. Entries are expected in timestamp order,
// as the attendance repository returns them.
func (e *AttendanceExporter) Export(ctx context.Context, runID string, entries []*attendance.Entry, w io.Writer) error {
	names, err := e.resolveNames(ctx, entries)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	sheet := "Attendance"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("service: failed to name sheet: %w", err)
	}

	for col, title := range exportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("service: failed to build cell name: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return fmt.Errorf("service: failed to write header: %w", err)
		}
	}

	for i, entry := range entries {
		values := []interface{}{
			timeutil.FormatDateStr(entry.LoginTimestamp),
			timeutil.FormatSchool(entry.LoginTimestamp, timeutil.FormatTime),
			entry.WorkgroupID,
			joinNames(entry.PresentUserIDs, names),
			joinNames(entry.AbsentUserIDs, names),
		}

		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return fmt.Errorf("service: failed to build cell name: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("service: failed to write row: %w", err)
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("service: failed to write workbook for run %s: %w", runID, err)
	}

	return nil
}

// resolveNames looks up display names for every user id appearing in the log.
// Ids of deleted accounts fall back to the raw id.
func (e *AttendanceExporter) resolveNames(ctx context.Context, entries []*attendance.Entry) (map[string]string, error) {
	seen := make(map[string]struct{})
	var ids []string
	for _, entry := range entries {
		for _, id := range append(entry.PresentUserIDs, entry.AbsentUserIDs...) {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	users, err := e.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		// A deleted account must not break the audit export.
		if errors.Is(err, user.ErrUserNotFound) {
			return names, nil
		}
		return nil, fmt.Errorf("service: failed to resolve users: %w", err)
	}

	for _, u := range users {
		names[u.ID] = u.FullName()
	}

	return names, nil
}

func joinNames(ids []string, names map[string]string) string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := names[id]; ok && name != "" {
			out = append(out, name)
			continue
		}
		out = append(out, id)
	}
	return strings.Join(out, ", ")
}
