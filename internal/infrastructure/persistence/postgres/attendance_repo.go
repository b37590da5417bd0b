package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/encorelab/SCORE/internal/domain/attendance"
)

// AttendanceRepository implements attendance.Repository using PostgreSQL.
// Append-only: entries are never updated or deleted.
type AttendanceRepository struct {
	conn *Connection
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository.
func NewAttendanceRepository(conn *Connection) *AttendanceRepository {
	return &AttendanceRepository{conn: conn}
}

// Append persists an entry. No uniqueness constraint applies.
func (r *AttendanceRepository) Append(ctx context.Context, entry *attendance.Entry) error {
	query := `
		INSERT INTO attendance_entries (id, workgroup_id, run_id, login_timestamp, present_user_ids, absent_user_ids)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.conn.Exec(ctx, query,
		entry.ID,
		entry.WorkgroupID,
		entry.RunID,
		entry.LoginTimestamp,
		entry.PresentUserIDs,
		entry.AbsentUserIDs,
	)
	if err != nil {
		return fmt.Errorf("failed to append attendance entry: %w", err)
	}

	return nil
}

// GetByRun returns all entries of a run in timestamp order.
func (r *AttendanceRepository) GetByRun(ctx context.Context, runID string) ([]*attendance.Entry, error) {
	query := `
		SELECT id, workgroup_id, run_id, login_timestamp, present_user_ids, absent_user_ids
		FROM attendance_entries
		WHERE run_id = $1
		ORDER BY login_timestamp, id`

	rows, err := r.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance by run: %w", err)
	}
	defer rows.Close()

	return r.scanEntries(rows)
}

// GetByWorkgroup returns all entries of a workgroup in timestamp order.
func (r *AttendanceRepository) GetByWorkgroup(ctx context.Context, workgroupID string) ([]*attendance.Entry, error) {
	query := `
		SELECT id, workgroup_id, run_id, login_timestamp, present_user_ids, absent_user_ids
		FROM attendance_entries
		WHERE workgroup_id = $1
		ORDER BY login_timestamp, id`

	rows, err := r.conn.Query(ctx, query, workgroupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance by workgroup: %w", err)
	}
	defer rows.Close()

	return r.scanEntries(rows)
}

func (r *AttendanceRepository) scanEntries(rows pgx.Rows) ([]*attendance.Entry, error) {
	var entries []*attendance.Entry
	for rows.Next() {
		var e attendance.Entry
		err := rows.Scan(
			&e.ID,
			&e.WorkgroupID,
			&e.RunID,
			&e.LoginTimestamp,
			&e.PresentUserIDs,
			&e.AbsentUserIDs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendance row: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
