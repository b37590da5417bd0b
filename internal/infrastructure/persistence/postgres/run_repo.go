package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/encorelab/SCORE/internal/domain/run"
)

// RunRepository implements run.Repository using PostgreSQL.
type RunRepository struct {
	conn *Connection
}

// NewRunRepository creates a new PostgreSQL run repository.
func NewRunRepository(conn *Connection) *RunRepository {
	return &RunRepository{conn: conn}
}

const runColumns = `id, name, runcode, max_workgroup_size, start_time, end_time,
	owner_id, student_count, version, created_at, updated_at`

// GetByCode returns a run by its runcode.
func (r *RunRepository) GetByCode(ctx context.Context, code run.Runcode) (*run.Run, error) {
	query := fmt.Sprintf(`SELECT %s FROM runs WHERE runcode = $1`, runColumns)

	row := r.conn.QueryRow(ctx, query, code.String())
	rn, err := r.scanRun(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, run.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run by code: %w", err)
	}

	if err := r.loadPeriods(ctx, []*run.Run{rn}); err != nil {
		return nil, err
	}

	return rn, nil
}

// GetByID returns a run by internal ID.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*run.Run, error) {
	query := fmt.Sprintf(`SELECT %s FROM runs WHERE id = $1`, runColumns)

	row := r.conn.QueryRow(ctx, query, id)
	rn, err := r.scanRun(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, run.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run by id: %w", err)
	}

	if err := r.loadPeriods(ctx, []*run.Run{rn}); err != nil {
		return nil, err
	}

	return rn, nil
}

// GetByOwner returns runs owned by a teacher.
func (r *RunRepository) GetByOwner(ctx context.Context, ownerID string) ([]*run.Run, error) {
	query := fmt.Sprintf(`SELECT %s FROM runs WHERE owner_id = $1 ORDER BY created_at DESC`, runColumns)

	rows, err := r.conn.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs by owner: %w", err)
	}
	defer rows.Close()

	runs, err := r.scanRuns(rows)
	if err != nil {
		return nil, err
	}

	if err := r.loadPeriods(ctx, runs); err != nil {
		return nil, err
	}

	return runs, nil
}

// GetByStudent returns runs a student is associated with, newest first.
func (r *RunRepository) GetByStudent(ctx context.Context, userID string) ([]*run.Run, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM runs
		WHERE id IN (SELECT run_id FROM enrollments WHERE user_id = $1)
		ORDER BY start_time DESC, created_at DESC`,
		runColumns)

	rows, err := r.conn.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs by student: %w", err)
	}
	defer rows.Close()

	runs, err := r.scanRuns(rows)
	if err != nil {
		return nil, err
	}

	if err := r.loadPeriods(ctx, runs); err != nil {
		return nil, err
	}

	return runs, nil
}

// ListIDs returns the ids of all runs. Used by the stats reconciliation job.
func (r *RunRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.conn.Query(ctx, `SELECT id FROM runs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list run ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan run id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Scan helpers
// ─────────────────────────────────────────────────────────────────────────────

func (r *RunRepository) scanRun(row pgx.Row) (*run.Run, error) {
	var rn run.Run
	var code string
	var startTime, endTime *time.Time

	err := row.Scan(
		&rn.ID,
		&rn.Name,
		&code,
		&rn.MaxWorkgroupSize,
		&startTime,
		&endTime,
		&rn.OwnerID,
		&rn.StudentCount,
		&rn.Version,
		&rn.CreatedAt,
		&rn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rn.Runcode = run.Runcode(code)
	if startTime != nil {
		rn.StartTime = *startTime
	}
	if endTime != nil {
		rn.EndTime = *endTime
	}

	return &rn, nil
}

func (r *RunRepository) scanRuns(rows pgx.Rows) ([]*run.Run, error) {
	var runs []*run.Run
	for rows.Next() {
		rn, err := r.scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, rn)
	}
	return runs, rows.Err()
}

// loadPeriods attaches periods to the given runs in roster order.
func (r *RunRepository) loadPeriods(ctx context.Context, runs []*run.Run) error {
	if len(runs) == 0 {
		return nil
	}

	byID := make(map[string]*run.Run, len(runs))
	placeholders := make([]string, 0, len(runs))
	args := make([]interface{}, 0, len(runs))
	for i, rn := range runs {
		byID[rn.ID] = rn
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, rn.ID)
	}

	query := fmt.Sprintf(`
		SELECT id, run_id, name FROM periods
		WHERE run_id IN (%s)
		ORDER BY run_id, position, name`,
		strings.Join(placeholders, ", "))

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query periods: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p run.Period
		var runID string
		if err := rows.Scan(&p.ID, &runID, &p.Name); err != nil {
			return fmt.Errorf("failed to scan period row: %w", err)
		}
		if rn, ok := byID[runID]; ok {
			rn.Periods = append(rn.Periods, p)
		}
	}

	return rows.Err()
}
