package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/encorelab/SCORE/internal/domain/enrollment"
	"github.com/encorelab/SCORE/internal/domain/shared"
)

// EnrollmentRepository implements enrollment.Repository using PostgreSQL.
// Create runs the record insert and the run counter bump in one transaction so
// the ledger and the counter never drift apart.
type EnrollmentRepository struct {
	conn *Connection
}

// NewEnrollmentRepository creates a new PostgreSQL enrollment repository.
func NewEnrollmentRepository(conn *Connection) *EnrollmentRepository {
	return &EnrollmentRepository{conn: conn}
}

// Create persists the record and bumps the run's student counter in the same
// transaction. A stale run version aborts with shared.ErrOptimisticLock; a
// duplicate (run, user) pair aborts with enrollment.ErrAlreadyEnrolled.
func (r *EnrollmentRepository) Create(ctx context.Context, rec *enrollment.Record, expectedRunVersion int64) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		insert := `
			INSERT INTO enrollments (id, run_id, user_id, period_id, period_name, enrolled_at)
			VALUES ($1, $2, $3, $4, $5, $6)`

		var periodID *string
		if rec.PeriodID != "" {
			p := rec.PeriodID
			periodID = &p
		}

		_, err := tx.Exec(ctx, insert,
			rec.ID, rec.RunID, rec.UserID, periodID, rec.PeriodName, rec.EnrolledAt)
		if err != nil {
			if IsUniqueViolation(err) {
				return enrollment.ErrAlreadyEnrolled
			}
			return fmt.Errorf("failed to insert enrollment: %w", err)
		}

		bump := `
			UPDATE runs
			SET student_count = student_count + 1,
			    version = version + 1,
			    updated_at = NOW()
			WHERE id = $1 AND version = $2`

		tag, err := tx.Exec(ctx, bump, rec.RunID, expectedRunVersion)
		if err != nil {
			return fmt.Errorf("failed to bump run counter: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrWriteConflict
		}

		return nil
	})
}

// Exists reports whether a record exists for the (run, user) pair.
func (r *EnrollmentRepository) Exists(ctx context.Context, runID, userID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM enrollments WHERE run_id = $1 AND user_id = $2)`

	var exists bool
	if err := r.conn.QueryRow(ctx, query, runID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check enrollment: %w", err)
	}

	return exists, nil
}

// GetByRunAndUser returns the record for the pair, or enrollment.ErrNotEnrolled.
func (r *EnrollmentRepository) GetByRunAndUser(ctx context.Context, runID, userID string) (*enrollment.Record, error) {
	query := `
		SELECT id, run_id, user_id, period_id, period_name, enrolled_at
		FROM enrollments
		WHERE run_id = $1 AND user_id = $2`

	rec, err := r.scanRecord(r.conn.QueryRow(ctx, query, runID, userID))
	if err != nil {
		if IsNoRows(err) {
			return nil, enrollment.ErrNotEnrolled
		}
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}

	return rec, nil
}

// GetByRun returns all records of a run, oldest first.
func (r *EnrollmentRepository) GetByRun(ctx context.Context, runID string) ([]*enrollment.Record, error) {
	query := `
		SELECT id, run_id, user_id, period_id, period_name, enrolled_at
		FROM enrollments
		WHERE run_id = $1
		ORDER BY enrolled_at, id`

	rows, err := r.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrollments: %w", err)
	}
	defer rows.Close()

	var records []*enrollment.Record
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enrollment row: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// CountByRun returns the number of students associated with a run.
func (r *EnrollmentRepository) CountByRun(ctx context.Context, runID string) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM enrollments WHERE run_id = $1`, runID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count enrollments: %w", err)
	}

	return count, nil
}

func (r *EnrollmentRepository) scanRecord(row pgx.Row) (*enrollment.Record, error) {
	var rec enrollment.Record
	var periodID *string

	err := row.Scan(
		&rec.ID,
		&rec.RunID,
		&rec.UserID,
		&periodID,
		&rec.PeriodName,
		&rec.EnrolledAt,
	)
	if err != nil {
		return nil, err
	}

	if periodID != nil {
		rec.PeriodID = *periodID
	}

	return &rec, nil
}
