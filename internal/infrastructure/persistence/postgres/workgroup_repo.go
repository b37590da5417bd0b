package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/encorelab/SCORE/internal/domain/shared"
	"github.com/encorelab/SCORE/internal/domain/workgroup"
)

// WorkgroupRepository implements workgroup.Repository using PostgreSQL.
// Membership writes are guarded by the workgroup's version column.
type WorkgroupRepository struct {
	conn *Connection
}

// NewWorkgroupRepository creates a new PostgreSQL workgroup repository.
func NewWorkgroupRepository(conn *Connection) *WorkgroupRepository {
	return &WorkgroupRepository{conn: conn}
}

// Create persists a new workgroup with its initial member set.
func (r *WorkgroupRepository) Create(ctx context.Context, wg *workgroup.Workgroup) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		insert := `
			INSERT INTO workgroups (id, name, run_id, period_id, period_name, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

		var periodID *string
		if wg.PeriodID != "" {
			p := wg.PeriodID
			periodID = &p
		}

		_, err := tx.Exec(ctx, insert,
			wg.ID, wg.Name, wg.RunID, periodID, wg.PeriodName, wg.Version, wg.CreatedAt, wg.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert workgroup: %w", err)
		}

		for _, userID := range wg.MemberIDs() {
			_, err := tx.Exec(ctx,
				`INSERT INTO workgroup_members (workgroup_id, user_id) VALUES ($1, $2)`,
				wg.ID, userID)
			if err != nil {
				return fmt.Errorf("failed to insert workgroup member: %w", err)
			}
		}

		return nil
	})
}

// GetByID returns a workgroup by ID.
func (r *WorkgroupRepository) GetByID(ctx context.Context, id string) (*workgroup.Workgroup, error) {
	query := `
		SELECT id, name, run_id, period_id, period_name, version, created_at, updated_at
		FROM workgroups
		WHERE id = $1`

	base, err := r.scanWorkgroup(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, workgroup.ErrWorkgroupNotFound
		}
		return nil, fmt.Errorf("failed to get workgroup: %w", err)
	}

	groups := []*workgroup.Workgroup{base}
	if err := r.loadMembers(ctx, groups); err != nil {
		return nil, err
	}

	return groups[0], nil
}

// GetByRun returns all workgroups of a run, smallest id first.
func (r *WorkgroupRepository) GetByRun(ctx context.Context, runID string) ([]*workgroup.Workgroup, error) {
	query := `
		SELECT id, name, run_id, period_id, period_name, version, created_at, updated_at
		FROM workgroups
		WHERE run_id = $1
		ORDER BY id`

	rows, err := r.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workgroups: %w", err)
	}
	defer rows.Close()

	groups, err := r.scanWorkgroups(rows)
	if err != nil {
		return nil, err
	}

	if err := r.loadMembers(ctx, groups); err != nil {
		return nil, err
	}

	return groups, nil
}

// FindByRunAndUser returns the workgroups of the run the user belongs to,
// smallest id first.
func (r *WorkgroupRepository) FindByRunAndUser(ctx context.Context, runID, userID string) ([]*workgroup.Workgroup, error) {
	query := `
		SELECT w.id, w.name, w.run_id, w.period_id, w.period_name, w.version, w.created_at, w.updated_at
		FROM workgroups w
		JOIN workgroup_members m ON m.workgroup_id = w.id
		WHERE w.run_id = $1 AND m.user_id = $2
		ORDER BY w.id`

	rows, err := r.conn.Query(ctx, query, runID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workgroups by member: %w", err)
	}
	defer rows.Close()

	groups, err := r.scanWorkgroups(rows)
	if err != nil {
		return nil, err
	}

	if err := r.loadMembers(ctx, groups); err != nil {
		return nil, err
	}

	return groups, nil
}

// AddMembers persists new members of the workgroup under its version token.
// The version bump and member inserts share a transaction so a losing writer
// leaves no partial admission behind.
func (r *WorkgroupRepository) AddMembers(ctx context.Context, wg *workgroup.Workgroup, newMemberIDs []string, expectedVersion int64) error {
	if len(newMemberIDs) == 0 {
		return nil
	}

	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		bump := `
			UPDATE workgroups
			SET version = version + 1, updated_at = NOW()
			WHERE id = $1 AND version = $2`

		tag, err := tx.Exec(ctx, bump, wg.ID, expectedVersion)
		if err != nil {
			return fmt.Errorf("failed to bump workgroup version: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrWriteConflict
		}

		for _, userID := range newMemberIDs {
			_, err := tx.Exec(ctx, `
				INSERT INTO workgroup_members (workgroup_id, user_id)
				VALUES ($1, $2)
				ON CONFLICT (workgroup_id, user_id) DO NOTHING`,
				wg.ID, userID)
			if err != nil {
				return fmt.Errorf("failed to insert workgroup member: %w", err)
			}
		}

		return nil
	})
}

// CountByRun returns the number of workgroups in a run.
func (r *WorkgroupRepository) CountByRun(ctx context.Context, runID string) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM workgroups WHERE run_id = $1`, runID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count workgroups: %w", err)
	}

	return count, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scan helpers
// ─────────────────────────────────────────────────────────────────────────────

func (r *WorkgroupRepository) scanWorkgroup(row pgx.Row) (*workgroup.Workgroup, error) {
	var base workgroup.Workgroup
	var periodID *string
	var createdAt, updatedAt time.Time

	err := row.Scan(
		&base.ID,
		&base.Name,
		&base.RunID,
		&periodID,
		&base.PeriodName,
		&base.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if periodID != nil {
		base.PeriodID = *periodID
	}
	base.CreatedAt = createdAt
	base.UpdatedAt = updatedAt

	// Members attached by loadMembers.
	return workgroup.Restore(base, nil), nil
}

func (r *WorkgroupRepository) scanWorkgroups(rows pgx.Rows) ([]*workgroup.Workgroup, error) {
	var groups []*workgroup.Workgroup
	for rows.Next() {
		wg, err := r.scanWorkgroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workgroup row: %w", err)
		}
		groups = append(groups, wg)
	}
	return groups, rows.Err()
}

// loadMembers replaces each workgroup with a copy restored with its member set.
func (r *WorkgroupRepository) loadMembers(ctx context.Context, groups []*workgroup.Workgroup) error {
	if len(groups) == 0 {
		return nil
	}

	index := make(map[string]int, len(groups))
	placeholders := make([]string, 0, len(groups))
	args := make([]interface{}, 0, len(groups))
	for i, wg := range groups {
		index[wg.ID] = i
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, wg.ID)
	}

	query := fmt.Sprintf(`
		SELECT workgroup_id, user_id FROM workgroup_members
		WHERE workgroup_id IN (%s)`,
		strings.Join(placeholders, ", "))

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query workgroup members: %w", err)
	}
	defer rows.Close()

	members := make(map[string][]string, len(groups))
	for rows.Next() {
		var wgID, userID string
		if err := rows.Scan(&wgID, &userID); err != nil {
			return fmt.Errorf("failed to scan member row: %w", err)
		}
		members[wgID] = append(members[wgID], userID)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for id, i := range index {
		groups[i] = workgroup.Restore(*groups[i], members[id])
	}

	return nil
}
