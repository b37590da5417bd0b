package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/encorelab/SCORE/internal/domain/user"
)

// UserRepository implements user.Repository using PostgreSQL. Role detail
// columns are nullable; the variant matching the role tag is restored on read.
type UserRepository struct {
	conn *Connection
}

// NewUserRepository creates a new PostgreSQL user repository.
func NewUserRepository(conn *Connection) *UserRepository {
	return &UserRepository{conn: conn}
}

const userColumns = `id, username, first_name, last_name, role, external_identity, language,
	birthday, signup_date, display_name, schoolname, created_at, updated_at`

// Create creates a new user.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	query := `
		INSERT INTO users (id, username, first_name, last_name, role, external_identity,
			language, birthday, signup_date, display_name, schoolname, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	var birthday, signupDate *time.Time
	var displayName, schoolname *string

	if sd, ok := u.StudentDetails(); ok {
		if !sd.Birthday.IsZero() {
			b := sd.Birthday
			birthday = &b
		}
		s := sd.SignupDate
		signupDate = &s
	}
	if td, ok := u.TeacherDetails(); ok {
		dn, sn := td.DisplayName, td.Schoolname
		displayName = &dn
		schoolname = &sn
	}

	_, err := r.conn.Exec(ctx, query,
		u.ID,
		u.Username.String(),
		u.FirstName,
		u.LastName,
		string(u.Role),
		u.ExternalIdentity,
		u.Language,
		birthday,
		signupDate,
		displayName,
		schoolname,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return user.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID returns a user by internal ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)

	u, err := r.scanUser(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, user.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	return u, nil
}

// GetByUsername returns a user by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username user.Username) (*user.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE username = $1`, userColumns)

	u, err := r.scanUser(r.conn.QueryRow(ctx, query, username.String()))
	if err != nil {
		if IsNoRows(err) {
			return nil, user.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}

	return u, nil
}

// GetByIDs returns users for the given IDs. Every ID must resolve; a single
// unknown ID yields user.ErrUserNotFound.
func (r *UserRepository) GetByIDs(ctx context.Context, ids []string) ([]*user.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, 0, len(ids))
	args := make([]interface{}, 0, len(ids))
	for i, id := range ids {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, id)
	}

	query := fmt.Sprintf(`SELECT %s FROM users WHERE id IN (%s)`,
		userColumns, strings.Join(placeholders, ", "))

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users by ids: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*user.User, len(ids))
	for rows.Next() {
		u, err := r.scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		byID[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	users := make([]*user.User, 0, len(ids))
	for _, id := range ids {
		u, ok := byID[id]
		if !ok {
			return nil, user.ErrUserNotFound
		}
		users = append(users, u)
	}

	return users, nil
}

// Update updates a user's mutable fields.
func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	query := `
		UPDATE users
		SET first_name = $2, last_name = $3, language = $4, updated_at = NOW()
		WHERE id = $1`

	tag, err := r.conn.Exec(ctx, query, u.ID, u.FirstName, u.LastName, u.Language)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return user.ErrUserNotFound
	}

	return nil
}

func (r *UserRepository) scanUser(row pgx.Row) (*user.User, error) {
	var base user.User
	var username, role string
	var birthday, signupDate *time.Time
	var displayName, schoolname *string

	err := row.Scan(
		&base.ID,
		&username,
		&base.FirstName,
		&base.LastName,
		&role,
		&base.ExternalIdentity,
		&base.Language,
		&birthday,
		&signupDate,
		&displayName,
		&schoolname,
		&base.CreatedAt,
		&base.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	base.Username = user.Username(username)
	base.Role = user.Role(role)

	var student *user.StudentDetails
	var teacher *user.TeacherDetails

	switch base.Role {
	case user.RoleStudent:
		student = &user.StudentDetails{}
		if birthday != nil {
			student.Birthday = *birthday
		}
		if signupDate != nil {
			student.SignupDate = *signupDate
		}
	case user.RoleTeacher:
		teacher = &user.TeacherDetails{}
		if displayName != nil {
			teacher.DisplayName = *displayName
		}
		if schoolname != nil {
			teacher.Schoolname = *schoolname
		}
	}

	return user.Restore(base, student, teacher)
}
