// Package user contains the user domain model: a single User identity with a
// tagged role variant (teacher or student). Role-specific data is resolved at
// the boundary, never via downcasting.
package user

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Username identifies a user for sign-in and display.
type Username string

// IsValid checks that the username is well formed.
func (u Username) IsValid() bool {
	s := string(u)
	return len(s) >= 2 && len(s) <= 60 && !strings.ContainsAny(s, " \t\n\r")
}

// String returns the string representation of the username.
func (u Username) String() string {
	return string(u)
}

// Role tags the variant of a user.
type Role string

const (
	// RoleStudent - the user is a student who enrolls into runs.
	RoleStudent Role = "student"
	// RoleTeacher - the user owns runs and administers them.
	RoleTeacher Role = "teacher"
)

// IsValid checks that the role is a known variant.
func (r Role) IsValid() bool {
	return r == RoleStudent || r == RoleTeacher
}

// ══════════════════════════════════════════════════════════════════════════════
// ROLE DETAILS (tagged variant)
// ══════════════════════════════════════════════════════════════════════════════

// StudentDetails holds the student-specific part of a user.
type StudentDetails struct {
	// Birthday is used by the account-recovery flow (managed elsewhere).
	Birthday time.Time

	// SignupDate is when the student account was created.
	SignupDate time.Time
}

// TeacherDetails holds the teacher-specific part of a user.
type TeacherDetails struct {
	// DisplayName is the name shown to students (e.g. "Ms. Rivera").
	DisplayName string

	// Schoolname is the teacher's school.
	Schoolname string
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: USER
// ══════════════════════════════════════════════════════════════════════════════

// User is a signed-in identity. Exactly one of the role detail pointers is set,
// matching Role.
type User struct {
	// ID - internal unique identifier (UUID in string form).
	ID string

	// Username - sign-in name, unique across the system.
	Username Username

	// FirstName and LastName are shown in workgroup rosters.
	FirstName string
	LastName  string

	// Role tags which detail variant is populated.
	Role Role

	// ExternalIdentity is true for accounts provisioned through an external
	// identity provider (no local password).
	ExternalIdentity bool

	// Language - preferred UI language code.
	Language string

	student *StudentDetails
	teacher *TeacherDetails

	// CreatedAt - when the record was created.
	CreatedAt time.Time

	// UpdatedAt - when the record was last updated.
	UpdatedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidUsername - the username is malformed.
	ErrInvalidUsername = errors.New("invalid username: must be 2-60 chars without whitespace")

	// ErrInvalidRole - the role is not a known variant.
	ErrInvalidRole = errors.New("invalid user role")

	// ErrRoleDetailsMismatch - the detail variant does not match the role tag.
	ErrRoleDetailsMismatch = errors.New("role details do not match role tag")

	// ErrUserNotFound - the user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists - a user with the same username exists.
	ErrUserAlreadyExists = errors.New("user already exists")
)

// ══════════════════════════════════════════════════════════════════════════════
// FACTORY & VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// NewStudentParams contains parameters for creating a student user.
type NewStudentParams struct {
	ID               string
	Username         Username
	FirstName        string
	LastName         string
	ExternalIdentity bool
	Language         string
	Birthday         time.Time
}

// NewStudent creates a student-role user with validation.
func NewStudent(params NewStudentParams) (*User, error) {
	u, err := newUser(params.ID, params.Username, params.FirstName, params.LastName, RoleStudent)
	if err != nil {
		return nil, err
	}
	u.ExternalIdentity = params.ExternalIdentity
	u.Language = params.Language
	u.student = &StudentDetails{
		Birthday:   params.Birthday,
		SignupDate: u.CreatedAt,
	}
	return u, nil
}

// NewTeacherParams contains parameters for creating a teacher user.
type NewTeacherParams struct {
	ID          string
	Username    Username
	FirstName   string
	LastName    string
	DisplayName string
	Schoolname  string
}

// NewTeacher creates a teacher-role user with validation.
func NewTeacher(params NewTeacherParams) (*User, error) {
	u, err := newUser(params.ID, params.Username, params.FirstName, params.LastName, RoleTeacher)
	if err != nil {
		return nil, err
	}
	displayName := strings.TrimSpace(params.DisplayName)
	if displayName == "" {
		displayName = strings.TrimSpace(params.FirstName + " " + params.LastName)
	}
	u.teacher = &TeacherDetails{
		DisplayName: displayName,
		Schoolname:  params.Schoolname,
	}
	return u, nil
}

func newUser(id string, username Username, firstName, lastName string, role Role) (*User, error) {
	if id == "" {
		return nil, errors.New("user id is required")
	}
	if !username.IsValid() {
		return nil, ErrInvalidUsername
	}
	if !role.IsValid() {
		return nil, ErrInvalidRole
	}

	now := time.Now().UTC()

	return &User{
		ID:        id,
		Username:  username,
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Restore rebuilds a user from persisted state. Repositories use it; the
// detail variant must match the role tag.
func Restore(u User, student *StudentDetails, teacher *TeacherDetails) (*User, error) {
	switch u.Role {
	case RoleStudent:
		if student == nil || teacher != nil {
			return nil, ErrRoleDetailsMismatch
		}
		u.student = student
	case RoleTeacher:
		if teacher == nil || student != nil {
			return nil, ErrRoleDetailsMismatch
		}
		u.teacher = teacher
	default:
		return nil, ErrInvalidRole
	}
	return &u, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCESSORS (per variant)
// ══════════════════════════════════════════════════════════════════════════════

// IsStudent returns true if the user is a student.
func (u *User) IsStudent() bool {
	return u.Role == RoleStudent
}

// IsTeacher returns true if the user is a teacher.
func (u *User) IsTeacher() bool {
	return u.Role == RoleTeacher
}

// StudentDetails returns the student variant, or false for teachers.
func (u *User) StudentDetails() (StudentDetails, bool) {
	if u.student == nil {
		return StudentDetails{}, false
	}
	return *u.student, true
}

// TeacherDetails returns the teacher variant, or false for students.
func (u *User) TeacherDetails() (TeacherDetails, bool) {
	if u.teacher == nil {
		return TeacherDetails{}, false
	}
	return *u.teacher, true
}

// FullName returns "First Last" for roster display.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// String returns a string representation for logging.
func (u *User) String() string {
	return fmt.Sprintf("User{ID: %s, Username: %s, Role: %s}", u.ID, u.Username, u.Role)
}

// Clone creates a deep copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	clone := *u
	if u.student != nil {
		s := *u.student
		clone.student = &s
	}
	if u.teacher != nil {
		t := *u.teacher
		clone.teacher = &t
	}
	return &clone
}

// ══════════════════════════════════════════════════════════════════════════════
// SUMMARY (boundary shape)
// ══════════════════════════════════════════════════════════════════════════════

// Summary is the roster-visible projection of a user.
type Summary struct {
	ID                     string `json:"id"`
	Username               string `json:"username"`
	FirstName              string `json:"firstName"`
	LastName               string `json:"lastName"`
	IsExternalIdentityUser bool   `json:"isExternalIdentityUser"`
}

// Summarize builds the roster-visible projection.
func (u *User) Summarize() Summary {
	return Summary{
		ID:                     u.ID,
		Username:               u.Username.String(),
		FirstName:              u.FirstName,
		LastName:               u.LastName,
		IsExternalIdentityUser: u.ExternalIdentity,
	}
}
