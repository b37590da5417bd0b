package command

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/encorelab/SCORE/internal/domain/attendance"
	"github.com/encorelab/SCORE/internal/domain/enrollment"
	"github.com/encorelab/SCORE/internal/domain/run"
	"github.com/encorelab/SCORE/internal/domain/shared"
	"github.com/encorelab/SCORE/internal/domain/user"
	"github.com/encorelab/SCORE/internal/domain/workgroup"
	"github.com/encorelab/SCORE/pkg/logger"
)

// In-memory fakes backing the command handler tests. They model the same
// contracts as the postgres repositories, including version-token checks.

// ─────────────────────────────────────────────────────────────────────────────
// users
// ─────────────────────────────────────────────────────────────────────────────

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*user.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*user.User)}
}

func (m *memUserRepo) Create(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return user.ErrUserAlreadyExists
	}
	m.users[u.ID] = u.Clone()
	return nil
}

func (m *memUserRepo) GetByID(_ context.Context, id string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return u.Clone(), nil
}

func (m *memUserRepo) GetByUsername(_ context.Context, username user.Username) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return u.Clone(), nil
		}
	}
	return nil, user.ErrUserNotFound
}

func (m *memUserRepo) GetByIDs(_ context.Context, ids []string) ([]*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*user.User, 0, len(ids))
	for _, id := range ids {
		u, ok := m.users[id]
		if !ok {
			return nil, user.ErrUserNotFound
		}
		out = append(out, u.Clone())
	}
	return out, nil
}

func (m *memUserRepo) Update(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return user.ErrUserNotFound
	}
	m.users[u.ID] = u.Clone()
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// runs
// ─────────────────────────────────────────────────────────────────────────────

type memRunRepo struct {
	mu   sync.Mutex
	runs map[string]*run.Run
}

func newMemRunRepo() *memRunRepo {
	return &memRunRepo{runs: make(map[string]*run.Run)}
}

func (m *memRunRepo) put(r *run.Run) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.ID] = r.Clone()
}

func (m *memRunRepo) GetByCode(_ context.Context, code run.Runcode) (*run.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.Runcode == code {
			return r.Clone(), nil
		}
	}
	return nil, run.ErrRunNotFound
}

func (m *memRunRepo) GetByID(_ context.Context, id string) (*run.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, run.ErrRunNotFound
	}
	return r.Clone(), nil
}

func (m *memRunRepo) GetByOwner(_ context.Context, ownerID string) ([]*run.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*run.Run
	for _, r := range m.runs {
		if r.OwnerID == ownerID {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (m *memRunRepo) GetByStudent(_ context.Context, _ string) ([]*run.Run, error) {
	return nil, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// enrollments
// ─────────────────────────────────────────────────────────────────────────────

type memEnrollmentRepo struct {
	mu      sync.Mutex
	runs    *memRunRepo
	records map[string]*enrollment.Record

	// conflictsRemaining makes the next N Create calls fail with a version
	// conflict, simulating contention on the run row.
	conflictsRemaining int

	// createCalls counts every Create attempt, conflicted or not.
	createCalls int
}

func newMemEnrollmentRepo(runs *memRunRepo) *memEnrollmentRepo {
	return &memEnrollmentRepo{
		runs:    runs,
		records: make(map[string]*enrollment.Record),
	}
}

func enrollmentKey(runID, userID string) string {
	return runID + "|" + userID
}

func (m *memEnrollmentRepo) Create(_ context.Context, rec *enrollment.Record, expectedRunVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.createCalls++

	if m.conflictsRemaining != 0 {
		if m.conflictsRemaining > 0 {
			m.conflictsRemaining--
		}
		return shared.ErrWriteConflict
	}

	if _, ok := m.records[enrollmentKey(rec.RunID, rec.UserID)]; ok {
		return enrollment.ErrAlreadyEnrolled
	}

	m.runs.mu.Lock()
	defer m.runs.mu.Unlock()
	r, ok := m.runs.runs[rec.RunID]
	if !ok {
		return run.ErrRunNotFound
	}
	if r.Version != expectedRunVersion {
		return shared.ErrOptimisticLock
	}

	cp := *rec
	m.records[enrollmentKey(rec.RunID, rec.UserID)] = &cp
	r.StudentCount++
	r.Version++
	return nil
}

func (m *memEnrollmentRepo) Exists(_ context.Context, runID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[enrollmentKey(runID, userID)]
	return ok, nil
}

func (m *memEnrollmentRepo) GetByRunAndUser(_ context.Context, runID, userID string) (*enrollment.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[enrollmentKey(runID, userID)]
	if !ok {
		return nil, enrollment.ErrNotEnrolled
	}
	cp := *rec
	return &cp, nil
}

func (m *memEnrollmentRepo) GetByRun(_ context.Context, runID string) ([]*enrollment.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*enrollment.Record
	for _, rec := range m.records {
		if rec.RunID == runID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnrolledAt.Before(out[j].EnrolledAt) })
	return out, nil
}

func (m *memEnrollmentRepo) CountByRun(_ context.Context, runID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rec := range m.records {
		if rec.RunID == runID {
			n++
		}
	}
	return n, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// workgroups
// ─────────────────────────────────────────────────────────────────────────────

type memWorkgroupRepo struct {
	mu     sync.Mutex
	groups map[string]*workgroup.Workgroup
}

func newMemWorkgroupRepo() *memWorkgroupRepo {
	return &memWorkgroupRepo{groups: make(map[string]*workgroup.Workgroup)}
}

func (m *memWorkgroupRepo) Create(_ context.Context, wg *workgroup.Workgroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[wg.ID]; ok {
		return shared.ErrAlreadyExists
	}
	m.groups[wg.ID] = wg.Clone()
	return nil
}

func (m *memWorkgroupRepo) GetByID(_ context.Context, id string) (*workgroup.Workgroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wg, ok := m.groups[id]
	if !ok {
		return nil, workgroup.ErrWorkgroupNotFound
	}
	return wg.Clone(), nil
}

func (m *memWorkgroupRepo) GetByRun(_ context.Context, runID string) ([]*workgroup.Workgroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*workgroup.Workgroup
	for _, wg := range m.groups {
		if wg.RunID == runID {
			out = append(out, wg.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memWorkgroupRepo) FindByRunAndUser(_ context.Context, runID, userID string) ([]*workgroup.Workgroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*workgroup.Workgroup
	for _, wg := range m.groups {
		if wg.RunID == runID && wg.HasMember(userID) {
			out = append(out, wg.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memWorkgroupRepo) AddMembers(_ context.Context, wg *workgroup.Workgroup, newMemberIDs []string, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.groups[wg.ID]
	if !ok {
		return workgroup.ErrWorkgroupNotFound
	}
	if stored.Version != expectedVersion {
		return shared.ErrOptimisticLock
	}
	if err := stored.AddMembers(newMemberIDs, 0); err != nil {
		return err
	}
	stored.Version++
	wg.Version = stored.Version
	return nil
}

func (m *memWorkgroupRepo) CountByRun(_ context.Context, runID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, wg := range m.groups {
		if wg.RunID == runID {
			n++
		}
	}
	return n, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// attendance
// ─────────────────────────────────────────────────────────────────────────────

type memAttendanceRepo struct {
	mu      sync.Mutex
	entries []*attendance.Entry

	failAppend bool
}

func newMemAttendanceRepo() *memAttendanceRepo {
	return &memAttendanceRepo{}
}

func (m *memAttendanceRepo) Append(_ context.Context, entry *attendance.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAppend {
		return fmt.Errorf("attendance store unavailable")
	}
	cp := *entry
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *memAttendanceRepo) GetByRun(_ context.Context, runID string) ([]*attendance.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*attendance.Entry
	for _, e := range m.entries {
		if e.RunID == runID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LoginTimestamp.Before(out[j].LoginTimestamp) })
	return out, nil
}

func (m *memAttendanceRepo) GetByWorkgroup(_ context.Context, workgroupID string) ([]*attendance.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*attendance.Entry
	for _, e := range m.entries {
		if e.WorkgroupID == workgroupID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LoginTimestamp.Before(out[j].LoginTimestamp) })
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// publisher, url builder, helpers
// ─────────────────────────────────────────────────────────────────────────────

type capturePublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *capturePublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) byType(t shared.EventType) []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.Event
	for _, e := range p.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

type stubURLBuilder struct{}

func (stubURLBuilder) StartProjectURL(_ context.Context, r *run.Run, wg *workgroup.Workgroup) (string, error) {
	return fmt.Sprintf("https://score.example.org/project/%s/group/%s", r.ID, wg.ID), nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Output: io.Discard, Level: logger.LevelFatal})
}

// seqIDs returns a deterministic id generator: id-1, id-2, ...
func seqIDs() enrollment.IDGenerator {
	n := 0
	var mu sync.Mutex
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%03d", n)
	}
}

func mustStudent(repo *memUserRepo, id, username string) *user.User {
	u, err := user.NewStudent(user.NewStudentParams{
		ID:        id,
		Username:  user.Username(username),
		FirstName: "First-" + id,
		LastName:  "Last-" + id,
	})
	if err != nil {
		panic(err)
	}
	if err := repo.Create(context.Background(), u); err != nil {
		panic(err)
	}
	return u
}
