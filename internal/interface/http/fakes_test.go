package http

import (
	"context"
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

// In-memory fakes backing the route tests. Same contracts as the postgres
// repositories, including version-token checks.

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*user.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*user.User)}
}

func (m *fakeUserRepo) Create(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u.Clone()
	return nil
}

func (m *fakeUserRepo) GetByID(_ context.Context, id string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return u.Clone(), nil
}

func (m *fakeUserRepo) GetByUsername(_ context.Context, username user.Username) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return u.Clone(), nil
		}
	}
	return nil, user.ErrUserNotFound
}

func (m *fakeUserRepo) GetByIDs(_ context.Context, ids []string) ([]*user.User, error) {
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

func (m *fakeUserRepo) Update(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return user.ErrUserNotFound
	}
	m.users[u.ID] = u.Clone()
	return nil
}

type fakeRunRepo struct {
	mu          sync.Mutex
	runs        map[string]*run.Run
	enrollments *fakeEnrollmentRepo
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{runs: make(map[string]*run.Run)}
}

func (m *fakeRunRepo) put(r *run.Run) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.ID] = r.Clone()
}

func (m *fakeRunRepo) GetByCode(_ context.Context, code run.Runcode) (*run.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.Runcode == code {
			return r.Clone(), nil
		}
	}
	return nil, run.ErrRunNotFound
}

func (m *fakeRunRepo) GetByID(_ context.Context, id string) (*run.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, run.ErrRunNotFound
	}
	return r.Clone(), nil
}

func (m *fakeRunRepo) GetByOwner(_ context.Context, ownerID string) ([]*run.Run, error) {
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

func (m *fakeRunRepo) GetByStudent(ctx context.Context, userID string) ([]*run.Run, error) {
	records, err := m.enrollments.allForUser(userID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*run.Run
	for _, rec := range records {
		if r, ok := m.runs[rec.RunID]; ok {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

type fakeEnrollmentRepo struct {
	mu      sync.Mutex
	runs    *fakeRunRepo
	records map[string]*enrollment.Record
}

func newFakeEnrollmentRepo(runs *fakeRunRepo) *fakeEnrollmentRepo {
	repo := &fakeEnrollmentRepo{runs: runs, records: make(map[string]*enrollment.Record)}
	runs.enrollments = repo
	return repo
}

func recKey(runID, userID string) string { return runID + "|" + userID }

func (m *fakeEnrollmentRepo) Create(_ context.Context, rec *enrollment.Record, expectedRunVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[recKey(rec.RunID, rec.UserID)]; ok {
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
	m.records[recKey(rec.RunID, rec.UserID)] = &cp
	r.StudentCount++
	r.Version++
	return nil
}

func (m *fakeEnrollmentRepo) Exists(_ context.Context, runID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[recKey(runID, userID)]
	return ok, nil
}

func (m *fakeEnrollmentRepo) GetByRunAndUser(_ context.Context, runID, userID string) (*enrollment.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recKey(runID, userID)]
	if !ok {
		return nil, enrollment.ErrNotEnrolled
	}
	cp := *rec
	return &cp, nil
}

func (m *fakeEnrollmentRepo) GetByRun(_ context.Context, runID string) ([]*enrollment.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*enrollment.Record
	for _, rec := range m.records {
		if rec.RunID == runID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *fakeEnrollmentRepo) CountByRun(_ context.Context, runID string) (int, error) {
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

func (m *fakeEnrollmentRepo) allForUser(userID string) ([]*enrollment.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*enrollment.Record
	for _, rec := range m.records {
		if rec.UserID == userID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeWorkgroupRepo struct {
	mu     sync.Mutex
	groups map[string]*workgroup.Workgroup
}

func newFakeWorkgroupRepo() *fakeWorkgroupRepo {
	return &fakeWorkgroupRepo{groups: make(map[string]*workgroup.Workgroup)}
}

func (m *fakeWorkgroupRepo) Create(_ context.Context, wg *workgroup.Workgroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[wg.ID] = wg.Clone()
	return nil
}

func (m *fakeWorkgroupRepo) GetByID(_ context.Context, id string) (*workgroup.Workgroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wg, ok := m.groups[id]
	if !ok {
		return nil, workgroup.ErrWorkgroupNotFound
	}
	return wg.Clone(), nil
}

func (m *fakeWorkgroupRepo) GetByRun(_ context.Context, runID string) ([]*workgroup.Workgroup, error) {
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

func (m *fakeWorkgroupRepo) FindByRunAndUser(_ context.Context, runID, userID string) ([]*workgroup.Workgroup, error) {
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

func (m *fakeWorkgroupRepo) AddMembers(_ context.Context, wg *workgroup.Workgroup, newMemberIDs []string, expectedVersion int64) error {
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

func (m *fakeWorkgroupRepo) CountByRun(_ context.Context, runID string) (int, error) {
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

type fakeAttendanceRepo struct {
	mu      sync.Mutex
	entries []*attendance.Entry
}

func (m *fakeAttendanceRepo) Append(_ context.Context, entry *attendance.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *fakeAttendanceRepo) GetByRun(_ context.Context, runID string) ([]*attendance.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*attendance.Entry
	for _, e := range m.entries {
		if e.RunID == runID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *fakeAttendanceRepo) GetByWorkgroup(_ context.Context, workgroupID string) ([]*attendance.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*attendance.Entry
	for _, e := range m.entries {
		if e.WorkgroupID == workgroupID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeStatsRepo struct {
	mu    sync.Mutex
	stats map[string]*run.Stats
}

func newFakeStatsRepo() *fakeStatsRepo {
	return &fakeStatsRepo{stats: make(map[string]*run.Stats)}
}

func (m *fakeStatsRepo) Get(_ context.Context, runID string) (*run.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[runID]
	if !ok {
		return nil, run.ErrRunNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *fakeStatsRepo) Upsert(_ context.Context, stats *run.Stats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *stats
	m.stats[stats.RunID] = &cp
	return nil
}

func discardLogger() *logger.Logger {
	return logger.New(logger.Options{Output: io.Discard, Level: logger.LevelFatal})
}
