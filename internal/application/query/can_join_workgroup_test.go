package query

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/encorelab/SCORE/internal/domain/run"
	"github.com/encorelab/SCORE/internal/domain/user"
	"github.com/encorelab/SCORE/internal/domain/workgroup"
)

// Minimal read-only fakes for the query handlers.

type fakeRunRepo struct {
	runs map[string]*run.Run
}

func (f *fakeRunRepo) GetByCode(_ context.Context, code run.Runcode) (*run.Run, error) {
	for _, r := range f.runs {
		if r.Runcode == code {
			return r.Clone(), nil
		}
	}
	return nil, run.ErrRunNotFound
}

func (f *fakeRunRepo) GetByID(_ context.Context, id string) (*run.Run, error) {
	r, ok := f.runs[id]
	if !ok {
		return nil, run.ErrRunNotFound
	}
	return r.Clone(), nil
}

func (f *fakeRunRepo) GetByOwner(_ context.Context, _ string) ([]*run.Run, error) { return nil, nil }

func (f *fakeRunRepo) GetByStudent(_ context.Context, _ string) ([]*run.Run, error) {
	return nil, nil
}

type fakeUserRepo struct {
	users map[string]*user.User
}

func (f *fakeUserRepo) Create(_ context.Context, _ *user.User) error { return nil }
func (f *fakeUserRepo) Update(_ context.Context, _ *user.User) error { return nil }

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*user.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return u.Clone(), nil
}

func (f *fakeUserRepo) GetByUsername(_ context.Context, username user.Username) (*user.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return u.Clone(), nil
		}
	}
	return nil, user.ErrUserNotFound
}

func (f *fakeUserRepo) GetByIDs(_ context.Context, ids []string) ([]*user.User, error) {
	out := make([]*user.User, 0, len(ids))
	for _, id := range ids {
		u, ok := f.users[id]
		if !ok {
			return nil, user.ErrUserNotFound
		}
		out = append(out, u.Clone())
	}
	return out, nil
}

type fakeWorkgroupRepo struct {
	groups map[string]*workgroup.Workgroup
}

func (f *fakeWorkgroupRepo) Create(_ context.Context, wg *workgroup.Workgroup) error {
	f.groups[wg.ID] = wg.Clone()
	return nil
}

func (f *fakeWorkgroupRepo) GetByID(_ context.Context, id string) (*workgroup.Workgroup, error) {
	wg, ok := f.groups[id]
	if !ok {
		return nil, workgroup.ErrWorkgroupNotFound
	}
	return wg.Clone(), nil
}

func (f *fakeWorkgroupRepo) GetByRun(_ context.Context, runID string) ([]*workgroup.Workgroup, error) {
	var out []*workgroup.Workgroup
	for _, wg := range f.groups {
		if wg.RunID == runID {
			out = append(out, wg.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeWorkgroupRepo) FindByRunAndUser(_ context.Context, runID, userID string) ([]*workgroup.Workgroup, error) {
	var out []*workgroup.Workgroup
	for _, wg := range f.groups {
		if wg.RunID == runID && wg.HasMember(userID) {
			out = append(out, wg.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeWorkgroupRepo) AddMembers(_ context.Context, _ *workgroup.Workgroup, _ []string, _ int64) error {
	return nil
}

func (f *fakeWorkgroupRepo) CountByRun(_ context.Context, _ string) (int, error) { return 0, nil }

// eligibilityEnv seeds a run with max size 2, workgroup wg-001 = {stu-a, stu-b}
// (full) and wg-002 = {stu-c}, plus free students stu-d, stu-e and a teacher.
func eligibilityEnv(t *testing.T) *CanJoinWorkgroupHandler {
	t.Helper()

	runs := &fakeRunRepo{runs: map[string]*run.Run{
		"run-1": {
			ID:               "run-1",
			Name:             "Photosynthesis",
			Runcode:          "Falcon123",
			Periods:          []run.Period{{ID: "p1", Name: "1"}},
			MaxWorkgroupSize: 2,
			StartTime:        time.Now().UTC().Add(-time.Hour),
		},
	}}

	users := &fakeUserRepo{users: map[string]*user.User{}}
	for _, id := range []string{"stu-a", "stu-b", "stu-c", "stu-d", "stu-e"} {
		u, err := user.NewStudent(user.NewStudentParams{
			ID:        id,
			Username:  user.Username("user-" + id),
			FirstName: "First-" + id,
			LastName:  "Last-" + id,
		})
		require.NoError(t, err)
		users.users[id] = u
	}
	teacher, err := user.NewTeacher(user.NewTeacherParams{
		ID:        "tch-1",
		Username:  "ms-rivera",
		FirstName: "Maria",
		LastName:  "Rivera",
	})
	require.NoError(t, err)
	users.users["tch-1"] = teacher

	groups := &fakeWorkgroupRepo{groups: map[string]*workgroup.Workgroup{}}
	full, err := workgroup.New(workgroup.NewParams{
		ID: "wg-001", RunID: "run-1", PeriodID: "p1", PeriodName: "1",
		MemberIDs: []string{"stu-a", "stu-b"},
	})
	require.NoError(t, err)
	require.NoError(t, groups.Create(context.Background(), full))
	open, err := workgroup.New(workgroup.NewParams{
		ID: "wg-002", RunID: "run-1", PeriodID: "p1", PeriodName: "1",
		MemberIDs: []string{"stu-c"},
	})
	require.NoError(t, err)
	require.NoError(t, groups.Create(context.Background(), open))

	return NewCanJoinWorkgroupHandler(runs, users, groups)
}

func TestCanJoinWorkgroup_Rules(t *testing.T) {
	handler := eligibilityEnv(t)

	tests := []struct {
		name          string
		query         CanJoinWorkgroupQuery
		wantStatus    bool
		wantTeacher   bool
		wantWorkgroup string
		wantMembers   []string
	}{
		{
			name: "free student joining open workgroup",
			query: CanJoinWorkgroupQuery{
				RunID: "run-1", WorkgroupID: "wg-002", UserID: "stu-d", ActingUserID: "stu-d",
			},
			wantStatus:    true,
			wantWorkgroup: "wg-002",
			wantMembers:   []string{"stu-c"},
		},
		{
			name: "member of the given workgroup stays eligible",
			query: CanJoinWorkgroupQuery{
				RunID: "run-1", WorkgroupID: "wg-002", UserID: "stu-c", ActingUserID: "stu-c",
			},
			wantStatus:    true,
			wantWorkgroup: "wg-002",
			wantMembers:   []string{},
		},
		{
			name: "student already in another workgroup is not eligible",
			query: CanJoinWorkgroupQuery{
				RunID: "run-1", WorkgroupID: "wg-002", UserID: "stu-a", ActingUserID: "stu-a",
			},
			wantStatus:    false,
			wantWorkgroup: "wg-002",
			wantMembers:   []string{"stu-c"},
		},
		{
			name: "no workgroup named resolves to the candidate's own",
			query: CanJoinWorkgroupQuery{
				RunID: "run-1", UserID: "stu-c", ActingUserID: "stu-c",
			},
			wantStatus:    true,
			wantWorkgroup: "wg-002",
			wantMembers:   []string{},
		},
		{
			name: "no workgroup at all",
			query: CanJoinWorkgroupQuery{
				RunID: "run-1", UserID: "stu-d", ActingUserID: "stu-d",
			},
			wantStatus:  true,
			wantMembers: []string{},
		},
		{
			name: "outsider cannot view-and-join a full team",
			query: CanJoinWorkgroupQuery{
				RunID: "run-1", WorkgroupID: "wg-001", UserID: "stu-d", ActingUserID: "stu-d",
			},
			wantStatus:    false,
			wantWorkgroup: "wg-001",
			wantMembers:   []string{"stu-a", "stu-b"},
		},
		{
			name: "full team still sees its own roster",
			query: CanJoinWorkgroupQuery{
				RunID: "run-1", WorkgroupID: "wg-001", UserID: "stu-a", ActingUserID: "stu-a",
			},
			wantStatus:    true,
			wantWorkgroup: "wg-001",
			wantMembers:   []string{"stu-b"},
		},
		{
			name: "member acting for an outside candidate on a full team",
			query: CanJoinWorkgroupQuery{
				RunID: "run-1", WorkgroupID: "wg-001", UserID: "stu-e", ActingUserID: "stu-a",
			},
			// The candidate is free and the acting member vouches, but the
			// team is at capacity for run max size 2 - still no admission is
			// possible; status reflects the base rules, not capacity, when
			// the actor is a member.
			wantStatus:    true,
			wantWorkgroup: "wg-001",
			wantMembers:   []string{"stu-a", "stu-b"},
		},
		{
			name: "teacher flag is reported",
			query: CanJoinWorkgroupQuery{
				RunID: "run-1", UserID: "tch-1", ActingUserID: "tch-1",
			},
			wantStatus:  true,
			wantTeacher: true,
			wantMembers: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := handler.Handle(context.Background(), tt.query)
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, result.Status)
			assert.Equal(t, tt.wantTeacher, result.IsTeacher)
			assert.Equal(t, tt.wantWorkgroup, result.WorkgroupID)

			gotIDs := make([]string, 0, len(result.WorkgroupMembers))
			for _, m := range result.WorkgroupMembers {
				gotIDs = append(gotIDs, m.ID)
			}
			assert.ElementsMatch(t, tt.wantMembers, gotIDs)
		})
	}
}

func TestCanJoinWorkgroup_UnknownRun(t *testing.T) {
	handler := eligibilityEnv(t)

	_, err := handler.Handle(context.Background(), CanJoinWorkgroupQuery{
		RunID: "missing", UserID: "stu-a", ActingUserID: "stu-a",
	})
	assert.ErrorIs(t, err, run.ErrRunNotFound)
}

func TestCanJoinWorkgroup_UnknownUser(t *testing.T) {
	handler := eligibilityEnv(t)

	_, err := handler.Handle(context.Background(), CanJoinWorkgroupQuery{
		RunID: "run-1", UserID: "ghost", ActingUserID: "ghost",
	})
	assert.ErrorIs(t, err, user.ErrUserNotFound)
}
