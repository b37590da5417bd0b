package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/encorelab/SCORE/internal/application/command"
	"github.com/encorelab/SCORE/internal/application/query"
	"github.com/encorelab/SCORE/internal/domain/attendance"
	"github.com/encorelab/SCORE/internal/domain/enrollment"
	"github.com/encorelab/SCORE/internal/domain/run"
	"github.com/encorelab/SCORE/internal/domain/shared"
	"github.com/encorelab/SCORE/internal/domain/user"
	"github.com/encorelab/SCORE/internal/domain/workgroup"
)

type nopPublisher struct{}

func (nopPublisher) Publish(shared.Event) error { return nil }

type testURLBuilder struct{}

func (testURLBuilder) StartProjectURL(_ context.Context, r *run.Run, wg *workgroup.Workgroup) (string, error) {
	return fmt.Sprintf("https://score.example.org/project/%s/group/%s", r.ID, wg.ID), nil
}

type stubExporter struct{}

func (stubExporter) Export(_ context.Context, _ string, _ []*attendance.Entry, w io.Writer) error {
	_, err := w.Write([]byte("xlsx-bytes"))
	return err
}

type httpEnv struct {
	users   *fakeUserRepo
	runs    *fakeRunRepo
	records *fakeEnrollmentRepo
	groups  *fakeWorkgroupRepo
	attend  *fakeAttendanceRepo
	stats   *fakeStatsRepo
	engine  *gin.Engine
}

func newHTTPEnv(t *testing.T) *httpEnv {
	t.Helper()

	users := newFakeUserRepo()
	runs := newFakeRunRepo()
	records := newFakeEnrollmentRepo(runs)
	groups := newFakeWorkgroupRepo()
	attend := &fakeAttendanceRepo{}
	stats := newFakeStatsRepo()
	log := discardLogger()

	var mu sync.Mutex
	n := 0
	newID := func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%03d", n)
	}

	ledger := enrollment.NewLedger(runs, records, newID)
	pub := nopPublisher{}

	handler := NewHandler(HandlerDeps{
		Enroll: command.NewEnrollStudentHandler(users, ledger, pub, 100, log),
		Launch: command.NewLaunchRunHandler(
			runs, users, groups, attend, ledger, testURLBuilder{}, pub, 100, newID, log,
		),
		RunInfo:     query.NewGetRunInfoHandler(runs, users, nil, log),
		StudentRuns: query.NewGetStudentRunsHandler(runs, users, groups, records, log),
		CanJoin:     query.NewCanJoinWorkgroupHandler(runs, users, groups),
		RunAttend:   query.NewGetRunAttendanceHandler(runs, attend),
		StatsRepo:   stats,
		Exporter:    stubExporter{},
		Logger:      log,
	})

	server := NewServer(DefaultServerConfig(), handler, log)

	return &httpEnv{
		users:   users,
		runs:    runs,
		records: records,
		groups:  groups,
		attend:  attend,
		stats:   stats,
		engine:  server.Engine(),
	}
}

func (e *httpEnv) seedRun(id, code string, endTime time.Time, maxSize int) *run.Run {
	r := &run.Run{
		ID:               id,
		Name:             "Photosynthesis",
		Runcode:          run.Runcode(code),
		Periods:          []run.Period{{ID: id + "-p1", Name: "1"}, {ID: id + "-p2", Name: "3rd"}},
		MaxWorkgroupSize: maxSize,
		StartTime:        time.Now().UTC().Add(-24 * time.Hour),
		EndTime:          endTime,
	}
	e.runs.put(r)
	return r
}

func (e *httpEnv) seedStudent(t *testing.T, id, username string) *user.User {
	t.Helper()
	u, err := user.NewStudent(user.NewStudentParams{
		ID:        id,
		Username:  user.Username(username),
		FirstName: "First-" + id,
		LastName:  "Last-" + id,
	})
	require.NoError(t, err)
	require.NoError(t, e.users.Create(context.Background(), u))
	return u
}

// do fires a request at the engine and decodes the JSON response body.
func (e *httpEnv) do(t *testing.T, method, path, userID string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(headerUserID, userID)
	}

	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 && json.Valid(rec.Body.Bytes()) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

// ─────────────────────────────────────────────────────────────────────────────
// registration
// ─────────────────────────────────────────────────────────────────────────────

func TestRegisterRun_Success(t *testing.T) {
	env := newHTTPEnv(t)
	env.seedRun("run-1", "Falcon123", time.Time{}, 3)
	env.seedStudent(t, "stu-1", "amber0101")

	rec, body := env.do(t, http.MethodPost, "/api/student/run/register", "stu-1", gin.H{
		"runCode": "Falcon123",
		"period":  "1",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["status"])
	assert.Equal(t, "run-1", body["runId"])
	assert.Equal(t, "Falcon123", body["runCode"])
	assert.Equal(t, "1", body["period"])
	assert.Equal(t, float64(1), body["attempts"])

	count, err := env.records.CountByRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRegisterRun_ErrorCodes(t *testing.T) {
	env := newHTTPEnv(t)
	env.seedRun("run-1", "Falcon123", time.Time{}, 3)
	env.seedRun("run-ended", "Ended99", time.Now().UTC().Add(-time.Hour), 3)
	env.seedStudent(t, "stu-1", "amber0101")

	// A run the student is already in.
	rec, _ := env.do(t, http.MethodPost, "/api/student/run/register", "stu-1", gin.H{
		"runCode": "Falcon123", "period": "1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	tests := []struct {
		name     string
		payload  gin.H
		wantCode int
		wantMsg  string
	}{
		{
			name:     "unknown runcode",
			payload:  gin.H{"runCode": "Nope999", "period": "1"},
			wantCode: http.StatusNotFound,
			wantMsg:  codeRunCodeNotFound,
		},
		{
			name:     "unknown period",
			payload:  gin.H{"runCode": "Falcon123", "period": "7th"},
			wantCode: http.StatusNotFound,
			wantMsg:  codePeriodNotFound,
		},
		{
			name:     "duplicate registration",
			payload:  gin.H{"runCode": "Falcon123", "period": "1"},
			wantCode: http.StatusConflict,
			wantMsg:  codeAlreadyAddedRun,
		},
		{
			name:     "ended run",
			payload:  gin.H{"runCode": "Ended99", "period": "1"},
			wantCode: http.StatusForbidden,
			wantMsg:  codeRunHasEnded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := env.do(t, http.MethodPost, "/api/student/run/register", "stu-1", tt.payload)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantMsg, body["messageCode"])
			assert.Equal(t, false, body["status"])
		})
	}
}

func TestRegisterRun_MissingUserHeader(t *testing.T) {
	env := newHTTPEnv(t)
	env.seedRun("run-1", "Falcon123", time.Time{}, 3)

	rec, body := env.do(t, http.MethodPost, "/api/student/run/register", "", gin.H{
		"runCode": "Falcon123", "period": "1",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeInvalidRequest, body["messageCode"])
}

func TestRegisterRun_MalformedRuncodeRejectedByBinding(t *testing.T) {
	env := newHTTPEnv(t)
	env.seedStudent(t, "stu-1", "amber0101")

	// Whitespace fails the runcode format check before any lookup happens.
	rec, body := env.do(t, http.MethodPost, "/api/student/run/register", "stu-1", gin.H{
		"runCode": "has space", "period": "1",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeInvalidRequest, body["messageCode"])
}

// ─────────────────────────────────────────────────────────────────────────────
// launch
// ─────────────────────────────────────────────────────────────────────────────

func TestLaunchRun_CreatesWorkgroup(t *testing.T) {
	env := newHTTPEnv(t)
	env.seedRun("run-1", "Falcon123", time.Time{}, 3)
	env.seedStudent(t, "stu-1", "amber0101")
	env.seedStudent(t, "stu-2", "birch0202")

	rec, _ := env.do(t, http.MethodPost, "/api/student/run/register", "stu-1", gin.H{
		"runCode": "Falcon123", "period": "1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := env.do(t, http.MethodPost, "/api/student/run/launch", "stu-1", gin.H{
		"runId":          "run-1",
		"presentUserIds": []string{"stu-1", "stu-2"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["status"])
	assert.Equal(t, true, body["workgroupCreated"])
	assert.Len(t, body["addedMemberIds"], 2)

	wgID, _ := body["workgroupId"].(string)
	require.NotEmpty(t, wgID)
	assert.Equal(t, "https://score.example.org/project/run-1/group/"+wgID, body["startProjectUrl"])

	// The second present student was enrolled as part of the launch.
	enrolled, err := env.records.Exists(context.Background(), "run-1", "stu-2")
	require.NoError(t, err)
	assert.True(t, enrolled)

	// Attendance was recorded for the live run.
	entries, err := env.attend.GetByRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.ElementsMatch(t, []string{"stu-1", "stu-2"}, entries[0].PresentUserIDs)
}

func TestLaunchRun_FullWorkgroupRejectedWithID(t *testing.T) {
	env := newHTTPEnv(t)
	env.seedRun("run-1", "Falcon123", time.Time{}, 2)
	env.seedStudent(t, "stu-a", "alder0303")
	env.seedStudent(t, "stu-b", "beech0404")
	env.seedStudent(t, "stu-c", "cedar0505")

	wg, err := workgroup.New(workgroup.NewParams{
		ID:         "wg-full",
		Name:       "Team Alder",
		RunID:      "run-1",
		PeriodID:   "run-1-p1",
		PeriodName: "1",
		MemberIDs:  []string{"stu-a", "stu-b"},
		MaxSize:    2,
	})
	require.NoError(t, err)
	require.NoError(t, env.groups.Create(context.Background(), wg))

	rec, body := env.do(t, http.MethodPost, "/api/student/run/launch", "stu-c", gin.H{
		"runId":          "run-1",
		"workgroupId":    "wg-full",
		"presentUserIds": []string{"stu-c"},
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, codeTooManyMembers, body["messageCode"])
	assert.Equal(t, "wg-full", body["workgroupId"])
}

func TestLaunchRun_ActingUserNotAssociated(t *testing.T) {
	env := newHTTPEnv(t)
	env.seedRun("run-1", "Falcon123", time.Time{}, 3)
	env.seedStudent(t, "stu-1", "amber0101")

	// No enrollment, no workgroup: the launch cannot scope a new team.
	rec, body := env.do(t, http.MethodPost, "/api/student/run/launch", "stu-1", gin.H{
		"runId":          "run-1",
		"presentUserIds": []string{"stu-1"},
	})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, codeActingUserNotAssociated, body["messageCode"])
}

// ─────────────────────────────────────────────────────────────────────────────
// run info
// ─────────────────────────────────────────────────────────────────────────────

func TestRunInfo_Success(t *testing.T) {
	env := newHTTPEnv(t)
	env.seedRun("run-1", "Falcon123", time.Time{}, 3)

	rec, body := env.do(t, http.MethodGet, "/api/student/run/info?runCode=Falcon123", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "run-1", body["id"])
	assert.Equal(t, "Falcon123", body["runCode"])
	assert.Equal(t, false, body["ended"])
	assert.Equal(t, []any{"1", "3rd"}, body["periods"])
	assert.Equal(t, float64(3), body["maxStudentsPerTeam"])
}

func TestRunInfo_NotFoundCodesDifferByLookup(t *testing.T) {
	env := newHTTPEnv(t)

	// A mistyped code and a dangling internal id are different client errors.
	rec, body := env.do(t, http.MethodGet, "/api/student/run/info?runCode=Nope999", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, codeRunCodeNotFound, body["messageCode"])

	rec, body = env.do(t, http.MethodGet, "/api/student/run/info-by-id?runId=ghost", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, codeRunNotFound, body["messageCode"])
}

func TestRunInfo_MissingQueryParam(t *testing.T) {
	env := newHTTPEnv(t)

	rec, body := env.do(t, http.MethodGet, "/api/student/run/info", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeInvalidRequest, body["messageCode"])
}

// ─────────────────────────────────────────────────────────────────────────────
// eligibility
// ─────────────────────────────────────────────────────────────────────────────

func TestCanBeAddedToWorkgroup(t *testing.T) {
	env := newHTTPEnv(t)
	env.seedRun("run-1", "Falcon123", time.Time{}, 2)
	env.seedStudent(t, "stu-a", "alder0303")
	env.seedStudent(t, "stu-b", "beech0404")
	env.seedStudent(t, "stu-c", "cedar0505")

	wg, err := workgroup.New(workgroup.NewParams{
		ID:        "wg-1",
		RunID:     "run-1",
		MemberIDs: []string{"stu-a", "stu-b"},
		MaxSize:   2,
	})
	require.NoError(t, err)
	require.NoError(t, env.groups.Create(context.Background(), wg))

	// Unattached student with no target named: free to join.
	rec, body := env.do(t, http.MethodGet, "/api/student/can-be-added-to-workgroup?runId=run-1", "stu-c", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["status"])

	// A full team is closed to outsiders.
	rec, body = env.do(t, http.MethodGet, "/api/student/can-be-added-to-workgroup?runId=run-1&workgroupId=wg-1", "stu-c", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["status"])
	assert.Equal(t, "wg-1", body["workgroupId"])
	assert.Len(t, body["workgroupMembers"], 2)

	// Members keep seeing their own roster.
	rec, body = env.do(t, http.MethodGet, "/api/student/can-be-added-to-workgroup?runId=run-1&workgroupId=wg-1", "stu-a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["status"])
	assert.Len(t, body["workgroupMembers"], 1)
}

// ─────────────────────────────────────────────────────────────────────────────
// teacher endpoints
// ─────────────────────────────────────────────────────────────────────────────

func TestRunAttendance_ListsEntries(t *testing.T) {
	env := newHTTPEnv(t)
	env.seedRun("run-1", "Falcon123", time.Time{}, 3)
	env.seedStudent(t, "stu-1", "amber0101")

	rec, _ := env.do(t, http.MethodPost, "/api/student/run/register", "stu-1", gin.H{
		"runCode": "Falcon123", "period": "1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/student/run/launch", "stu-1", gin.H{
		"runId":          "run-1",
		"presentUserIds": []string{"stu-1"},
		"absentUserIds":  []string{"stu-9"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := env.do(t, http.MethodGet, "/api/teacher/run/run-1/attendance", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "run-1", body["runId"])
	assert.Len(t, body["entries"], 1)
}

func TestExportRunAttendance_StreamsWorkbook(t *testing.T) {
	env := newHTTPEnv(t)
	env.seedRun("run-1", "Falcon123", time.Time{}, 3)

	rec, _ := env.do(t, http.MethodGet, "/api/teacher/run/run-1/attendance/export", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attendance-run-1.xlsx")
	assert.Equal(t, "xlsx-bytes", rec.Body.String())
}

func TestRunStats(t *testing.T) {
	env := newHTTPEnv(t)
	env.seedRun("run-1", "Falcon123", time.Time{}, 3)
	require.NoError(t, env.stats.Upsert(context.Background(), &run.Stats{
		RunID:          "run-1",
		StudentCount:   4,
		WorkgroupCount: 2,
	}))

	rec, body := env.do(t, http.MethodGet, "/api/teacher/run/run-1/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(4), body["student_count"])
	assert.Equal(t, float64(2), body["workgroup_count"])

	rec, body = env.do(t, http.MethodGet, "/api/teacher/run/ghost/stats", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, codeRunNotFound, body["messageCode"])
}

func TestHealth(t *testing.T) {
	env := newHTTPEnv(t)

	rec, body := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}
