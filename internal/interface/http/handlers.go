package http

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/encorelab/SCORE/internal/application/command"
	"github.com/encorelab/SCORE/internal/application/query"
	"github.com/encorelab/SCORE/internal/domain/attendance"
	"github.com/encorelab/SCORE/internal/domain/run"
	"github.com/encorelab/SCORE/pkg/logger"
)

// headerUserID carries the signed-in user's id, stamped by the auth gateway
// in front of this service.
const headerUserID = "X-User-ID"

// AttendanceExporter renders a run's attendance log to a spreadsheet.
type AttendanceExporter interface {
	Export(ctx context.Context, runID string, entries []*attendance.Entry, w io.Writer) error
}

// ReadyCheck reports whether a dependency is ready to serve.
type ReadyCheck func(ctx context.Context) error

// Handler holds the application handlers behind the HTTP routes.
type Handler struct {
	enroll      *command.EnrollStudentHandler
	launch      *command.LaunchRunHandler
	runInfo     *query.GetRunInfoHandler
	studentRuns *query.GetStudentRunsHandler
	canJoin     *query.CanJoinWorkgroupHandler
	runAttend   *query.GetRunAttendanceHandler
	statsRepo   run.StatsRepository
	exporter    AttendanceExporter
	readyChecks map[string]ReadyCheck
	log         *logger.Logger
}

// HandlerDeps bundles the dependencies of the HTTP handler.
type HandlerDeps struct {
	Enroll      *command.EnrollStudentHandler
	Launch      *command.LaunchRunHandler
	RunInfo     *query.GetRunInfoHandler
	StudentRuns *query.GetStudentRunsHandler
	CanJoin     *query.CanJoinWorkgroupHandler
	RunAttend   *query.GetRunAttendanceHandler
	StatsRepo   run.StatsRepository
	Exporter    AttendanceExporter
	ReadyChecks map[string]ReadyCheck
	Logger      *logger.Logger
}

// NewHandler creates the HTTP handler.
func NewHandler(deps HandlerDeps) *Handler {
	if deps.Logger == nil {
		deps.Logger = logger.Default()
	}
	return &Handler{
		enroll:      deps.Enroll,
		launch:      deps.Launch,
		runInfo:     deps.RunInfo,
		studentRuns: deps.StudentRuns,
		canJoin:     deps.CanJoin,
		runAttend:   deps.RunAttend,
		statsRepo:   deps.StatsRepo,
		exporter:    deps.Exporter,
		readyChecks: deps.ReadyChecks,
		log:         deps.Logger.With(logger.Component("handler")),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Health
// ─────────────────────────────────────────────────────────────────────────────

// Health reports process liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports dependency readiness.
func (h *Handler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.readyChecks))
	ready := true
	for name, check := range h.readyChecks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
		} else {
			checks[name] = "ok"
		}
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"ready": ready, "checks": checks})
}

// ─────────────────────────────────────────────────────────────────────────────
// Student endpoints
// ─────────────────────────────────────────────────────────────────────────────

// registerRunRequest is the registration payload.
type registerRunRequest struct {
	RunCode string `json:"runCode" binding:"required,runcode"`
	Period  string `json:"period" binding:"required"`
}

// RegisterRun associates the signed-in student with a run/period.
// POST /api/student/run/register
func (h *Handler) RegisterRun(c *gin.Context) {
	userID := c.GetHeader(headerUserID)
	if userID == "" {
		respondInvalid(c, errMissingUser)
		return
	}

	var req registerRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}

	result, err := h.enroll.Handle(c.Request.Context(), command.EnrollStudentCommand{
		UserID:        userID,
		RunCode:       req.RunCode,
		PeriodName:    req.Period,
		CorrelationID: requestID(c),
	})
	if err != nil {
		respondError(c, err, lookupByCode)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   true,
		"runId":    result.Run.ID,
		"runCode":  result.Run.Runcode.String(),
		"period":   result.Record.PeriodName,
		"attempts": result.Attempts,
	})
}

// launchRunRequest is the launch payload.
type launchRunRequest struct {
	RunID          string   `json:"runId" binding:"required"`
	WorkgroupID    string   `json:"workgroupId"`
	PresentUserIDs []string `json:"presentUserIds" binding:"required,min=1"`
	AbsentUserIDs  []string `json:"absentUserIds"`
}

// LaunchRun assembles the workgroup, records attendance, and returns the
// start-project URL.
// POST /api/student/run/launch
func (h *Handler) LaunchRun(c *gin.Context) {
	userID := c.GetHeader(headerUserID)
	if userID == "" {
		respondInvalid(c, errMissingUser)
		return
	}

	var req launchRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}

	result, err := h.launch.Handle(c.Request.Context(), command.LaunchRunCommand{
		ActingUserID:   userID,
		RunID:          req.RunID,
		WorkgroupID:    req.WorkgroupID,
		PresentUserIDs: req.PresentUserIDs,
		AbsentUserIDs:  req.AbsentUserIDs,
		CorrelationID:  requestID(c),
	})
	if err != nil {
		respondError(c, err, lookupByID)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":           true,
		"workgroupId":      result.Workgroup.ID,
		"workgroupCreated": result.WorkgroupCreated,
		"addedMemberIds":   result.AddedMemberIDs,
		"startProjectUrl":  result.StartProjectURL,
	})
}

// RunInfo resolves a run by its typed-in code.
// GET /api/student/run/info?runCode=Falcon123
func (h *Handler) RunInfo(c *gin.Context) {
	code := c.Query("runCode")
	if code == "" {
		respondInvalid(c, errMissingRunCode)
		return
	}

	result, err := h.runInfo.Handle(c.Request.Context(), query.GetRunInfoQuery{RunCode: code})
	if err != nil {
		respondError(c, err, lookupByCode)
		return
	}

	c.JSON(http.StatusOK, result.Run)
}

// RunInfoByID resolves a run by internal id.
// GET /api/student/run/info-by-id?runId=...
func (h *Handler) RunInfoByID(c *gin.Context) {
	id := c.Query("runId")
	if id == "" {
		respondInvalid(c, errMissingRunID)
		return
	}

	result, err := h.runInfo.Handle(c.Request.Context(), query.GetRunInfoQuery{RunID: id})
	if err != nil {
		respondError(c, err, lookupByID)
		return
	}

	c.JSON(http.StatusOK, result.Run)
}

// StudentRuns lists the signed-in student's runs with rosters.
// GET /api/student/runs
func (h *Handler) StudentRuns(c *gin.Context) {
	userID := c.GetHeader(headerUserID)
	if userID == "" {
		respondInvalid(c, errMissingUser)
		return
	}

	result, err := h.studentRuns.Handle(c.Request.Context(), query.GetStudentRunsQuery{UserID: userID})
	if err != nil {
		respondError(c, err, lookupByID)
		return
	}

	c.JSON(http.StatusOK, result)
}

// CanBeAddedToWorkgroup checks whether a student may join a workgroup.
// GET /api/student/can-be-added-to-workgroup?runId=...&userId=...&workgroupId=...
func (h *Handler) CanBeAddedToWorkgroup(c *gin.Context) {
	actingUserID := c.GetHeader(headerUserID)
	if actingUserID == "" {
		respondInvalid(c, errMissingUser)
		return
	}

	q := query.CanJoinWorkgroupQuery{
		RunID:        c.Query("runId"),
		WorkgroupID:  c.Query("workgroupId"),
		UserID:       c.Query("userId"),
		ActingUserID: actingUserID,
	}
	if q.UserID == "" {
		q.UserID = actingUserID
	}

	result, err := h.canJoin.Handle(c.Request.Context(), q)
	if err != nil {
		respondError(c, err, lookupByID)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ─────────────────────────────────────────────────────────────────────────────
// Teacher endpoints
// ─────────────────────────────────────────────────────────────────────────────

// RunAttendance lists a run's attendance log in timestamp order.
// GET /api/teacher/run/:runId/attendance?workgroupId=...
func (h *Handler) RunAttendance(c *gin.Context) {
	result, err := h.runAttend.Handle(c.Request.Context(), query.GetRunAttendanceQuery{
		RunID:       c.Param("runId"),
		WorkgroupID: c.Query("workgroupId"),
	})
	if err != nil {
		respondError(c, err, lookupByID)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ExportRunAttendance streams the attendance log as an XLSX workbook.
// GET /api/teacher/run/:runId/attendance/export
func (h *Handler) ExportRunAttendance(c *gin.Context) {
	runID := c.Param("runId")

	result, err := h.runAttend.Handle(c.Request.Context(), query.GetRunAttendanceQuery{RunID: runID})
	if err != nil {
		respondError(c, err, lookupByID)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="attendance-`+runID+`.xlsx"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")

	if err := h.exporter.Export(c.Request.Context(), runID, result.Entries, c.Writer); err != nil {
		h.log.Error("attendance export failed", logger.RunID(runID), logger.Err(err))
		// Headers are already out; closing the stream is all that's left.
		c.Abort()
	}
}

// RunStats returns the per-run statistics projection.
// GET /api/teacher/run/:runId/stats
func (h *Handler) RunStats(c *gin.Context) {
	stats, err := h.statsRepo.Get(c.Request.Context(), c.Param("runId"))
	if err != nil {
		respondError(c, err, lookupByID)
		return
	}

	c.JSON(http.StatusOK, stats)
}
