package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/encorelab/SCORE/internal/domain/enrollment"
	"github.com/encorelab/SCORE/internal/domain/run"
	"github.com/encorelab/SCORE/internal/domain/shared"
	"github.com/encorelab/SCORE/internal/domain/user"
	"github.com/encorelab/SCORE/internal/domain/workgroup"
)

// Stable API error codes. Clients branch on these strings, so they never
// change even when the messages behind them do.
const (
	codeRunCodeNotFound         = "runCodeNotFound"
	codeRunNotFound             = "runNotFound"
	codePeriodNotFound          = "periodNotFound"
	codeAlreadyAddedRun         = "alreadyAddedRun"
	codeRunHasEnded             = "runHasEnded"
	codeFailedToAddStudent      = "failedToAddStudentToRun"
	codeUserNotFound            = "userNotFound"
	codeWorkgroupNotFound       = "workgroupNotFound"
	codeActingUserNotAssociated = "signedInUserNotAssociatedWithRun"
	codeTooManyMembers          = "tooManyMembersInWorkgroup"
	codeAlreadyInWorkgroup      = "userAlreadyInWorkgroup"
	codeInvalidRequest          = "invalidRequest"
	codeInternalError           = "internalError"
)

// Request-shape errors caught before the application layer runs.
var (
	errMissingUser    = errors.New("X-User-ID header is required")
	errMissingRunCode = errors.New("runCode query parameter is required")
	errMissingRunID   = errors.New("runId query parameter is required")
)

// errorBody is the error envelope returned on every failed request.
type errorBody struct {
	Status      bool   `json:"status"`
	MessageCode string `json:"messageCode"`
	Message     string `json:"message,omitempty"`
	WorkgroupID string `json:"workgroupId,omitempty"`
}

// lookupMode selects how a run-not-found error is reported: a bad typed-in
// code and a bad internal id are different client mistakes.
type lookupMode int

const (
	lookupByCode lookupMode = iota
	lookupByID
)

// respondError maps a domain error to the stable API contract.
func respondError(c *gin.Context, err error, mode lookupMode) {
	body := errorBody{Status: false}
	status := http.StatusInternalServerError

	var capErr *workgroup.CapacityError
	var memErr *workgroup.MembershipError

	switch {
	case errors.Is(err, run.ErrRunNotFound) || errors.Is(err, shared.ErrRunNotFound):
		status = http.StatusNotFound
		if mode == lookupByCode {
			body.MessageCode = codeRunCodeNotFound
		} else {
			body.MessageCode = codeRunNotFound
		}

	case errors.Is(err, run.ErrPeriodNotFound) || errors.Is(err, shared.ErrPeriodNotFound):
		status = http.StatusNotFound
		body.MessageCode = codePeriodNotFound

	case errors.Is(err, enrollment.ErrAlreadyEnrolled) || errors.Is(err, shared.ErrAlreadyEnrolled):
		status = http.StatusConflict
		body.MessageCode = codeAlreadyAddedRun

	case errors.Is(err, run.ErrRunHasEnded) || errors.Is(err, shared.ErrRunHasEnded):
		status = http.StatusForbidden
		body.MessageCode = codeRunHasEnded

	case errors.As(err, &capErr):
		status = http.StatusConflict
		body.MessageCode = codeTooManyMembers
		body.WorkgroupID = capErr.WorkgroupID

	case errors.Is(err, workgroup.ErrCapacityExceeded):
		status = http.StatusConflict
		body.MessageCode = codeTooManyMembers

	case errors.As(err, &memErr):
		status = http.StatusConflict
		body.MessageCode = codeAlreadyInWorkgroup
		body.WorkgroupID = memErr.WorkgroupID

	case errors.Is(err, workgroup.ErrAlreadyInWorkgroup):
		status = http.StatusConflict
		body.MessageCode = codeAlreadyInWorkgroup

	case errors.Is(err, shared.ErrActingUserNotAssociated):
		status = http.StatusForbidden
		body.MessageCode = codeActingUserNotAssociated

	case errors.Is(err, workgroup.ErrWorkgroupNotFound):
		status = http.StatusNotFound
		body.MessageCode = codeWorkgroupNotFound

	case errors.Is(err, user.ErrUserNotFound) || errors.Is(err, shared.ErrUserNotFound):
		status = http.StatusNotFound
		body.MessageCode = codeUserNotFound

	case errors.Is(err, shared.ErrEnrollmentFailed) || errors.Is(err, shared.ErrRetryExhausted):
		// Retry ceiling exhausted: a terminal generic failure, deliberately
		// indistinguishable from other hard write failures.
		status = http.StatusInternalServerError
		body.MessageCode = codeFailedToAddStudent

	case errors.Is(err, shared.ErrValidation) || errors.Is(err, shared.ErrInvalidInput):
		status = http.StatusBadRequest
		body.MessageCode = codeInvalidRequest
		body.Message = err.Error()

	default:
		body.MessageCode = codeInternalError
	}

	c.JSON(status, body)
}

// respondInvalid reports a request that failed binding or validation.
func respondInvalid(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorBody{
		Status:      false,
		MessageCode: codeInvalidRequest,
		Message:     err.Error(),
	})
}
