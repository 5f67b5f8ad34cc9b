package api

import (
	"errors"
	"net/http"

	"github.com/yukkuri-system/workflow-core/contracts"
)

// API-specific errors.
var (
	// ErrProjectRunning is returned when trying to start a project that
	// already has an in-flight Execute call.
	ErrProjectRunning = errors.New("project already running")

	// ErrNotImplemented is returned for endpoints not yet implemented.
	ErrNotImplemented = errors.New("not implemented")
)

// ErrorCode represents an API error code.
type ErrorCode string

// Error codes for API responses.
const (
	CodeInvalidInput    ErrorCode = "invalid_input"
	CodeDependencyError ErrorCode = "dependency_error"
	CodeProjectNotFound ErrorCode = "project_not_found"
	CodeProjectRunning  ErrorCode = "project_running"
	CodeResourceError   ErrorCode = "resource_error"
	CodeBudgetExceeded  ErrorCode = "budget_exceeded"
	CodeExecutionError  ErrorCode = "execution_error"
	CodeDeadlock        ErrorCode = "deadlock"
	CodeCancelled       ErrorCode = "cancelled"
	CodeTimeout         ErrorCode = "timeout"
	CodeNotImplemented  ErrorCode = "not_implemented"
	CodeInternalError   ErrorCode = "internal_error"
)

// HTTPError represents an error with an associated HTTP status code.
type HTTPError struct {
	StatusCode int
	Code       ErrorCode
	Err        error
}

func (e *HTTPError) Error() string { return e.Err.Error() }
func (e *HTTPError) Unwrap() error { return e.Err }

// MapError maps a domain error to an HTTPError, per the §7 error taxonomy.
func MapError(err error) *HTTPError {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, contracts.ErrInvalidInput),
		errors.Is(err, contracts.ErrInvalidTransition):
		return &HTTPError{http.StatusBadRequest, CodeInvalidInput, err}

	case errors.Is(err, contracts.ErrCycle),
		errors.Is(err, contracts.ErrUnknownDep),
		errors.Is(err, contracts.ErrDAGInvalid):
		return &HTTPError{http.StatusUnprocessableEntity, CodeDependencyError, err}

	case errors.Is(err, contracts.ErrProjectNotFound),
		errors.Is(err, contracts.ErrStageNotFound),
		errors.Is(err, contracts.ErrWorkflowNotFound):
		return &HTTPError{http.StatusNotFound, CodeProjectNotFound, err}

	case errors.Is(err, ErrProjectRunning),
		errors.Is(err, contracts.ErrExists):
		return &HTTPError{http.StatusConflict, CodeProjectRunning, err}

	case errors.Is(err, contracts.ErrDeadlock),
		errors.Is(err, contracts.ErrInfeasible),
		errors.Is(err, contracts.ErrUnknownResource),
		errors.Is(err, contracts.ErrQuota):
		return &HTTPError{http.StatusConflict, CodeResourceError, err}

	case errors.Is(err, contracts.ErrBudgetExceeded):
		return &HTTPError{http.StatusUnprocessableEntity, CodeBudgetExceeded, err}

	case errors.Is(err, contracts.ErrExecutionFailed):
		return &HTTPError{http.StatusInternalServerError, CodeExecutionError, err}

	case errors.Is(err, contracts.ErrCancelled):
		// 499: nginx convention for "client closed request"
		return &HTTPError{499, CodeCancelled, err}

	case errors.Is(err, contracts.ErrTimeout):
		return &HTTPError{http.StatusGatewayTimeout, CodeTimeout, err}

	case errors.Is(err, ErrNotImplemented):
		return &HTTPError{http.StatusNotImplemented, CodeNotImplemented, err}

	default:
		return &HTTPError{http.StatusInternalServerError, CodeInternalError, err}
	}
}

// WriteError writes an error response to the HTTP response writer.
func WriteError(w http.ResponseWriter, err error) {
	httpErr := MapError(err)
	if httpErr == nil {
		return
	}

	resp := ErrorDTO{
		Code:    string(httpErr.Code),
		Message: httpErr.Error(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpErr.StatusCode)
	writeJSON(w, resp)
}
