// errors.go - APIError values and the echo error renderer
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/informes/backend/internal/storage"
	"github.com/informes/backend/internal/workflow"
	"github.com/labstack/echo/v4"
)

// APIError is the JSON body of every failed API call.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

func newAPIError(status int, code, message string, cause error) *APIError {
	e := &APIError{Status: status, Code: code, Message: message}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// NewBadRequestError is a 400 carrying the cause as details.
func NewBadRequestError(message string, cause error) *APIError {
	return newAPIError(http.StatusBadRequest, "BAD_REQUEST", message, cause)
}

// NewValidationError reports a missing or malformed request field.
func NewValidationError(field string) *APIError {
	return newAPIError(http.StatusBadRequest, "VALIDATION_ERROR", "invalid or missing field: "+field, nil)
}

func NewNotFoundError(resource, id string) *APIError {
	return newAPIError(http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("%s not found: %s", resource, id), nil)
}

// NewConflictError is returned when the session is busy with a submission.
func NewConflictError(message string) *APIError {
	return newAPIError(http.StatusConflict, "CONFLICT", message, nil)
}

func NewInternalError(message string, cause error) *APIError {
	return newAPIError(http.StatusInternalServerError, "INTERNAL_ERROR", message, cause)
}

func NewServiceUnavailableError(message string) *APIError {
	return newAPIError(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message, nil)
}

// NewRateLimitedError rounds retryAfter up to whole seconds.
func NewRateLimitedError(retryAfter time.Duration) *APIError {
	secs := int(math.Ceil(retryAfter.Seconds()))
	return newAPIError(http.StatusTooManyRequests, "RATE_LIMITED",
		fmt.Sprintf("too many submissions, retry in %ds", secs), nil)
}

// ExposeErrorDetails includes the text of unexpected errors in responses.
var ExposeErrorDetails = false

// toAPIError maps any handler error onto an APIError. ok is false for errors
// nothing recognises.
func toAPIError(err error) (apiErr *APIError, ok bool) {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &apiErr):
		return apiErr, true
	case errors.As(err, &he):
		return newAPIError(he.Code, "HTTP_ERROR", fmt.Sprint(he.Message), nil), true
	case errors.Is(err, workflow.ErrBusy):
		return NewConflictError("a submission is already in progress"), true
	case errors.Is(err, workflow.ErrClosed):
		return newAPIError(http.StatusNotFound, "NOT_FOUND", "session closed", nil), true
	case errors.Is(err, storage.ErrInvalidUploadID):
		return NewBadRequestError("invalid upload id", err), true
	case errors.Is(err, storage.ErrNotFound):
		return newAPIError(http.StatusNotFound, "NOT_FOUND", "file not found", nil), true
	}

	apiErr = newAPIError(http.StatusInternalServerError, "UNKNOWN_ERROR", "An unexpected error occurred", nil)
	if ExposeErrorDetails {
		apiErr.Details = err.Error()
	}
	return apiErr, false
}

// ErrorHandler renders handler errors as APIError JSON.
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	apiErr, ok := toAPIError(err)
	if !ok {
		slog.Error("unhandled API error", "component", "api",
			"method", c.Request().Method, "path", c.Path(), "err", err)
	}

	if c.Request().Method == http.MethodHead {
		c.NoContent(apiErr.Status)
		return
	}
	c.JSON(apiErr.Status, apiErr)
}
