package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/informes/backend/internal/storage"
	"github.com/informes/backend/internal/workflow"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHandler_Mapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"api error", NewConflictError("busy"), http.StatusConflict, "CONFLICT"},
		{"wrapped api error", fmt.Errorf("ctx: %w", NewValidationError("limit")), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"echo error", echo.ErrMethodNotAllowed, http.StatusMethodNotAllowed, "HTTP_ERROR"},
		{"busy controller", fmt.Errorf("submit: %w", workflow.ErrBusy), http.StatusConflict, "CONFLICT"},
		{"closed controller", workflow.ErrClosed, http.StatusNotFound, "NOT_FOUND"},
		{"bad upload id", storage.ErrInvalidUploadID, http.StatusBadRequest, "BAD_REQUEST"},
		{"missing file", storage.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"rate limited", NewRateLimitedError(1500 * time.Millisecond), http.StatusTooManyRequests, "RATE_LIMITED"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "UNKNOWN_ERROR"},
	}

	e := echo.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
			ErrorHandler(tt.err, c)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body APIError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Code)
		})
	}
}

func TestErrorHandler_Details(t *testing.T) {
	e := echo.New()
	render := func(err error) APIError {
		rec := httptest.NewRecorder()
		ErrorHandler(err, e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec))
		var body APIError
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body
	}

	assert.Empty(t, render(errors.New("secret")).Details)

	ExposeErrorDetails = true
	t.Cleanup(func() { ExposeErrorDetails = false })
	assert.Equal(t, "secret", render(errors.New("secret")).Details)

	assert.Equal(t, "too many submissions, retry in 2s", NewRateLimitedError(1500*time.Millisecond).Message)
}

func TestErrorHandler_HeadHasNoBody(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	ErrorHandler(NewNotFoundError("session", "x"), e.NewContext(httptest.NewRequest(http.MethodHead, "/", nil), rec))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Body.String())
}
