package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/informes/backend/internal/models"
	"github.com/informes/backend/internal/ratelimit"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHistory struct {
	records   []models.SubmissionRecord
	stats     models.SubmissionStats
	err       error
	gotLimit  int
	gotSessID string
}

func (h *stubHistory) Recent(ctx context.Context, sessionID string, limit int) ([]models.SubmissionRecord, error) {
	h.gotLimit, h.gotSessID = limit, sessionID
	return h.records, h.err
}

func (h *stubHistory) Stats(ctx context.Context) (models.SubmissionStats, error) {
	return h.stats, h.err
}

func newTestServer(t *testing.T, history HistoryReader, limiter *ratelimit.Limiter) (*echo.Echo, *testEnv) {
	t.Helper()
	env := newTestEnv(t, "http://127.0.0.1:1")
	e := echo.New()
	SetupMiddleware(e, MiddlewareOptions{BodyLimit: "1M"})
	RegisterRoutes(e, NewHandlers(&Dependencies{
		Store:          env.store,
		Sessions:       env.sessions,
		Downloads:      env.downloads,
		History:        history,
		SubmitLimiter:  limiter,
		DefaultVariant: models.VariantSingleFile,
		Version:        "test",
	}))
	return e, env
}

func serve(e *echo.Echo, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRoutes_Health(t *testing.T) {
	e, env := newTestServer(t, &stubHistory{}, nil)
	env.sessions.Create(models.VariantSingleFile)

	rec := serve(e, http.MethodGet, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.EqualValues(t, 1, body["sessions"])
}

func TestRoutes_ErrorRendering(t *testing.T) {
	e, _ := newTestServer(t, &stubHistory{}, nil)

	rec := serve(e, http.MethodGet, "/api/sessions/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, "NOT_FOUND", apiErr.Code)
	assert.Contains(t, apiErr.Message, "unknown")

	rec = serve(e, http.MethodGet, "/api/downloads/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutes_History(t *testing.T) {
	hist := &stubHistory{
		records: []models.SubmissionRecord{{ID: "r1", SessionID: "s1", Outcome: models.OutcomeSucceeded}},
		stats:   models.SubmissionStats{Total: 1, Succeeded: 1},
	}
	e, _ := newTestServer(t, hist, nil)

	rec := serve(e, http.MethodGet, "/api/history?limit=900&sessionId=s1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 500, hist.gotLimit)
	assert.Equal(t, "s1", hist.gotSessID)

	var body struct {
		Records []models.SubmissionRecord `json:"records"`
		Stats   models.SubmissionStats    `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Records, 1)
	assert.Equal(t, "r1", body.Records[0].ID)
	assert.Equal(t, 1, body.Stats.Succeeded)

	rec = serve(e, http.MethodGet, "/api/history?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	hist.err = errors.New("db closed")
	rec = serve(e, http.MethodGet, "/api/history")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRoutes_SubmitRateLimited(t *testing.T) {
	limiter := ratelimit.NewLimiter(1, time.Minute, 1)
	defer limiter.Close()
	e, env := newTestServer(t, &stubHistory{}, limiter)

	s, err := env.sessions.Create(models.VariantSingleFile)
	require.NoError(t, err)

	rec := serve(e, http.MethodPost, "/api/sessions/"+s.ID+"/submit")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))

	rec = serve(e, http.MethodPost, "/api/sessions/"+s.ID+"/submit")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, "RATE_LIMITED", apiErr.Code)
	assert.True(t, strings.HasPrefix(apiErr.Message, "too many submissions"))
}

func TestRoutes_ListAndDismiss(t *testing.T) {
	e, env := newTestServer(t, &stubHistory{}, nil)
	s, _ := env.sessions.Create(models.VariantFolder)

	rec := serve(e, http.MethodGet, "/api/sessions")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.SessionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, s.ID, list[0].ID)
	assert.Equal(t, models.VariantFolder, list[0].Variant)

	// Empty folder submit shows a message that dismiss clears
	serve(e, http.MethodPost, "/api/sessions/"+s.ID+"/submit")
	require.False(t, s.Controller.State().Message.IsZero())

	rec = serve(e, http.MethodPost, "/api/sessions/"+s.ID+"/dismiss")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, s.Controller.State().Message.IsZero())
}
