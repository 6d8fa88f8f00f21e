// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"
	"io"

	"github.com/informes/backend/internal/models"
	"github.com/informes/backend/internal/session"
	"github.com/labstack/echo/v4"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// SessionHandler handles intake session operations
type SessionHandler interface {
	HandleCreateSession(c echo.Context) error
	HandleListSessions(c echo.Context) error
	HandleGetSession(c echo.Context) error
	HandleGetSessionMsgpack(c echo.Context) error
	HandleDeleteSession(c echo.Context) error
	HandleDrag(c echo.Context) error
	HandleStageFiles(c echo.Context) error
	HandleSubmit(c echo.Context) error
	HandleDismissMessage(c echo.Context) error
}

// DownloadHandler serves processed documents
type DownloadHandler interface {
	HandleDownload(c echo.Context) error
}

// UploadHandler handles chunked upload operations
type UploadHandler interface {
	HandleUploadChunk(c echo.Context) error
	HandleCompleteUpload(c echo.Context) error
	HandleUploadJobStatus(c echo.Context) error
	HandleUploadJobStream(c echo.Context) error
}

// HistoryHandler reports past submissions
type HistoryHandler interface {
	HandleHistory(c echo.Context) error
}

// EventsHandler streams session state over WebSocket
type EventsHandler interface {
	HandleEvents(c echo.Context) error
}

// SessionManager defines the interface for session management
// This allows mocking in tests
type SessionManager interface {
	Create(variant models.Variant) (*session.SessionState, error)
	Get(id string) (*session.SessionState, bool)
	Touch(id string) bool
	Delete(id string) bool
	List() []models.SessionInfo
}

// DownloadSource hands out stored results once
type DownloadSource interface {
	Fetch(id string) (models.Download, io.ReadCloser, func(), error)
}

// HistoryReader reads the submission audit log
type HistoryReader interface {
	Recent(ctx context.Context, sessionID string, limit int) ([]models.SubmissionRecord, error)
	Stats(ctx context.Context) (models.SubmissionStats, error)
}
