// handlers_upload.go - Chunked upload handlers for large selections
package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/informes/backend/internal/storage"
	"github.com/informes/backend/internal/upload"
	"github.com/labstack/echo/v4"
)

// UploadJobs runs assembly jobs
type UploadJobs interface {
	StartJob(req upload.Request) upload.Job
	GetJob(id string) (upload.Job, bool)
}

// UploadHandlerImpl implements the UploadHandler interface
type UploadHandlerImpl struct {
	store    storage.Store
	sessions SessionManager
	jobs     UploadJobs
}

// NewUploadHandler creates a new upload handler instance
func NewUploadHandler(store storage.Store, sessions SessionManager, jobs UploadJobs) UploadHandler {
	return &UploadHandlerImpl{
		store:    store,
		sessions: sessions,
		jobs:     jobs,
	}
}

// HandleUploadChunk accepts a single chunk of a chunked upload
func (h *UploadHandlerImpl) HandleUploadChunk(c echo.Context) error {
	var req uploadChunkRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	if err := req.validate(); err != nil {
		return err
	}

	decoded, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return NewBadRequestError("invalid base64 data", err)
	}

	if err := h.store.SaveChunk(req.UploadID, req.ChunkIndex, bytes.NewReader(decoded)); err != nil {
		return NewInternalError("failed to save chunk", err)
	}

	return c.NoContent(http.StatusAccepted)
}

// HandleCompleteUpload completes a chunked upload and starts async processing
func (h *UploadHandlerImpl) HandleCompleteUpload(c echo.Context) error {
	var req completeUploadRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	if err := req.validate(); err != nil {
		return err
	}

	if _, ok := h.sessions.Get(req.SessionID); !ok {
		return NewNotFoundError("session", req.SessionID)
	}

	job := h.jobs.StartJob(upload.Request{
		UploadID:       req.UploadID,
		SessionID:      req.SessionID,
		FileName:       req.Name,
		RelPath:        req.RelPath,
		ContentType:    req.ContentType,
		TotalChunks:    req.TotalChunks,
		OriginalSize:   req.OriginalSize,
		CompressedSize: req.CompressedSize,
		Encoding:       req.Encoding,
	})

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

// HandleUploadJobStatus reports the progress of an upload job
func (h *UploadHandlerImpl) HandleUploadJobStatus(c echo.Context) error {
	id := c.Param("jobId")
	if id == "" {
		return NewValidationError("jobId")
	}

	job, ok := h.jobs.GetJob(id)
	if !ok {
		return NewNotFoundError("upload job", id)
	}
	return c.JSON(http.StatusOK, job)
}

// HandleUploadJobStream streams job progress as server-sent events until the
// job finishes or the client goes away
func (h *UploadHandlerImpl) HandleUploadJobStream(c echo.Context) error {
	jobID := c.Param("jobId")
	if jobID == "" {
		return NewValidationError("jobId")
	}
	if _, ok := h.jobs.GetJob(jobID); !ok {
		return NewNotFoundError("upload job", jobID)
	}

	header := c.Response().Header()
	header.Set(echo.HeaderContentType, "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		job, ok := h.jobs.GetJob(jobID)
		if !ok {
			writeEvent(c, map[string]string{"error": "job not found"})
			return nil
		}
		writeEvent(c, job)
		if job.Status == upload.StatusComplete || job.Status == upload.StatusError {
			return nil
		}

		select {
		case <-c.Request().Context().Done():
			return nil
		case <-ticker.C:
		}
	}
}

func writeEvent(c echo.Context, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Response(), "data: %s\n\n", data)
	c.Response().Flush()
}

// Request/Response types

type uploadChunkRequest struct {
	UploadID   string `json:"uploadId"`
	ChunkIndex int    `json:"chunkIndex"`
	Data       string `json:"data"` // Base64-encoded chunk
}

func (r *uploadChunkRequest) validate() error {
	if r.UploadID == "" {
		return NewValidationError("uploadId")
	}
	if !storage.ValidUploadID(r.UploadID) {
		return NewBadRequestError("uploadId may only contain letters, digits, '-' and '_'", nil)
	}
	if r.ChunkIndex < 0 {
		return NewBadRequestError("chunkIndex must not be negative", nil)
	}
	if r.Data == "" {
		return NewValidationError("data")
	}
	return nil
}

type completeUploadRequest struct {
	UploadID       string `json:"uploadId"`
	SessionID      string `json:"sessionId"`
	Name           string `json:"name"`
	RelPath        string `json:"relPath"`
	ContentType    string `json:"contentType"`
	TotalChunks    int    `json:"totalChunks"`
	OriginalSize   int64  `json:"originalSize"`
	CompressedSize int64  `json:"compressedSize"`
	Encoding       string `json:"encoding"`
}

func (r *completeUploadRequest) validate() error {
	if r.UploadID == "" {
		return NewValidationError("uploadId")
	}
	if !storage.ValidUploadID(r.UploadID) {
		return NewBadRequestError("uploadId may only contain letters, digits, '-' and '_'", nil)
	}
	if r.SessionID == "" {
		return NewValidationError("sessionId")
	}
	if r.Name == "" {
		return NewValidationError("name")
	}
	if r.TotalChunks <= 0 {
		return NewBadRequestError("totalChunks must be positive", nil)
	}
	if r.Encoding != "" && r.Encoding != "gzip" && r.Encoding != "none" {
		return NewBadRequestError("unsupported encoding: "+r.Encoding, nil)
	}
	return nil
}
