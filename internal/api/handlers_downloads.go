// handlers_downloads.go - One-shot download of processed documents
package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/informes/backend/internal/downloads"
	"github.com/informes/backend/internal/intake"
	"github.com/labstack/echo/v4"
)

// DownloadHandlerImpl implements the DownloadHandler interface
type DownloadHandlerImpl struct {
	source DownloadSource
}

// NewDownloadHandler creates a new download handler
func NewDownloadHandler(source DownloadSource) DownloadHandler {
	return &DownloadHandlerImpl{source: source}
}

// HandleDownload streams a result as an attachment. The link is gone after
// the first fetch.
func (h *DownloadHandlerImpl) HandleDownload(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	d, body, release, err := h.source.Fetch(id)
	if err != nil {
		if errors.Is(err, downloads.ErrNotFound) {
			return NewNotFoundError("download", id)
		}
		return NewInternalError("failed to open download", err)
	}
	defer release()
	defer body.Close()

	header := c.Response().Header()
	header.Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": d.Filename}))
	header.Set(echo.HeaderContentType, intake.DetectContentType(d.Filename, nil))
	header.Set("Cache-Control", "no-store")
	if d.Size > 0 {
		header.Set(echo.HeaderContentLength, strconv.FormatInt(d.Size, 10))
	}
	c.Response().WriteHeader(http.StatusOK)
	_, err = io.Copy(c.Response(), body)
	return err
}
