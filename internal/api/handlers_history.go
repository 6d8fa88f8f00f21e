// handlers_history.go - Submission history handlers
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// HistoryHandlerImpl implements the HistoryHandler interface
type HistoryHandlerImpl struct {
	history HistoryReader
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(history HistoryReader) HistoryHandler {
	return &HistoryHandlerImpl{history: history}
}

// HandleHistory returns recent submissions and totals.
// Query: limit (default 50, max 500), sessionId.
func (h *HistoryHandlerImpl) HandleHistory(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return NewValidationError("limit")
		}
		limit = min(n, 500)
	}

	ctx := c.Request().Context()
	records, err := h.history.Recent(ctx, c.QueryParam("sessionId"), limit)
	if err != nil {
		return NewInternalError("failed to read history", err)
	}
	stats, err := h.history.Stats(ctx)
	if err != nil {
		return NewInternalError("failed to read history stats", err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"records": records,
		"stats":   stats,
	})
}
