// handlers_sessions.go - Intake session handlers: staging, drag state and submission
package api

import (
	"errors"
	"net/http"

	"github.com/informes/backend/internal/intake"
	"github.com/informes/backend/internal/models"
	"github.com/informes/backend/internal/session"
	"github.com/informes/backend/internal/workflow"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	sessions       SessionManager
	defaultVariant models.Variant
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions SessionManager, defaultVariant models.Variant) SessionHandler {
	if defaultVariant == "" {
		defaultVariant = models.VariantSingleFile
	}
	return &SessionHandlerImpl{
		sessions:       sessions,
		defaultVariant: defaultVariant,
	}
}

// sessionResponse is the body of every session endpoint
type sessionResponse struct {
	Session models.SessionInfo `json:"session" msgpack:"session"`
	State   workflow.State     `json:"state" msgpack:"state"`
}

func newSessionResponse(s *session.SessionState, st workflow.State) sessionResponse {
	return sessionResponse{Session: s.Info(), State: st}
}

type createSessionRequest struct {
	Variant string `json:"variant"`
}

type dragRequest struct {
	Event string `json:"event"`
}

// HandleCreateSession starts a new intake session
func (h *SessionHandlerImpl) HandleCreateSession(c echo.Context) error {
	var req createSessionRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return NewBadRequestError("invalid JSON body", err)
		}
	}

	variant := h.defaultVariant
	if req.Variant != "" {
		v, err := models.ParseVariant(req.Variant)
		if err != nil {
			return NewBadRequestError("invalid variant", err)
		}
		variant = v
	}

	s, err := h.sessions.Create(variant)
	if err != nil {
		if errors.Is(err, session.ErrTooManySessions) {
			return NewServiceUnavailableError("too many active sessions, try again later")
		}
		return NewInternalError("failed to create session", err)
	}

	return c.JSON(http.StatusCreated, newSessionResponse(s, s.Controller.State()))
}

// HandleListSessions lists live sessions
func (h *SessionHandlerImpl) HandleListSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, h.sessions.List())
}

func (h *SessionHandlerImpl) lookup(c echo.Context) (*session.SessionState, error) {
	id := c.Param("id")
	if id == "" {
		return nil, NewValidationError("id")
	}
	s, ok := h.sessions.Get(id)
	if !ok {
		return nil, NewNotFoundError("session", id)
	}
	return s, nil
}

// HandleGetSession returns the current state of a session
func (h *SessionHandlerImpl) HandleGetSession(c echo.Context) error {
	s, err := h.lookup(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newSessionResponse(s, s.Controller.State()))
}

// HandleGetSessionMsgpack returns the session state msgpack-encoded
func (h *SessionHandlerImpl) HandleGetSessionMsgpack(c echo.Context) error {
	s, err := h.lookup(c)
	if err != nil {
		return err
	}

	data, err := msgpack.Marshal(newSessionResponse(s, s.Controller.State()))
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleDeleteSession closes a session and releases its staged files
func (h *SessionHandlerImpl) HandleDeleteSession(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}
	if !h.sessions.Delete(id) {
		return NewNotFoundError("session", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleDrag applies a drop-zone lifecycle event
func (h *SessionHandlerImpl) HandleDrag(c echo.Context) error {
	s, err := h.lookup(c)
	if err != nil {
		return err
	}

	var req dragRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.Event == "" {
		return NewValidationError("event")
	}
	ev, err := intake.ParseDragEvent(req.Event)
	if err != nil {
		return NewBadRequestError("invalid drag event", err)
	}

	return c.JSON(http.StatusOK, newSessionResponse(s, s.Controller.Drag(ev)))
}

// HandleStageFiles accepts a drop or picker selection as multipart/form-data.
// Every "files" part is a candidate; optional "paths" values carry relative
// paths in the same order.
func (h *SessionHandlerImpl) HandleStageFiles(c echo.Context) error {
	s, err := h.lookup(c)
	if err != nil {
		return err
	}

	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError("expected multipart form", err)
	}
	defer form.RemoveAll()

	headers := form.File["files"]
	if len(headers) == 0 {
		headers = form.File["file"]
	}
	if len(headers) == 0 {
		return NewValidationError("files")
	}

	candidates := intake.FromFileHeaders(headers, form.Value["paths"])
	st, err := s.Controller.Stage(c.Request().Context(), candidates)
	if err != nil {
		if errors.Is(err, workflow.ErrClosed) {
			return NewNotFoundError("session", s.ID)
		}
		return NewInternalError("failed to stage files", err)
	}

	return c.JSON(http.StatusOK, newSessionResponse(s, st))
}

// HandleSubmit sends the staged set to the report generator. A failed remote
// call is reported in the state message, not as an HTTP error.
func (h *SessionHandlerImpl) HandleSubmit(c echo.Context) error {
	s, err := h.lookup(c)
	if err != nil {
		return err
	}

	st, err := s.Controller.Submit(c.Request().Context())
	switch {
	case errors.Is(err, workflow.ErrBusy):
		return NewConflictError("a submission is already in progress")
	case errors.Is(err, workflow.ErrClosed):
		return NewNotFoundError("session", s.ID)
	case err != nil:
		return NewInternalError("submission failed", err)
	}

	return c.JSON(http.StatusOK, newSessionResponse(s, st))
}

// HandleDismissMessage clears the status message
func (h *SessionHandlerImpl) HandleDismissMessage(c echo.Context) error {
	s, err := h.lookup(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newSessionResponse(s, s.Controller.Dismiss()))
}
