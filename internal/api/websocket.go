// websocket.go - Live session state over WebSocket
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/informes/backend/internal/intake"
	"github.com/informes/backend/internal/session"
	"github.com/informes/backend/internal/workflow"
	"github.com/labstack/echo/v4"
)

// WebSocket message types
const (
	// Client -> Server messages
	MsgTypePing    = "ping"
	MsgTypeDrag    = "drag"
	MsgTypeDismiss = "dismiss"

	// Server -> Client messages
	MsgTypeState  = "state"
	MsgTypePong   = "pong"
	MsgTypeError  = "error"
	MsgTypeClosed = "closed"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
	wsPongWait   = 2 * wsPingPeriod
)

// WSMessage is the envelope of every WebSocket frame
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WSErrorPayload describes a rejected client message
type WSErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler streams session state snapshots
type WebSocketHandler struct {
	sessions SessionManager
	upgrader websocket.Upgrader
	maxRead  int64
	logger   *slog.Logger
}

// NewWebSocketHandler creates the events handler. maxMessageKB caps client frames.
func NewWebSocketHandler(sessions SessionManager, maxMessageKB int) EventsHandler {
	if maxMessageKB <= 0 {
		maxMessageKB = 64
	}
	return &WebSocketHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Same-origin SPA and the dev server both connect
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
		},
		maxRead: int64(maxMessageKB) * 1024,
		logger:  slog.With("component", "websocket"),
	}
}

// wsConn serializes writes; gorilla allows one concurrent writer.
type wsConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) send(msgType, id string, payload interface{}) error {
	msg := WSMessage{Type: msgType, ID: id, Timestamp: time.Now().UnixMilli()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		msg.Payload = raw
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.ws.WriteJSON(msg)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

// HandleEvents upgrades the connection and pushes a state snapshot after every
// change of the session.
func (h *WebSocketHandler) HandleEvents(c echo.Context) error {
	id := c.Param("id")
	s, ok := h.sessions.Get(id)
	if !ok {
		return NewNotFoundError("session", id)
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	conn := &wsConn{ws: ws}
	log := h.logger.With("session", s.ID)
	log.Debug("client connected")

	updates, cancel := s.Controller.Subscribe()
	defer cancel()

	if err := conn.send(MsgTypeState, "", newSessionResponse(s, s.Controller.State())); err != nil {
		return nil
	}

	done := make(chan struct{})
	go h.writeLoop(conn, s, updates, done)

	ws.SetReadLimit(h.maxRead)
	ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("connection error", "err", err)
			}
			break
		}
		ws.SetReadDeadline(time.Now().Add(wsPongWait))
		h.handleMessage(conn, s, msg)
	}

	close(done)
	log.Debug("client disconnected")
	return nil
}

func (h *WebSocketHandler) writeLoop(conn *wsConn, s *session.SessionState, updates <-chan workflow.State, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case st, ok := <-updates:
			if !ok {
				conn.send(MsgTypeClosed, "", nil)
				conn.ws.Close()
				return
			}
			if err := conn.send(MsgTypeState, "", newSessionResponse(s, st)); err != nil {
				conn.ws.Close()
				return
			}
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				conn.ws.Close()
				return
			}
		case <-done:
			return
		}
	}
}

func (h *WebSocketHandler) handleMessage(conn *wsConn, s *session.SessionState, msg WSMessage) {
	switch msg.Type {
	case MsgTypePing:
		// an open page keeps its session from expiring
		h.sessions.Touch(s.ID)
		conn.send(MsgTypePong, msg.ID, nil)

	case MsgTypeDrag:
		var req dragRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			h.sendError(conn, msg.ID, "invalid drag payload: "+err.Error(), "INVALID_PAYLOAD")
			return
		}
		ev, err := intake.ParseDragEvent(req.Event)
		if err != nil {
			h.sendError(conn, msg.ID, err.Error(), "INVALID_PAYLOAD")
			return
		}
		// the resulting snapshot reaches the client through the subscription
		s.Controller.Drag(ev)

	case MsgTypeDismiss:
		s.Controller.Dismiss()

	default:
		h.sendError(conn, msg.ID, "Unknown message type: "+msg.Type, "INVALID_TYPE")
	}
}

func (h *WebSocketHandler) sendError(conn *wsConn, id, message, code string) {
	if err := conn.send(MsgTypeError, id, WSErrorPayload{Message: message, Code: code}); err != nil {
		h.logger.Debug("failed to send error", "err", err)
	}
}
