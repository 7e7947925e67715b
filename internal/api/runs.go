package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/agent"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/events"
)

// RunRequest starts or resumes a run. An empty Task resumes the
// session's interrupted run.
type RunRequest struct {
	Task            string `json:"task"`
	SuccessCriteria string `json:"success_criteria,omitempty"`
}

// runErrorStatus maps a StartOrResume error to an HTTP status.
func runErrorStatus(err error) int {
	switch {
	case errors.Is(err, agent.ErrSessionBusy):
		return http.StatusConflict
	case errors.Is(err, agent.ErrNothingToResume):
		return http.StatusBadRequest
	case errors.Is(err, agent.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleRun starts a run and streams its updates as server-sent events,
// one event per update named by its kind. The run keeps going if the
// client disconnects.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	var req RunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorResponse(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	updates, err := s.runner.StartOrResume(r.Context(), id, req.Task, req.SuccessCriteria)
	if err != nil {
		s.errorResponse(w, runErrorStatus(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for u := range updates {
		data, err := json.Marshal(u)
		if err != nil {
			s.logger.Warn("failed to encode update", "error", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", u.Kind, data); err != nil {
			s.logger.Debug("sse client gone", "session", id, "error", err)
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"session_id": id, "cancelled": s.runner.Cancel(id)}, s.logger)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	if err := s.runner.Reset(r.Context(), id); err != nil {
		s.logger.Error("session reset failed", "session", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "reset failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"session_id": id, "reset": true}, s.logger)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The API carries no credentials; any origin may connect.
	CheckOrigin: func(*http.Request) bool { return true },
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// ClientMessage is a command sent over the session websocket.
type ClientMessage struct {
	Type            string `json:"type"` // run, cancel or reset
	Task            string `json:"task,omitempty"`
	SuccessCriteria string `json:"success_criteria,omitempty"`
}

// ServerMessage is sent over the session websocket.
type ServerMessage struct {
	Type      string        `json:"type"` // update, cancelled, reset or error
	SessionID string        `json:"session_id"`
	Update    *agent.Update `json:"update,omitempty"`
	Active    bool          `json:"active,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// wsConn serializes writes; gorilla connections allow one writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

// keepAlive pings until done closes or a ping fails.
func (c *wsConn) keepAlive(done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

// handleSessionSocket serves an interactive session: the client sends
// run, cancel and reset commands and receives every update of the runs
// it started.
func (s *Server) handleSessionSocket(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "session", id, "error", err)
		return
	}
	defer conn.Close()

	ws := &wsConn{conn: conn}
	done := make(chan struct{})
	defer close(done)

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go ws.keepAlive(done)

	s.logger.Info("session websocket connected", "session", id)
	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("session websocket read ended", "session", id, "error", err)
			}
			return
		}

		switch msg.Type {
		case "run":
			updates, err := s.runner.StartOrResume(r.Context(), id, msg.Task, msg.SuccessCriteria)
			if err != nil {
				ws.writeJSON(ServerMessage{Type: "error", SessionID: id, Error: err.Error()})
				continue
			}
			// Once the socket closes the request context ends and the
			// runner drops the rest of this run's updates.
			go func() {
				for {
					select {
					case <-done:
						return
					case u, ok := <-updates:
						if !ok {
							return
						}
						if err := ws.writeJSON(ServerMessage{Type: "update", SessionID: id, Update: &u}); err != nil {
							s.logger.Debug("session websocket write failed", "session", id, "error", err)
						}
					}
				}
			}()
		case "cancel":
			ws.writeJSON(ServerMessage{Type: "cancelled", SessionID: id, Active: s.runner.Cancel(id)})
		case "reset":
			if err := s.runner.Reset(r.Context(), id); err != nil {
				ws.writeJSON(ServerMessage{Type: "error", SessionID: id, Error: err.Error()})
				continue
			}
			ws.writeJSON(ServerMessage{Type: "reset", SessionID: id})
		default:
			ws.writeJSON(ServerMessage{Type: "error", SessionID: id, Error: fmt.Sprintf("unknown message type %q", msg.Type)})
		}
	}
}

// handleEvents streams event-bus events as JSON websocket messages.
// Query parameters source and session_id narrow the stream.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "event stream not configured")
		return
	}
	filter := events.Filter{
		Source:    r.URL.Query().Get("source"),
		SessionID: r.URL.Query().Get("session_id"),
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ws := &wsConn{conn: conn}
	sub := s.bus.Subscribe(256, filter)
	defer s.bus.Unsubscribe(sub)

	// Reads only detect the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case e, ok := <-sub:
			if !ok {
				return
			}
			if err := ws.writeJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			if err := ws.ping(); err != nil {
				return
			}
		}
	}
}
