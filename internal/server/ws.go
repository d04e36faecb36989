package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/repsense/internal/engine"
	"github.com/ayusman/repsense/internal/pose"
	"github.com/ayusman/repsense/internal/session"
)

// Client message types.
const (
	msgConfigure = "configure"
	msgFrame     = "frame"
	msgEnd       = "end"
)

// Server message types.
const (
	msgConfigured = "configured"
	msgResult     = "result"
	msgSummary    = "summary"
	msgError      = "error"
)

// endTimeout bounds persisting a session whose client went away.
const endTimeout = 5 * time.Second

func newUpgrader(allowed []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range allowed {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}
}

// wireLandmark accepts the MediaPipe JSON shape. A missing visibility means
// the landmark was detected.
type wireLandmark struct {
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Z          float64  `json:"z"`
	Visibility *float64 `json:"visibility"`
}

type clientMessage struct {
	Type      string          `json:"type"`
	Exercise  string          `json:"exercise,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Landmarks []*wireLandmark `json:"landmarks,omitempty"`
}

type serverMessage struct {
	Type       string           `json:"type"`
	Exercise   string           `json:"exercise,omitempty"`
	Calibrated *bool            `json:"calibrated,omitempty"`
	Result     *engine.Result   `json:"result,omitempty"`
	Summary    *session.Summary `json:"summary,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// toFrame converts wire landmarks to a frame. Null entries become
// zero-visibility landmarks so the detectors treat them as occluded.
func toFrame(in []*wireLandmark) pose.Frame {
	frame := make(pose.Frame, len(in))
	for i, l := range in {
		if l == nil {
			continue
		}
		vis := 1.0
		if l.Visibility != nil {
			vis = *l.Visibility
		}
		frame[i] = pose.Landmark{X: l.X, Y: l.Y, Z: l.Z, Visibility: vis}
	}
	return frame
}

// SessionHandler runs one workout session per WebSocket connection. Clients
// send configure, frame and end messages and receive a result per frame.
type SessionHandler struct {
	newSession func() *session.Session
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

// NewSessionHandler creates a SessionHandler. newSession is called once per connection.
func NewSessionHandler(newSession func() *session.Session, allowedOrigins []string, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandler{
		newSession: newSession,
		upgrader:   newUpgrader(allowedOrigins),
		logger:     logger.With("component", "ws"),
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s := h.newSession()
	ended := false
	defer func() {
		if ended {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), endTimeout)
		defer cancel()
		if _, err := s.End(ctx); err != nil {
			h.logger.Error("Failed to end abandoned session", "session_id", s.ID(), "error", err)
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket read error", "session_id", s.ID(), "error", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reply(conn, serverMessage{Type: msgError, Error: "invalid message"})
			continue
		}

		switch msg.Type {
		case msgConfigure:
			if err := s.Start(r.Context(), msg.Exercise); err != nil {
				h.reply(conn, serverMessage{Type: msgError, Error: err.Error()})
				continue
			}
			calibrated := s.Dispatcher().Calibrated()
			h.reply(conn, serverMessage{
				Type:       msgConfigured,
				Exercise:   s.Dispatcher().Exercise(),
				Calibrated: &calibrated,
			})

		case msgFrame:
			res := s.Process(toFrame(msg.Landmarks), msg.Timestamp)
			if err := h.reply(conn, serverMessage{Type: msgResult, Result: &res}); err != nil {
				return
			}

		case msgEnd:
			ended = true
			sum, err := s.End(r.Context())
			if err != nil {
				h.logger.Error("Failed to persist session", "session_id", s.ID(), "error", err)
			}
			h.reply(conn, serverMessage{Type: msgSummary, Summary: &sum})
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		default:
			h.reply(conn, serverMessage{Type: msgError, Error: "unknown message type " + msg.Type})
		}
	}
}

func (h *SessionHandler) reply(conn *websocket.Conn, msg serverMessage) error {
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Debug("WebSocket write failed", "error", err)
		return err
	}
	return nil
}

// LiveHandler broadcasts results of the local camera pipeline to every
// connected client.
type LiveHandler struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]*sync.Mutex
}

// NewLiveHandler creates a LiveHandler with no clients.
func NewLiveHandler(allowedOrigins []string, logger *slog.Logger) *LiveHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveHandler{
		upgrader: newUpgrader(allowedOrigins),
		logger:   logger.With("component", "live"),
		clients:  make(map[*websocket.Conn]*sync.Mutex),
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = &sync.Mutex{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Clients returns the number of connected clients.
func (h *LiveHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a result to all connected clients. Clients that fail the
// write are closed and dropped.
func (h *LiveHandler) Broadcast(res engine.Result) {
	h.mu.RLock()
	if len(h.clients) == 0 {
		h.mu.RUnlock()
		return
	}
	h.mu.RUnlock()

	msg, err := json.Marshal(serverMessage{Type: msgResult, Result: &res})
	if err != nil {
		h.logger.Error("Failed to marshal live result", "error", err)
		return
	}

	var failed []*websocket.Conn
	h.mu.RLock()
	for conn, wmu := range h.clients {
		wmu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, msg)
		wmu.Unlock()
		if err != nil {
			h.logger.Debug("Dropping live client", "remote", conn.RemoteAddr().String(), "error", err)
			failed = append(failed, conn)
		}
	}
	h.mu.RUnlock()

	if len(failed) == 0 {
		return
	}
	h.mu.Lock()
	for _, conn := range failed {
		delete(h.clients, conn)
		conn.Close()
	}
	h.mu.Unlock()
}
