// Package notify pushes upload events to browsers over WebSocket.
package notify

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/JonMunkholm/uploadkit/internal/core"
)

// EventType names what happened to a record.
type EventType string

const (
	EventFilesAdded   EventType = "files_added"
	EventProgress     EventType = "progress"
	EventCompleted    EventType = "completed"
	EventFailed       EventType = "failed"
	EventCancelled    EventType = "cancelled"
	EventRetried      EventType = "retried"
	EventRemoved      EventType = "removed"
	EventDeleted      EventType = "deleted"
	EventAllCompleted EventType = "all_completed"
)

// Event is the JSON message sent to subscribers of a session.
type Event struct {
	Type      EventType    `json:"type"`
	SessionID string       `json:"sessionId"`
	FileID    string       `json:"fileId,omitempty"`
	Progress  float64      `json:"progress,omitempty"`
	Status    core.Status  `json:"status,omitempty"`
	Message   string       `json:"message,omitempty"`
	Result    *core.Result `json:"result,omitempty"`
	Files     []string     `json:"files,omitempty"`
	At        time.Time    `json:"at"`
}

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// client serializes writes; gorilla connections allow one writer at a time.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub holds WebSocket connections grouped by session.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*client]struct{}
	log      *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		sessions: make(map[string]map[*client]struct{}),
		log:      logger.With("component", "notify_hub"),
	}
}

func (h *Hub) register(sessionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.sessions[sessionID]
	if !ok {
		set = make(map[*client]struct{})
		h.sessions[sessionID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(sessionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.sessions[sessionID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.sessions, sessionID)
	}
}

// Subscribers returns the number of open connections for a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Publish sends ev to every connection of ev.SessionID. Write failures drop
// the connection.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := sonic.Marshal(ev)
	if err != nil {
		h.log.Error("encode event", "type", ev.Type, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.sessions[ev.SessionID]))
	for c := range h.sessions[ev.SessionID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.write(payload); err != nil {
			h.log.Debug("dropping subscriber", "session_id", ev.SessionID, "error", err)
			h.unregister(ev.SessionID, c)
			_ = c.conn.Close()
		}
	}
}

// Serve upgrades the request and streams events of sessionID until the
// client goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c := &client{conn: conn}
	h.register(sessionID, c)
	defer h.unregister(sessionID, c)

	// Incoming messages are ignored; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
