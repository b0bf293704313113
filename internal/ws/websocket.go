// Package ws provides a WebSocket server for real-time notarization
// session updates.
package ws

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tlsnotary/notaryd/internal/config"
	"github.com/tlsnotary/notaryd/internal/queue"
	"github.com/tlsnotary/notaryd/internal/store"
)

// sessionCookieName is the cookie a WebSocket client may carry the API
// token in, as an alternative to the Authorization header or ?token=.
const sessionCookieName = "notaryd_session"

// isLocalhostOrigin checks if the Origin header indicates a localhost request.
func isLocalhostOrigin(origin string) bool {
	return strings.HasPrefix(origin, "http://localhost") ||
		strings.HasPrefix(origin, "http://127.0.0.1") ||
		strings.HasPrefix(origin, "https://localhost") ||
		strings.HasPrefix(origin, "https://127.0.0.1")
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isLocalhostOrigin(origin)
	},
}

// Hub manages WebSocket connections and session-update broadcasting. Under
// load, outgoing messages pass through a bounded priority queue so a phase
// transition is never starved out by a burst of pings.
type Hub struct {
	cfg        *config.Config
	logger     *slog.Logger
	clients    map[*Client]bool
	queue      *queue.Queue
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// Client represents a WebSocket client connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Message types for WebSocket communication.
const (
	MessageTypeSessionStarted  = "session_started"
	MessageTypePhaseChanged    = "phase_changed"
	MessageTypeFieldRevealed   = "field_revealed"
	MessageTypeVerified        = "verified"
	MessageTypePing            = "ping"
)

// Message is a WebSocket message.
type Message struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewHub creates a new WebSocket hub. queueSize bounds the number of
// pending outbound messages before low-priority ones (pings) are dropped
// ahead of phase-change notifications.
func NewHub(cfg *config.Config, logger *slog.Logger, queueSize int) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 1024
	}

	return &Hub{
		cfg:        cfg,
		logger:     logger,
		clients:    make(map[*Client]bool),
		queue:      queue.NewQueue(queueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's main loop: draining the outbound queue, handling
// client (un)registration, and pinging idle connections.
func (h *Hub) Run(ctx context.Context) {
	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.queue.Close()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client connected", "clients", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client disconnected", "clients", len(h.clients))

		case <-pingTicker.C:
			h.enqueue(&Message{Type: MessageTypePing, Timestamp: time.Now()}, queue.PriorityLow)

		case <-h.queue.NotifyCh():
			h.drainQueue()
		}
	}
}

// drainQueue pops every currently-queued message and fans it out to
// connected clients, dropping slow clients rather than blocking the hub.
func (h *Hub) drainQueue() {
	for _, item := range h.queue.PopBatch(h.queue.Len()) {
		msg, ok := item.Data.(*Message)
		if !ok {
			continue
		}
		data, err := json.Marshal(msg)
		if err != nil {
			h.logger.Error("failed to marshal message", "error", err)
			continue
		}

		h.mu.RLock()
		var toRemove []*Client
		for client := range h.clients {
			select {
			case client.send <- data:
			default:
				toRemove = append(toRemove, client)
			}
		}
		h.mu.RUnlock()

		if len(toRemove) > 0 {
			h.mu.Lock()
			for _, client := range toRemove {
				if _, ok := h.clients[client]; ok {
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) enqueue(msg *Message, priority string) {
	dropped := h.queue.Push(&queue.QueueItem{
		Data:      msg,
		Priority:  priority,
		Timestamp: msg.Timestamp,
	})
	if dropped {
		h.logger.Warn("broadcast queue full, dropping message", "type", msg.Type, "priority", priority)
	}
}

// BroadcastSessionStarted announces a newly created notarization session.
func (h *Hub) BroadcastSessionStarted(session *store.Session) {
	h.enqueue(&Message{Type: MessageTypeSessionStarted, Timestamp: time.Now(), Data: sessionToSummary(session)}, queue.PriorityMedium)
}

// BroadcastPhaseChanged announces a session's transition to a new phase.
func (h *Hub) BroadcastPhaseChanged(session *store.Session) {
	h.enqueue(&Message{Type: MessageTypePhaseChanged, Timestamp: time.Now(), Data: sessionToSummary(session)}, queue.PriorityHigh)
}

// BroadcastFieldRevealed announces one keypath's revealed plaintext as
// soon as the prover discloses it, ahead of the final verification result.
func (h *Hub) BroadcastFieldRevealed(sessionID, keypath, plaintext string) {
	h.enqueue(&Message{
		Type:      MessageTypeFieldRevealed,
		Timestamp: time.Now(),
		Data: map[string]string{
			"session_id": sessionID,
			"keypath":    keypath,
			"value":      plaintext,
		},
	}, queue.PriorityMedium)
}

// BroadcastVerified announces a completed verification result.
func (h *Hub) BroadcastVerified(result *store.VerificationResult) {
	h.enqueue(&Message{Type: MessageTypeVerified, Timestamp: time.Now(), Data: result}, queue.PriorityHigh)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Handler returns an HTTP handler for WebSocket connections.
func (h *Hub) Handler(authToken string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentToken := authToken
		if h.cfg != nil {
			currentToken = h.cfg.Auth.Token
		}

		authenticated := false

		cookie, err := r.Cookie(sessionCookieName)
		if err == nil && subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(currentToken)) == 1 {
			authenticated = true
		}

		if !authenticated {
			auth := r.Header.Get("Authorization")
			expectedAuth := "Bearer " + currentToken
			if subtle.ConstantTimeCompare([]byte(auth), []byte(expectedAuth)) == 1 {
				authenticated = true
			}
		}

		if !authenticated {
			token := r.URL.Query().Get("token")
			if subtle.ConstantTimeCompare([]byte(token), []byte(currentToken)) == 1 {
				authenticated = true
			}
		}

		origin := r.Header.Get("Origin")
		if origin != "" && !isLocalhostOrigin(origin) {
			h.logger.Warn("rejected non-localhost WebSocket origin", "origin", origin)
			http.Error(w, "Forbidden: non-localhost origin", http.StatusForbidden)
			return
		}

		if !authenticated {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Error("failed to upgrade connection", "error", err)
			return
		}

		client := &Client{
			hub:  h,
			conn: conn,
			send: make(chan []byte, 256),
		}

		h.register <- client

		go client.writePump()
		go client.readPump()
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				_, _ = w.Write([]byte{'\n'})
				_, _ = w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket error", "error", err)
			}
			break
		}
	}
}

// sessionToSummary converts a session to a summary for WebSocket broadcast.
func sessionToSummary(s *store.Session) map[string]interface{} {
	summary := map[string]interface{}{
		"id":          s.ID,
		"server_name": s.ServerName,
		"phase":       s.Phase,
		"created_at":  s.CreatedAt,
	}
	if s.CompletedAt != nil {
		summary["completed_at"] = *s.CompletedAt
	}
	if s.FailureReason != nil {
		summary["failure_reason"] = *s.FailureReason
	}
	return summary
}
