package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lcalzada-xor/wsensor/internal/core/domain"
)

const (
	eventBuffer   = 256
	writeDeadline = 5 * time.Second
	// DefaultSweep is how often a status snapshot is pushed to clients.
	DefaultSweep = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSMessage is the envelope of every message sent to clients.
type WSMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// WSManager fans pipeline events out to websocket clients. Publish never
// blocks; events are dropped while the outbound queue is full.
type WSManager struct {
	// Snapshot, when set, is sent to every client each Sweep.
	Snapshot func() any
	Sweep    time.Duration

	events  chan domain.Event
	clients map[*websocket.Conn]struct{}
	mu      sync.Mutex
	logger  *slog.Logger
	dropped atomic.Uint64
}

// NewWSManager builds a manager; call Start before publishing.
func NewWSManager(logger *slog.Logger) *WSManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSManager{
		Sweep:   DefaultSweep,
		events:  make(chan domain.Event, eventBuffer),
		clients: make(map[*websocket.Conn]struct{}),
		logger:  logger.With("component", "ws"),
	}
}

// Start runs the broadcaster until ctx is cancelled, then closes every client.
func (m *WSManager) Start(ctx context.Context) {
	go m.processAndBroadcast(ctx)
}

// Publish implements ports.EventPublisher.
func (m *WSManager) Publish(ev domain.Event) {
	select {
	case m.events <- ev:
	default:
		m.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded on a full queue.
func (m *WSManager) Dropped() uint64 { return m.dropped.Load() }

// Clients returns the number of connected clients.
func (m *WSManager) Clients() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// HandleWebSocket upgrades the request and registers the client.
func (m *WSManager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	m.mu.Lock()
	m.clients[conn] = struct{}{}
	m.mu.Unlock()
	m.logger.Debug("Websocket client connected", "remote", r.RemoteAddr)

	// clients never send; reading detects the disconnect
	go func() {
		defer m.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (m *WSManager) remove(conn *websocket.Conn) {
	m.mu.Lock()
	if _, ok := m.clients[conn]; ok {
		delete(m.clients, conn)
		conn.Close()
	}
	m.mu.Unlock()
}

func (m *WSManager) processAndBroadcast(ctx context.Context) {
	var tick <-chan time.Time
	if m.Snapshot != nil && m.Sweep > 0 {
		ticker := time.NewTicker(m.Sweep)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return
		case ev := <-m.events:
			m.broadcastMessage(WSMessage{Type: "event", Payload: ev})
		case <-tick:
			m.broadcastMessage(WSMessage{Type: "status", Payload: m.Snapshot()})
		}
	}
}

func (m *WSManager) broadcastMessage(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		m.logger.Warn("Failed to encode websocket message", "type", msg.Type, "error", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for conn := range m.clients {
		conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(m.clients, conn)
		}
	}
}

func (m *WSManager) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for conn := range m.clients {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "sensor stopping"),
			time.Now().Add(time.Second))
		conn.Close()
		delete(m.clients, conn)
	}
}
