package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"valuepulse/internal/infrastructure"
)

// Message types sent to clients
const (
	TypeConnection = "connection"
	TypeError      = "error"
	TypeDataUpdate = "data_update"
	ActionRefresh  = "refresh"
)

// Message is the envelope of every frame sent to clients
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Subtype   string      `json:"subtype,omitempty"`
	Action    string      `json:"action,omitempty"`
	Timestamp string      `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// HubOption configures a Hub
type HubOption func(*Hub)

// WithMetrics records hub activity on m
func WithMetrics(m *Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// WithKeepalive sets how often clients are pinged and how long to wait
// for their pong
func WithKeepalive(pingPeriod, pongWait time.Duration) HubOption {
	return func(h *Hub) {
		if pingPeriod > 0 && pongWait > pingPeriod {
			h.pingPeriod = pingPeriod
			h.pongWait = pongWait
		}
	}
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	logger *slog.Logger

	metrics    *Metrics
	pingPeriod time.Duration
	pongWait   time.Duration

	totalConnections int64
	messagesSent     int64
	messagesDropped  int64

	quit     chan struct{}
	running  bool
	stopOnce sync.Once
}

// NewHub creates a hub; call Start before registering clients
func NewHub(logger *slog.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	h := &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     infrastructure.WithComponent(logger, "websocket.hub"),
		pingPeriod: 54 * time.Second,
		pongWait:   60 * time.Second,
		quit:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start runs the hub loop in the background
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true
	go h.run()
}

func (h *Hub) run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("hub shutting down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.totalConnections++
			count := len(h.clients)
			h.mu.Unlock()

			ctx := client.context()
			h.metrics.connected(ctx)
			h.logger.InfoContext(ctx, "client registered",
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr),
				slog.Int("total_clients", count))

			if b, err := json.Marshal(h.envelope(TypeConnection, map[string]string{
				"status":    "connected",
				"client_id": client.id,
			}, client.traceID)); err == nil {
				select {
				case client.send <- b:
				default:
				}
			}

		case client := <-h.unregister:
			h.remove(client, "client disconnected")

		case message := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			for _, client := range clients {
				select {
				case client.send <- message:
					h.mu.Lock()
					h.messagesSent++
					h.mu.Unlock()
				default:
					h.metrics.dropped(client.context(), "client_buffer_full")
					h.remove(client, "client send buffer full, disconnecting")
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client, reason string) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	count := len(h.clients)
	h.mu.Unlock()

	ctx := client.context()
	h.metrics.disconnected(ctx, time.Since(client.connectedAt))
	h.logger.InfoContext(ctx, reason,
		slog.String("client_id", client.id),
		slog.Int("total_clients", count),
		slog.Duration("connection_duration", time.Since(client.connectedAt)))
}

func (h *Hub) envelope(msgType string, data interface{}, traceID string) Message {
	return Message{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		TraceID:   traceID,
	}
}

// BroadcastUpdate sends an event to every client. Operation snapshots go
// out as-is; other events carry subtype and action.
func (h *Hub) BroadcastUpdate(eventType, subtype, action string, data interface{}) {
	msg := h.envelope(eventType, data, "")
	if eventType != "operation:snapshot" {
		msg.Subtype = subtype
		msg.Action = action
	}
	h.BroadcastMessage(msg)
}

// BroadcastRefresh tells clients that components should reload their data
func (h *Hub) BroadcastRefresh(source string, components []string) {
	h.BroadcastUpdate(TypeDataUpdate, "all", ActionRefresh, map[string]interface{}{
		"source":     source,
		"components": components,
	})
}

// BroadcastError sends a structured error event
func (h *Hub) BroadcastError(code, message, step string, recoverable bool) {
	h.BroadcastMessage(h.envelope(TypeError, map[string]interface{}{
		"code":        code,
		"message":     message,
		"step":        step,
		"recoverable": recoverable,
	}, ""))
}

// BroadcastMessage queues msg for every client. Messages are dropped when
// the hub is stopped or its queue is full.
func (h *Hub) BroadcastMessage(msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal message",
			slog.String("type", msg.Type),
			slog.String("error", err.Error()))
		return
	}
	select {
	case <-h.quit:
		return
	default:
	}
	select {
	case h.broadcast <- b:
		h.metrics.message(context.Background(), "out", msg.Type, len(b))
	case <-h.quit:
	default:
		h.mu.Lock()
		h.messagesDropped++
		h.mu.Unlock()
		h.metrics.dropped(context.Background(), "queue_full")
		h.logger.Warn("broadcast queue full, dropping message", slog.String("type", msg.Type))
	}
}

// Register adds a client. It returns false once the hub is stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.quit:
		return false
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns counters for the health endpoint
func (h *Hub) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return map[string]interface{}{
		"active_clients":    len(h.clients),
		"total_connections": h.totalConnections,
		"messages_sent":     h.messagesSent,
		"messages_dropped":  h.messagesDropped,
	}
}

// Stop disconnects every client and stops the hub loop
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}
