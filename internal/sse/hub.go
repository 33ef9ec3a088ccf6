package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tigerphoto/photobooth-backend/internal/logger"
)

// Event names carried on the session stream.
const (
	EventProgress  = "progress"
	EventCompleted = "completed"
	EventFailed    = "failed"
	// EventUnknown wraps payloads that arrived malformed on the wire.
	EventUnknown = "unknown"
)

// KeepaliveInterval is how long a stream may stay silent before a
// synthetic comment frame is emitted to defeat idle-connection timeouts.
const KeepaliveInterval = 15 * time.Second

// Event is the bus envelope. Channel is the session uuid; only event and
// data go out on the wire.
type Event struct {
	Channel string `json:"channel"`
	Event   string `json:"event"`
	Data    any    `json:"data,omitempty"`
}

type Client struct {
	ID       uuid.UUID
	Channel  string
	Outbound chan Event
	done     chan struct{}
}

// Hub fans published events out to every live subscriber of a session
// channel. Delivery is at-most-once with no persistence: a subscriber that
// connects after a publish simply misses it.
type Hub struct {
	mu            sync.RWMutex
	log           *logger.Logger
	subscriptions map[string]map[*Client]bool
	keepalive     time.Duration
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:           log.With("component", "SSEHub"),
		subscriptions: make(map[string]map[*Client]bool),
		keepalive:     KeepaliveInterval,
	}
}

// Subscribe registers a new per-connection client on channel. The caller
// must release it with CloseClient when the stream ends.
func (h *Hub) Subscribe(channel string) *Client {
	client := &Client{
		ID:       uuid.New(),
		Channel:  strings.TrimSpace(channel),
		Outbound: make(chan Event, 16),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	clients, exists := h.subscriptions[client.Channel]
	if !exists {
		clients = make(map[*Client]bool)
		h.subscriptions[client.Channel] = clients
	}
	clients[client] = true

	h.log.Debug("SSE client subscribed", "clientID", client.ID, "channel", client.Channel)
	return client
}

// CloseClient unsubscribes and releases the client's channel resources.
// Safe to call exactly once per client.
func (h *Hub) CloseClient(client *Client) {
	h.mu.Lock()
	if clients, ok := h.subscriptions[client.Channel]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.subscriptions, client.Channel)
		}
	}
	h.mu.Unlock()

	close(client.done)
	close(client.Outbound)
	h.log.Debug("SSE client unsubscribed", "clientID", client.ID, "channel", client.Channel)
}

// Broadcast delivers msg to every subscriber of its channel. Subscribers
// with a full outbound buffer are skipped rather than blocked on.
func (h *Hub) Broadcast(msg Event) {
	if msg.Channel == "" {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients, ok := h.subscriptions[msg.Channel]
	if !ok {
		return
	}
	for c := range clients {
		select {
		case c.Outbound <- msg:
		default:
			h.log.Warn("Dropping SSE message; outbound buffer full", "clientID", c.ID, "channel", msg.Channel)
		}
	}
}

// ServeHTTP drives one subscriber's stream on the request goroutine until
// the client disconnects. It sends an initial retry hint, then event/data
// frames, with a keepalive comment after KeepaliveInterval of silence.
// No database transaction may be held while blocked here.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request, client *Client) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	fmt.Fprint(w, "retry: 3000\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-client.done:
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, open := <-client.Outbound:
			if !open {
				return
			}
			data, err := json.Marshal(msg.Data)
			if err != nil {
				h.log.Warn("Failed to marshal SSE data", "clientID", client.ID, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\n", msg.Event)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
			keepalive.Reset(h.keepalive)
		}
	}
}
