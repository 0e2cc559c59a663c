package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Per-viewer queue lengths for New.
const (
	// StatusBuffer holds about a second of per-frame snapshots.
	StatusBuffer = 32

	// PreviewBuffer is small because previews only arrive every few frames
	// and a stale image is worse than none.
	PreviewBuffer = 4
)

// Hub tracks connected viewers and broadcasts messages to them.
// Only the Run goroutine mutates the viewer set.
type Hub struct {
	name   string
	buffer int
	logger *slog.Logger

	clients map[*viewer]struct{}

	broadcast  chan Message
	register   chan *viewer
	unregister chan *viewer

	// mu guards reads of clients from outside Run.
	mu sync.RWMutex

	// latest is replayed to clients when they connect.
	latest atomic.Pointer[Message]

	running atomic.Bool
	dropped atomic.Int64

	// done is closed when Run returns.
	done chan struct{}
}

// New creates a hub whose viewers queue up to buffer messages. If logger is
// nil, slog.Default() is used.
func New(name string, buffer int, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		name:       name,
		buffer:     buffer,
		logger:     logger.With("component", "hub", "hub", name),
		clients:    make(map[*viewer]struct{}),
		broadcast:  make(chan Message, 256),
		register:   make(chan *viewer),
		unregister: make(chan *viewer),
		done:       make(chan struct{}),
	}
}

// Run fans messages out until ctx is cancelled. It should be called in its
// own goroutine.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()
			if latest := h.latest.Load(); latest != nil {
				select {
				case client.send <- *latest:
				default:
				}
			}
			h.logger.Debug("viewer connected", "viewers", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("viewer disconnected", "viewers", count)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("disconnected slow viewer")
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues msg for every client. It never blocks; when the queue is
// full the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	h.latest.Store(&msg)
	select {
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
	}
}

// BroadcastJSON encodes v and broadcasts it as text.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(Text(data))
	return nil
}

// BroadcastBinary broadcasts raw bytes.
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(Binary(data))
}

// ClientCount returns the number of connected viewers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many broadcasts were discarded because the queue was
// full.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// Name returns the hub name.
func (h *Hub) Name() string { return h.name }
