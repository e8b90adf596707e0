package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Priya8975/quakewatch/internal/domain"
	"github.com/Priya8975/quakewatch/internal/engine"
	"github.com/Priya8975/quakewatch/internal/metrics"
)

// ErrSlowConsumer is returned by Send when a subscriber's buffer is full.
var ErrSlowConsumer = errors.New("subscriber send buffer full")

// Subscriber is one connected client. Send must not block.
type Subscriber interface {
	ID() string
	Send(msg []byte) error
	Close()
}

// SnapshotSource provides the catch-up snapshot for new subscribers.
type SnapshotSource interface {
	Current() []domain.Earthquake
}

type outbound struct {
	seq  uint64
	kind string
	data []byte
}

var _ engine.Publisher = (*Hub)(nil)

// Hub tracks connected subscribers and fans messages out to them. All
// changes to the subscriber set happen on the Run goroutine, so a subscriber
// registered before a broadcast is queued gets its catch-up snapshot first.
// Each subscriber remembers the last sequence number its catch-up covers and
// skips older messages still waiting in the queue.
type Hub struct {
	subscribers map[Subscriber]uint64
	seq         atomic.Uint64
	mu          sync.RWMutex
	broadcast   chan outbound
	register    chan Subscriber
	unregister  chan Subscriber
	done        chan struct{}
	snapshots   SnapshotSource
	logger      *slog.Logger
}

// NewHub creates a hub that greets new subscribers with snapshots.Current().
func NewHub(snapshots SnapshotSource, logger *slog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[Subscriber]uint64),
		broadcast:   make(chan outbound, 256),
		register:    make(chan Subscriber),
		unregister:  make(chan Subscriber),
		done:        make(chan struct{}),
		snapshots:   snapshots,
		logger:      logger,
	}
}

// Run starts the hub's event loop. Should be called as a goroutine. When ctx
// is cancelled every subscriber is closed and Run returns.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case s := <-h.register:
			// Read the sequence before the cache: everything queued up to
			// here is already reflected in the catch-up.
			since := h.seq.Load()
			h.mu.Lock()
			h.subscribers[s] = since
			total := len(h.subscribers)
			h.mu.Unlock()
			metrics.Subscribers.Set(float64(total))
			h.logger.Info("subscriber connected", "subscriber_id", s.ID(), "total_clients", total)

			h.sendCatchUp(s)

		case s := <-h.unregister:
			h.remove(s, "subscriber disconnected")

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// Register adds s to the live set and sends it the current snapshot.
func (h *Hub) Register(s Subscriber) {
	select {
	case h.register <- s:
	case <-h.done:
		s.Close()
	}
}

// Unregister removes s. Removing an unknown subscriber is a no-op.
func (h *Hub) Unregister(s Subscriber) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

// PublishSnapshot sends the full event list to every subscriber.
func (h *Hub) PublishSnapshot(events []domain.Earthquake) {
	h.enqueue(domain.Message{Type: domain.MessageSnapshot, Data: events})
}

// PublishNewEvent sends a single new-earthquake notification to every
// subscriber.
func (h *Hub) PublishNewEvent(event domain.Earthquake) {
	h.enqueue(domain.Message{Type: domain.MessageNewEvent, Data: event})
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func (h *Hub) enqueue(msg domain.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal websocket message", "error", err, "message_type", msg.Type)
		return
	}

	select {
	case h.broadcast <- outbound{seq: h.seq.Add(1), kind: msg.Type, data: data}:
	default:
		metrics.BroadcastsDropped.Inc()
		h.logger.Warn("websocket broadcast channel full, dropping message", "message_type", msg.Type)
	}
}

func (h *Hub) sendCatchUp(s Subscriber) {
	data, err := json.Marshal(domain.Message{Type: domain.MessageSnapshot, Data: h.snapshots.Current()})
	if err != nil {
		h.logger.Error("failed to marshal catch-up snapshot", "error", err)
		return
	}

	if err := s.Send(data); err != nil {
		metrics.SendFailures.Inc()
		h.logger.Warn("catch-up send failed", "subscriber_id", s.ID(), "error", err)
		h.remove(s, "subscriber dropped")
		return
	}
	metrics.MessagesSent.WithLabelValues(domain.MessageSnapshot).Inc()
}

// deliver sends msg to every subscriber. A failing subscriber is dropped
// after the loop; the rest still receive the message.
func (h *Hub) deliver(msg outbound) {
	var failed []Subscriber

	h.mu.RLock()
	for s, since := range h.subscribers {
		if msg.seq <= since {
			continue
		}
		if err := s.Send(msg.data); err != nil {
			metrics.SendFailures.Inc()
			h.logger.Warn("websocket send failed", "subscriber_id", s.ID(), "error", err)
			failed = append(failed, s)
			continue
		}
		metrics.MessagesSent.WithLabelValues(msg.kind).Inc()
	}
	h.mu.RUnlock()

	for _, s := range failed {
		h.remove(s, "subscriber dropped")
	}
}

func (h *Hub) remove(s Subscriber, reason string) {
	h.mu.Lock()
	_, ok := h.subscribers[s]
	if ok {
		delete(h.subscribers, s)
	}
	total := len(h.subscribers)
	h.mu.Unlock()

	if !ok {
		return
	}
	s.Close()
	metrics.Subscribers.Set(float64(total))
	h.logger.Info(reason, "subscriber_id", s.ID(), "total_clients", total)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	subs := make([]Subscriber, 0, len(h.subscribers))
	for s := range h.subscribers {
		subs = append(subs, s)
	}
	h.subscribers = make(map[Subscriber]uint64)
	h.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	metrics.Subscribers.Set(0)
	h.logger.Info("hub stopped", "closed_clients", len(subs))
}
