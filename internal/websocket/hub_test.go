package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Priya8975/quakewatch/internal/domain"
	"github.com/Priya8975/quakewatch/internal/store"
	"github.com/gorilla/websocket"
)

func setupTestHub(t *testing.T, events ...domain.Earthquake) (*Hub, *store.SnapshotCache) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	cache := store.NewSnapshotCache()
	if len(events) > 0 {
		cache.Replace(domain.Snapshot{Events: events, LastSeenID: events[0].ID})
	}

	hub := NewHub(cache, logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub, cache
}

func connectWS(t *testing.T, hub *Hub) (*websocket.Conn, func()) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	dialer := websocket.Dialer{}
	conn, _, err := dialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to connect WebSocket: %v", err)
	}

	cleanup := func() {
		conn.Close()
		server.Close()
	}

	return conn, cleanup
}

type wireMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readMessage(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("bad message %q: %v", data, err)
	}
	return msg
}

func snapshotIDs(t *testing.T, raw []byte) []string {
	t.Helper()
	var events []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &events); err != nil {
		t.Fatalf("bad snapshot %q: %v", raw, err)
	}
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	return ids
}

// mockSubscriber records what the hub sends it.
type mockSubscriber struct {
	id       string
	mu       sync.Mutex
	messages [][]byte
	closed   bool
	fail     bool
	received chan struct{}
}

func newMockSubscriber(id string) *mockSubscriber {
	return &mockSubscriber{id: id, received: make(chan struct{}, 16)}
}

func (m *mockSubscriber) ID() string { return m.id }

func (m *mockSubscriber) Send(msg []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("connection reset")
	}
	m.messages = append(m.messages, msg)
	m.received <- struct{}{}
	return nil
}

func (m *mockSubscriber) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *mockSubscriber) wait(t *testing.T, n int) []wireMessage {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-m.received:
		case <-time.After(2 * time.Second):
			t.Fatalf("%s: expected %d messages, timed out after %d", m.id, n, i)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]wireMessage, 0, len(m.messages))
	for _, raw := range m.messages {
		var msg wireMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("bad message %q: %v", raw, err)
		}
		out = append(out, msg)
	}
	return out
}

func (m *mockSubscriber) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func TestHub_ClientCountStartsAtZero(t *testing.T) {
	hub, _ := setupTestHub(t)

	if count := hub.ClientCount(); count != 0 {
		t.Errorf("expected 0 clients initially, got %d", count)
	}
}

func TestHub_ClientConnects(t *testing.T) {
	hub, _ := setupTestHub(t)

	conn, cleanup := connectWS(t, hub)
	defer cleanup()

	// Drain the catch-up message; the client is registered once it arrives.
	readMessage(t, conn)

	if count := hub.ClientCount(); count != 1 {
		t.Errorf("expected 1 client, got %d", count)
	}

	conn.Close()
	time.Sleep(50 * time.Millisecond)

	if count := hub.ClientCount(); count != 0 {
		t.Errorf("expected 0 clients after disconnect, got %d", count)
	}
}

func TestHub_CatchUpOnConnect(t *testing.T) {
	hub, _ := setupTestHub(t, domain.Earthquake{ID: "eq1"}, domain.Earthquake{ID: "eq0"})

	conn, cleanup := connectWS(t, hub)
	defer cleanup()

	msg := readMessage(t, conn)
	if msg.Type != domain.MessageSnapshot {
		t.Fatalf("expected %q, got %q", domain.MessageSnapshot, msg.Type)
	}
	if ids := snapshotIDs(t, msg.Data); len(ids) != 2 || ids[0] != "eq1" || ids[1] != "eq0" {
		t.Errorf("expected catch-up [eq1 eq0], got %v", ids)
	}
}

func TestHub_CatchUpWhenCacheEmpty(t *testing.T) {
	hub, _ := setupTestHub(t)

	conn, cleanup := connectWS(t, hub)
	defer cleanup()

	msg := readMessage(t, conn)
	if msg.Type != domain.MessageSnapshot || string(msg.Data) != "[]" {
		t.Errorf("expected empty snapshot, got %s %s", msg.Type, msg.Data)
	}
}

func TestHub_CatchUpPrecedesNextPublish(t *testing.T) {
	hub, cache := setupTestHub(t, domain.Earthquake{ID: "eq1"})

	sub := newMockSubscriber("late")
	hub.Register(sub)

	cache.Replace(domain.Snapshot{Events: []domain.Earthquake{{ID: "eq2"}, {ID: "eq1"}}, LastSeenID: "eq2"})
	hub.PublishSnapshot(cache.Current())

	msgs := sub.wait(t, 2)
	if ids := snapshotIDs(t, msgs[0].Data); len(ids) != 1 || ids[0] != "eq1" {
		t.Errorf("first message should be the catch-up [eq1], got %v", ids)
	}
	if ids := snapshotIDs(t, msgs[1].Data); len(ids) != 2 || ids[0] != "eq2" {
		t.Errorf("second message should be the periodic publish, got %v", ids)
	}
}

func TestHub_QueuedOlderSnapshotSkippedAfterCatchUp(t *testing.T) {
	for i := 0; i < 20; i++ {
		logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		cache := store.NewSnapshotCache()
		hub := NewHub(cache, logger)

		// eq1 is still queued when the cache has already moved on to eq2.
		cache.Replace(domain.Snapshot{Events: []domain.Earthquake{{ID: "eq1"}}, LastSeenID: "eq1"})
		hub.PublishSnapshot(cache.Current())
		cache.Replace(domain.Snapshot{Events: []domain.Earthquake{{ID: "eq2"}, {ID: "eq1"}}, LastSeenID: "eq2"})

		ctx, cancel := context.WithCancel(context.Background())
		go hub.Run(ctx)

		sub := newMockSubscriber("late")
		hub.Register(sub)

		cache.Replace(domain.Snapshot{Events: []domain.Earthquake{{ID: "eq3"}, {ID: "eq2"}, {ID: "eq1"}}, LastSeenID: "eq3"})
		hub.PublishSnapshot(cache.Current())

		msgs := sub.wait(t, 2)
		cancel()

		if ids := snapshotIDs(t, msgs[0].Data); len(ids) != 2 || ids[0] != "eq2" {
			t.Fatalf("run %d: first message should be the catch-up headed by eq2, got %v", i, ids)
		}
		if ids := snapshotIDs(t, msgs[1].Data); len(ids) != 3 || ids[0] != "eq3" {
			t.Fatalf("run %d: older queued snapshot leaked after catch-up, got %v", i, ids)
		}
	}
}

func TestHub_OutOfRangeTimeStillBroadcasts(t *testing.T) {
	far := domain.Earthquake{ID: "eq9", OccurredAt: time.Date(55840, 11, 9, 0, 0, 0, 0, time.UTC)}
	hub, _ := setupTestHub(t, far)

	sub := newMockSubscriber("sub")
	hub.Register(sub)
	hub.PublishSnapshot([]domain.Earthquake{far})

	msgs := sub.wait(t, 2)
	for i, msg := range msgs {
		if ids := snapshotIDs(t, msg.Data); len(ids) != 1 || ids[0] != "eq9" {
			t.Errorf("message %d: expected [eq9], got %v", i, ids)
		}
	}
}

func TestHub_CatchUpGoesToNewSubscriberOnly(t *testing.T) {
	hub, _ := setupTestHub(t, domain.Earthquake{ID: "eq1"})

	first := newMockSubscriber("first")
	hub.Register(first)
	first.wait(t, 1)

	second := newMockSubscriber("second")
	hub.Register(second)
	second.wait(t, 1)

	hub.PublishNewEvent(domain.Earthquake{ID: "eq2"})
	first.wait(t, 1)

	msgs := first.wait(t, 0)
	if len(msgs) != 2 {
		t.Errorf("first subscriber should have its catch-up and the new event only, got %d messages", len(msgs))
	}
}

func TestHub_BroadcastReachesClient(t *testing.T) {
	hub, _ := setupTestHub(t)

	conn, cleanup := connectWS(t, hub)
	defer cleanup()
	readMessage(t, conn)

	hub.PublishNewEvent(domain.Earthquake{ID: "eq-123", Magnitude: 5.4, Location: "MARMARA DENIZI"})

	msg := readMessage(t, conn)
	if msg.Type != domain.MessageNewEvent {
		t.Fatalf("expected %q, got %q", domain.MessageNewEvent, msg.Type)
	}
	if !strings.Contains(string(msg.Data), "eq-123") {
		t.Errorf("expected message to contain event ID, got: %s", msg.Data)
	}
}

func TestHub_MultipleClients(t *testing.T) {
	hub, _ := setupTestHub(t)

	conn1, cleanup1 := connectWS(t, hub)
	defer cleanup1()
	conn2, cleanup2 := connectWS(t, hub)
	defer cleanup2()

	readMessage(t, conn1)
	readMessage(t, conn2)

	if count := hub.ClientCount(); count != 2 {
		t.Errorf("expected 2 clients, got %d", count)
	}

	hub.PublishSnapshot([]domain.Earthquake{{ID: "eq-multi"}})

	for i, conn := range []*websocket.Conn{conn1, conn2} {
		msg := readMessage(t, conn)
		if !strings.Contains(string(msg.Data), "eq-multi") {
			t.Errorf("client %d didn't receive broadcast", i+1)
		}
	}
}

func TestHub_PoisonedSubscriberDoesNotBlockOthers(t *testing.T) {
	hub, _ := setupTestHub(t)

	healthy1 := newMockSubscriber("healthy-1")
	poisoned := newMockSubscriber("poisoned")
	healthy2 := newMockSubscriber("healthy-2")
	for _, s := range []*mockSubscriber{healthy1, poisoned, healthy2} {
		hub.Register(s)
		s.wait(t, 1)
	}

	poisoned.mu.Lock()
	poisoned.fail = true
	poisoned.mu.Unlock()

	hub.PublishSnapshot([]domain.Earthquake{{ID: "eq9"}})

	for _, s := range []*mockSubscriber{healthy1, healthy2} {
		msgs := s.wait(t, 1)
		if ids := snapshotIDs(t, msgs[1].Data); len(ids) != 1 || ids[0] != "eq9" {
			t.Errorf("%s: expected snapshot [eq9], got %v", s.id, ids)
		}
	}

	// The failed subscriber is dropped after the broadcast.
	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if count := hub.ClientCount(); count != 2 {
		t.Errorf("expected poisoned subscriber to be dropped, %d remain", count)
	}
	if !poisoned.isClosed() {
		t.Error("dropped subscriber should be closed")
	}
}

func TestHub_UnregisterIsIdempotent(t *testing.T) {
	hub, _ := setupTestHub(t)

	sub := newMockSubscriber("s1")
	hub.Register(sub)
	sub.wait(t, 1)

	hub.Unregister(sub)
	hub.Unregister(sub)
	hub.Unregister(newMockSubscriber("never-registered"))

	if count := hub.ClientCount(); count != 0 {
		t.Errorf("expected 0 clients, got %d", count)
	}
	if !sub.isClosed() {
		t.Error("unregistered subscriber should be closed")
	}
}

func TestHub_PublishWithNoSubscribers(t *testing.T) {
	hub, _ := setupTestHub(t)

	// Must not block or panic.
	hub.PublishSnapshot(nil)
	hub.PublishNewEvent(domain.Earthquake{ID: "eq1"})
}

func TestHub_StopClosesSubscribers(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	hub := NewHub(store.NewSnapshotCache(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	sub := newMockSubscriber("s1")
	hub.Register(sub)
	sub.wait(t, 1)

	cancel()
	<-stopped

	if !sub.isClosed() {
		t.Error("subscriber should be closed when the hub stops")
	}

	// Registering after stop closes the newcomer instead of blocking.
	late := newMockSubscriber("late")
	hub.Register(late)
	if !late.isClosed() {
		t.Error("late subscriber should be closed")
	}
	hub.Unregister(late)
}

func TestClient_SendReportsSlowConsumer(t *testing.T) {
	c := &client{id: "c1", send: make(chan []byte, 1)}

	if err := c.Send([]byte("a")); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := c.Send([]byte("b")); !errors.Is(err, ErrSlowConsumer) {
		t.Errorf("expected ErrSlowConsumer, got %v", err)
	}

	c.Close()
	c.Close()
}
