package gateway

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"
)

// mockTransport records open attempts and sent frames, and lets tests drive
// the delivery callbacks.
type mockTransport struct {
	mu        sync.Mutex
	handlers  Handlers
	openCount int
	openErr   error
	sendErr   error
	endpoints []Endpoint
	sent      [][]byte
	open      bool
}

func (t *mockTransport) SetHandlers(h Handlers) {
	t.mu.Lock()
	t.handlers = h
	t.mu.Unlock()
}

func (t *mockTransport) Open(ep Endpoint) error {
	t.mu.Lock()
	t.openCount++
	t.endpoints = append(t.endpoints, ep)
	err := t.openErr
	if err == nil {
		t.open = true
	}
	handlers := t.handlers
	t.mu.Unlock()

	if err != nil {
		return err
	}
	if handlers.OnOpen != nil {
		handlers.OnOpen()
	}
	return nil
}

func (t *mockTransport) Close() error {
	t.mu.Lock()
	t.open = false
	t.mu.Unlock()
	return nil
}

func (t *mockTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	if !t.open {
		return fmt.Errorf("mock: transport is not open")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	t.sent = append(t.sent, cp)
	return nil
}

// Deliver pushes an inbound frame through the OnMessage callback.
func (t *mockTransport) Deliver(data []byte) {
	t.mu.Lock()
	handlers := t.handlers
	t.mu.Unlock()
	if handlers.OnMessage != nil {
		handlers.OnMessage(data)
	}
}

// DeliverJSON marshals v and delivers it.
func (t *mockTransport) DeliverJSON(tb testing.TB, v any) {
	tb.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		tb.Fatalf("marshal inbound frame: %v", err)
	}
	t.Deliver(data)
}

// SimulateClose drops the link through the OnClose callback.
func (t *mockTransport) SimulateClose(err error) {
	t.mu.Lock()
	t.open = false
	handlers := t.handlers
	t.mu.Unlock()
	if handlers.OnClose != nil {
		handlers.OnClose(err)
	}
}

func (t *mockTransport) sentFrames(tb testing.TB) []map[string]any {
	tb.Helper()
	t.mu.Lock()
	defer t.mu.Unlock()

	frames := make([]map[string]any, 0, len(t.sent))
	for _, data := range t.sent {
		var f map[string]any
		if err := json.Unmarshal(data, &f); err != nil {
			tb.Fatalf("sent frame is not JSON: %v", err)
		}
		frames = append(frames, f)
	}
	return frames
}

func (t *mockTransport) openAttempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.openCount
}

// fakeClock is an adjustable time source for retry-window tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
