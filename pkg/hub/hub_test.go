package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/teslashibe/go-falldetect/internal/log"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New(log.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.Done()
	})
	return h, cancel
}

// subscriber registers a connectionless client with the given buffer
func subscriber(t *testing.T, h *Hub, buf int) *Client {
	t.Helper()
	c := &Client{hub: h, send: make(chan Message, buf)}
	if !h.join(c) {
		t.Fatal("hub refused client")
	}
	return c
}

func receive(t *testing.T, c *Client) (Message, bool) {
	t.Helper()
	select {
	case m, ok := <-c.send:
		return m, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}, false
	}
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount = %d, want %d", h.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_FanOut(t *testing.T) {
	h, _ := startHub(t)

	a := subscriber(t, h, 4)
	b := subscriber(t, h, 4)

	waitForClients(t, h, 2)

	h.Broadcast(NewJSONMessage([]byte(`{"ok":true}`)))

	for name, c := range map[string]*Client{"a": a, "b": b} {
		m, ok := receive(t, c)
		if !ok {
			t.Fatalf("%s: channel closed", name)
		}
		if string(m.Data) != `{"ok":true}` || m.Type != JSONMessage {
			t.Errorf("%s: got %+v", name, m)
		}
	}
}

func TestHub_PublishFall(t *testing.T) {
	h, _ := startHub(t)
	c := subscriber(t, h, 1)

	if err := h.PublishFall(FallEvent{SessionID: "kitchen", Timestamp: 1.5, FrameCount: 45, Inverted: true}); err != nil {
		t.Fatalf("PublishFall: %v", err)
	}

	m, _ := receive(t, c)
	var ev FallEvent
	if err := json.Unmarshal(m.Data, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != EventFall || ev.SessionID != "kitchen" || ev.FrameCount != 45 || !ev.Inverted {
		t.Errorf("event = %+v", ev)
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	h, _ := startHub(t)

	slow := subscriber(t, h, 0)
	fast := subscriber(t, h, 4)

	h.Broadcast(NewBinaryMessage([]byte{1}))
	receive(t, fast)

	if _, ok := <-slow.send; ok {
		t.Error("slow client should have been closed")
	}
	if h.ClientCount() != 1 {
		t.Errorf("ClientCount = %d, want 1", h.ClientCount())
	}
}

func TestHub_Unregister(t *testing.T) {
	h, _ := startHub(t)
	c := subscriber(t, h, 1)

	h.leave(c)
	if _, ok := <-c.send; ok {
		t.Error("send channel should be closed after leave")
	}
	if h.ClientCount() != 0 {
		t.Errorf("ClientCount = %d, want 0", h.ClientCount())
	}
}

func TestHub_RunStopsOnCancel(t *testing.T) {
	h := New(log.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	c := subscriber(t, h, 1)
	cancel()

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if _, ok := <-c.send; ok {
		t.Error("clients should be disconnected on shutdown")
	}

	// joining a stopped hub must not block
	if h.join(&Client{hub: h, send: make(chan Message)}) {
		t.Error("join succeeded on a stopped hub")
	}
	h.leave(c)
}

func TestHub_BroadcastJSONError(t *testing.T) {
	h := New(log.Discard())
	if err := h.BroadcastJSON(func() {}); err == nil {
		t.Error("expected marshal error")
	}
}
