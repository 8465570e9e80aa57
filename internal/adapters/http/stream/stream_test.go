package stream

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/okian/matchd/internal/domain/events"
	"github.com/okian/matchd/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func waitSubscribers(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Subscribers() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers, have %d", n, h.Subscribers())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubStreamsEvents(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(h)
	defer srv.Close()

	all := dial(t, srv, "")
	r6 := dial(t, srv, "?mode=r6")
	waitSubscribers(t, h, 2)

	first := events.New(events.MatchFormed, "rl1", "m-1", events.FormedPayload{QueueNumber: 1})
	second := events.New(events.MatchFormed, "r6", "m-2", events.FormedPayload{QueueNumber: 1})
	if err := h.Deliver(context.Background(), first); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if err := h.Deliver(context.Background(), second); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var got events.Event
	if err := wsjson.Read(ctx, all, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.ID != first.ID {
		t.Errorf("unfiltered subscriber: got %s, want %s", got.ID, first.ID)
	}
	if err := wsjson.Read(ctx, all, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.ID != second.ID {
		t.Errorf("unfiltered subscriber: got %s, want %s", got.ID, second.ID)
	}

	if err := wsjson.Read(ctx, r6, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.ID != second.ID || got.Mode != "r6" {
		t.Errorf("mode filter leaked %s (%s)", got.ID, got.Mode)
	}
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h := NewHub(WithBuffer(1))
	s := h.subscribe("", "")
	defer h.unsubscribe(s)

	for i := 0; i < 5; i++ {
		if err := h.Deliver(context.Background(), events.New(events.VoteProgress, "rl1", "m-1", nil)); err != nil {
			t.Fatalf("deliver: %v", err)
		}
	}
	if len(s.out) != 1 {
		t.Fatalf("expected buffer of 1 to be full, got %d", len(s.out))
	}
}

func TestHubUnsubscribesOnClose(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(h)
	defer srv.Close()

	c := dial(t, srv, "?match_id=m-9")
	waitSubscribers(t, h, 1)
	c.Close(websocket.StatusNormalClosure, "bye")
	waitSubscribers(t, h, 0)
}
