// Package stream fans lifecycle events out to websocket subscribers.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/okian/matchd/internal/domain/events"
	"github.com/okian/matchd/internal/domain/model"
	"github.com/okian/matchd/pkg/logger"
	"github.com/okian/matchd/pkg/metrics"
)

const (
	defaultBuffer = 64
	writeTimeout  = 5 * time.Second
	pingInterval  = 30 * time.Second
)

type subscriber struct {
	out     chan events.Event
	mode    model.Mode
	matchID string
}

func (s *subscriber) wants(e events.Event) bool { //nolint:gocritic // hugeParam: read-only filter
	if s.mode != "" && s.mode != e.Mode {
		return false
	}
	if s.matchID != "" && s.matchID != e.MatchID {
		return false
	}
	return true
}

// Hub is a worker.Sink that broadcasts to connected websocket clients.
// A subscriber that cannot keep up loses events rather than slowing others.
type Hub struct {
	buffer int
	logger logger.Logger

	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// Option configures a Hub.
type Option func(*Hub)

// WithBuffer sets the per-subscriber buffer.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHub creates a hub with no subscribers.
func NewHub(opts ...Option) *Hub {
	h := &Hub{buffer: defaultBuffer, subs: make(map[*subscriber]struct{})}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logger.Get().Named("stream")
	}
	return h
}

// Name implements worker.Sink.
func (h *Hub) Name() string { return "websocket" }

// Deliver implements worker.Sink.
func (h *Hub) Deliver(_ context.Context, e events.Event) error { //nolint:gocritic // hugeParam: sink signature takes a value
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		if !s.wants(e) {
			continue
		}
		select {
		case s.out <- e:
		default:
			metrics.RecordEventDropped("slow_subscriber")
		}
	}
	return nil
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) subscribe(mode model.Mode, matchID string) *subscriber {
	s := &subscriber{out: make(chan events.Event, h.buffer), mode: mode, matchID: matchID}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *Hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

// ServeHTTP upgrades the request and streams events as JSON text frames.
// Optional query parameters mode and match_id filter the stream.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		h.logger.Warn(r.Context(), "websocket accept failed", logger.Error(err))
		return
	}
	defer c.Close(websocket.StatusInternalError, "stream closed")

	s := h.subscribe(model.Mode(r.URL.Query().Get("mode")), r.URL.Query().Get("match_id"))
	defer h.unsubscribe(s)

	// Clients only listen; CloseRead handles control frames and cancels ctx on close.
	ctx := c.CloseRead(r.Context())
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Close(websocket.StatusNormalClosure, "")
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		case e := <-s.out:
			data, err := json.Marshal(e)
			if err != nil {
				h.logger.Warn(ctx, "failed to encode event", logger.String("event_id", e.ID), logger.Error(err))
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				h.logger.Debug(ctx, "websocket write failed", logger.Error(err))
				return
			}
		}
	}
}
