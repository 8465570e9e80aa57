// Package redis pushes lifecycle events onto a Redis list so out-of-process
// consumers (bots, history writers) can replay them in order.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/okian/matchd/internal/domain/events"
)

const (
	// DefaultList is the list events are appended to.
	DefaultList = "matchd:events"
	pingTimeout = 5 * time.Second
)

// Lister is the part of the Redis client the sink uses.
type Lister interface {
	RPush(ctx context.Context, key string, values ...interface{}) *goredis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *goredis.StatusCmd
}

// Sink appends JSON-encoded events to a Redis list.
type Sink struct {
	client Lister
	list   string
	maxLen int64
}

// Option configures a Sink.
type Option func(*Sink)

// WithList sets the list name.
func WithList(name string) Option {
	return func(s *Sink) {
		if name != "" {
			s.list = name
		}
	}
}

// WithMaxLen keeps only the newest n events. Zero keeps everything.
func WithMaxLen(n int64) Option {
	return func(s *Sink) {
		if n >= 0 {
			s.maxLen = n
		}
	}
}

// New wraps an existing client.
func New(client Lister, opts ...Option) *Sink {
	s := &Sink{client: client, list: DefaultList}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect dials addr, checks it with PING and returns the client.
func Connect(ctx context.Context, addr string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr, DB: db})
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// Name implements worker.Sink.
func (s *Sink) Name() string { return "redis" }

// Deliver implements worker.Sink.
func (s *Sink) Deliver(ctx context.Context, e events.Event) error { //nolint:gocritic // hugeParam: sink signature takes a value
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.ID, err)
	}
	if err := s.client.RPush(ctx, s.list, data).Err(); err != nil {
		return fmt.Errorf("rpush to %q: %w", s.list, err)
	}
	if s.maxLen > 0 {
		if err := s.client.LTrim(ctx, s.list, -s.maxLen, -1).Err(); err != nil {
			return fmt.Errorf("ltrim %q: %w", s.list, err)
		}
	}
	return nil
}
