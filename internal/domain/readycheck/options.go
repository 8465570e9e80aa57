package readycheck

import (
	"context"
	"time"

	"github.com/okian/matchd/pkg/logger"
)

// Option applies a configuration option to a Session.
type Option func(*Session)

// WithDeadline sets the ready-up window.
func WithDeadline(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.deadline = d
		}
	}
}

// WithScheduler replaces the runtime timer, mainly for tests.
func WithScheduler(sch Scheduler) Option {
	return func(s *Session) {
		if sch != nil {
			s.scheduler = sch
		}
	}
}

// WithClock sets the time source used for remaining-time reporting.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPenalty sets the no-show penalty and the engine that applies it.
func WithPenalty(amount int, p Penalizer) Option {
	return func(s *Session) {
		if amount >= 0 {
			s.penalty = amount
		}
		s.penalizer = p
	}
}

// WithHooks registers transition callbacks.
func WithHooks(h Hooks) Option {
	return func(s *Session) {
		s.hooks = h
	}
}

// WithContext sets the context used for penalties applied on expiry.
func WithContext(ctx context.Context) Option {
	return func(s *Session) {
		if ctx != nil {
			s.ctx = ctx
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}
