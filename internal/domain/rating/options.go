package rating

import (
	"time"

	"github.com/okian/matchd/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithKFactor sets the maximum change per match.
func WithKFactor(k float64) Option {
	return func(e *Engine) {
		if k > 0 {
			e.kFactor = k
		}
	}
}

// WithVariance scales changes by 1600/variance; 1600 leaves them unscaled.
func WithVariance(v float64) Option {
	return func(e *Engine) {
		if v > 0 {
			e.variance = v
		}
	}
}

// WithClock overrides the timestamp source for audit records.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithObserver registers a callback run after each persisted change.
func WithObserver(fn Observer) Option {
	return func(e *Engine) {
		e.observer = fn
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}
