package worker

import (
	"time"

	"github.com/okian/matchd/pkg/logger"
)

// Option applies a configuration option to a Dispatcher.
type Option func(*Dispatcher)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(d *Dispatcher) {
		if name != "" {
			d.name = name
		}
	}
}

// WithSinkTimeout bounds each sink delivery.
func WithSinkTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.sinkTimeout = t
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}
