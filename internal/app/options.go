package service

import (
	"time"

	"github.com/okian/matchd/internal/domain/events"
	"github.com/okian/matchd/internal/domain/model"
	"github.com/okian/matchd/internal/domain/readycheck"
	"github.com/okian/matchd/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithModes replaces the configured modes. Invalid modes are rejected by New.
func WithModes(modes ...model.ModeConfig) Option {
	return func(s *Service) {
		if len(modes) > 0 {
			s.modeList = append([]model.ModeConfig(nil), modes...)
		}
	}
}

// WithPublisher sets where lifecycle events go.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithReadyDeadline sets the ready-check window.
func WithReadyDeadline(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.readyDeadline = d
		}
	}
}

// WithNoShowPenalty sets the rating subtracted from players who miss the ready check.
func WithNoShowPenalty(amount int) Option {
	return func(s *Service) {
		if amount >= 0 {
			s.penalty = amount
		}
	}
}

// WithTeardown sets how long finished and cancelled matches stay visible.
func WithTeardown(afterResult, afterCancel time.Duration) Option {
	return func(s *Service) {
		if afterResult >= 0 {
			s.teardown = afterResult
		}
		if afterCancel >= 0 {
			s.cancelTeardown = afterCancel
		}
	}
}

// WithKFactor sets the Elo K factor.
func WithKFactor(k float64) Option {
	return func(s *Service) {
		if k > 0 {
			s.kFactor = k
		}
	}
}

// WithVariance sets the Elo variance.
func WithVariance(v float64) Option {
	return func(s *Service) {
		if v > 0 {
			s.variance = v
		}
	}
}

// WithScheduler replaces the runtime timer for deadlines and teardown.
func WithScheduler(sch readycheck.Scheduler) Option {
	return func(s *Service) {
		if sch != nil {
			s.scheduler = sch
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
