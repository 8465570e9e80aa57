// Package config defines service configuration and how it is loaded.
package config

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/okian/matchd/internal/domain/model"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// ModeSpec is the file representation of one mode.
type ModeSpec struct {
	RosterSize int `koanf:"roster_size"`
	Quorum     int `koanf:"quorum"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the rating store: memory or sqlite.
	StoreDriver string `koanf:"store_driver"`
	SQLitePath  string `koanf:"sqlite_path"`

	ReadyCheckSeconds     int `koanf:"ready_check_seconds"`
	TeardownSeconds       int `koanf:"teardown_seconds"`
	CancelTeardownSeconds int `koanf:"cancel_teardown_seconds"`
	ShutdownSeconds       int `koanf:"shutdown_seconds"`

	KFactor       float64 `koanf:"k_factor"`
	Variance      float64 `koanf:"variance"`
	DefaultRating int     `koanf:"default_rating"`
	NoShowPenalty int     `koanf:"no_show_penalty"`

	// EventQueueSize bounds the in-memory event queue.
	EventQueueSize int `koanf:"event_queue_size"`
	// EventWorkerCount is the number of dispatchers. One keeps delivery in publish order.
	EventWorkerCount int `koanf:"event_worker_count"`

	// RedisAddr enables the Redis event sink when set.
	RedisAddr   string `koanf:"redis_addr"`
	RedisDB     int    `koanf:"redis_db"`
	RedisList   string `koanf:"redis_list"`
	RedisMaxLen int64  `koanf:"redis_max_len"`

	// MaxLeaderboardLimit caps the limit query parameter.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// Modes replaces the built-in modes when non-empty.
	Modes map[string]ModeSpec `koanf:"modes"`
}

// New returns a Config holding the defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:              "info",
		Addr:                  ":9080",
		StoreDriver:           DriverMemory,
		SQLitePath:            "matchd.db",
		ReadyCheckSeconds:     240,
		TeardownSeconds:       30,
		CancelTeardownSeconds: 10,
		ShutdownSeconds:       10,
		KFactor:               25,
		Variance:              1600,
		DefaultRating:         model.DefaultRating,
		NoShowPenalty:         80,
		EventQueueSize:        4096,
		EventWorkerCount:      1,
		RedisList:             "matchd:events",
		MaxLeaderboardLimit:   100,
	}
}

// ModeConfigs returns the configured modes sorted by name, or the built-in
// modes when none are configured.
func (c *Config) ModeConfigs() []model.ModeConfig {
	if len(c.Modes) == 0 {
		return model.DefaultModes()
	}
	out := make([]model.ModeConfig, 0, len(c.Modes))
	for name, spec := range c.Modes {
		out = append(out, model.ModeConfig{Name: model.Mode(name), RosterSize: spec.RosterSize, Quorum: spec.Quorum})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ReadyDeadline is the ready-check window.
func (c *Config) ReadyDeadline() time.Duration {
	return time.Duration(c.ReadyCheckSeconds) * time.Second
}

// Teardown is how long a completed match stays visible.
func (c *Config) Teardown() time.Duration { return time.Duration(c.TeardownSeconds) * time.Second }

// CancelTeardown is how long a cancelled match stays visible.
func (c *Config) CancelTeardown() time.Duration {
	return time.Duration(c.CancelTeardownSeconds) * time.Second
}

// ShutdownTimeout bounds graceful shutdown.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownSeconds) * time.Second
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.StoreDriver != DriverMemory && c.StoreDriver != DriverSQLite:
		return fmt.Errorf("%w: store_driver %q must be %s or %s", ErrInvalidConfig, c.StoreDriver, DriverMemory, DriverSQLite)
	case c.StoreDriver == DriverSQLite && c.SQLitePath == "":
		return fmt.Errorf("%w: sqlite_path is required for the sqlite driver", ErrInvalidConfig)
	case c.ReadyCheckSeconds <= 0:
		return fmt.Errorf("%w: ready_check_seconds must be positive", ErrInvalidConfig)
	case c.TeardownSeconds < 0 || c.CancelTeardownSeconds < 0:
		return fmt.Errorf("%w: teardown delays must not be negative", ErrInvalidConfig)
	case c.KFactor <= 0 || c.Variance <= 0:
		return fmt.Errorf("%w: k_factor and variance must be positive", ErrInvalidConfig)
	case c.DefaultRating < 0 || c.NoShowPenalty < 0:
		return fmt.Errorf("%w: default_rating and no_show_penalty must not be negative", ErrInvalidConfig)
	case c.EventQueueSize <= 0 || c.EventWorkerCount <= 0:
		return fmt.Errorf("%w: event_queue_size and event_worker_count must be positive", ErrInvalidConfig)
	case c.MaxLeaderboardLimit <= 0:
		return fmt.Errorf("%w: max_leaderboard_limit must be positive", ErrInvalidConfig)
	}
	for _, m := range c.ModeConfigs() {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}
