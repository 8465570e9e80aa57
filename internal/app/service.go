// Package service coordinates queues, ready checks, outcome votes and rating
// updates. It is the single entry point the HTTP adapter talks to.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	repository "github.com/okian/matchd/internal/adapters/repository"
	"github.com/okian/matchd/internal/domain/events"
	"github.com/okian/matchd/internal/domain/model"
	"github.com/okian/matchd/internal/domain/pool"
	"github.com/okian/matchd/internal/domain/rating"
	"github.com/okian/matchd/internal/domain/readycheck"
	"github.com/okian/matchd/internal/domain/types"
	"github.com/okian/matchd/pkg/logger"
	"github.com/okian/matchd/pkg/metrics"
)

const (
	defaultTeardown       = 30 * time.Second
	defaultCancelTeardown = 10 * time.Second
)

// ErrClosed is returned by operations on a closed Service.
var ErrClosed = errors.New("service closed")

type modeState struct {
	cfg  model.ModeConfig
	pool *pool.Pool
}

// Service owns the per-mode pools, the active matches and the rating engine.
type Service struct {
	store     repository.Store
	engine    *rating.Engine
	publisher events.Publisher
	scheduler readycheck.Scheduler
	now       func() time.Time
	logger    logger.Logger

	modeList       []model.ModeConfig
	modes          map[model.Mode]*modeState
	readyDeadline  time.Duration
	penalty        int
	teardown       time.Duration
	cancelTeardown time.Duration
	kFactor        float64
	variance       float64

	// ctx outlives requests; asynchronous work such as deadline expiry uses it.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	matches map[string]*match
	numbers map[model.Mode]int
	closed  bool
}

// New builds a Service on top of store.
func New(store repository.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("service: store is required")
	}
	s := &Service{
		store:          store,
		publisher:      events.Discard,
		scheduler:      readycheck.RealScheduler{},
		now:            time.Now,
		modeList:       model.DefaultModes(),
		readyDeadline:  readycheck.DefaultDeadline,
		penalty:        readycheck.DefaultPenalty,
		teardown:       defaultTeardown,
		cancelTeardown: defaultCancelTeardown,
		matches:        make(map[string]*match),
		numbers:        make(map[model.Mode]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.modes = make(map[model.Mode]*modeState, len(s.modeList))
	for _, cfg := range s.modeList {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.modes[cfg.Name]; dup {
			return nil, fmt.Errorf("%w: mode %s configured twice", model.ErrInvalidMode, cfg.Name)
		}
		s.modes[cfg.Name] = &modeState{cfg: cfg, pool: pool.New(cfg.Name)}
	}

	engineOpts := []rating.Option{
		rating.WithClock(s.now),
		rating.WithObserver(s.onRatingChange),
	}
	if s.kFactor > 0 {
		engineOpts = append(engineOpts, rating.WithKFactor(s.kFactor))
	}
	if s.variance > 0 {
		engineOpts = append(engineOpts, rating.WithVariance(s.variance))
	}
	s.engine = rating.NewEngine(store, engineOpts...)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.logger.Info(s.ctx, "matchmaking service ready",
		logger.Int("modes", len(s.modes)),
		logger.Duration("ready_deadline", s.readyDeadline),
		logger.Int("no_show_penalty", s.penalty),
	)
	return s, nil
}

// Close cancels every open ready check and forgets all matches. Players are
// not penalized. Calling Close more than once is safe.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	matches := s.matches
	s.matches = make(map[string]*match)
	s.mu.Unlock()

	for _, m := range matches {
		m.mu.Lock()
		if m.session != nil {
			m.session.Close()
		}
		if m.teardown != nil {
			m.teardown.Stop()
		}
		m.mu.Unlock()
	}
	s.cancel()
	metrics.UpdateActiveMatches(0)
	s.logger.Info(context.Background(), "matchmaking service stopped", logger.Int("dropped_matches", len(matches)))
}

// Modes returns the configured modes sorted by name.
func (s *Service) Modes() []model.ModeConfig {
	out := make([]model.ModeConfig, 0, len(s.modes))
	for _, st := range s.modes {
		out = append(out, st.cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Service) mode(mode model.Mode) (*modeState, error) {
	st, ok := s.modes[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownMode, mode)
	}
	return st, nil
}

// PlayerStats returns the player's rating and record, creating a default one.
func (s *Service) PlayerStats(ctx context.Context, player model.PlayerID, mode model.Mode) (model.PlayerStats, error) {
	if _, err := s.mode(mode); err != nil {
		return model.PlayerStats{}, err
	}
	return s.store.Stats(ctx, player, mode)
}

// Rank returns the player's leaderboard row.
func (s *Service) Rank(ctx context.Context, player model.PlayerID, mode model.Mode) (types.Entry, error) {
	if _, err := s.mode(mode); err != nil {
		return types.Entry{}, err
	}
	return s.store.Rank(ctx, player, mode)
}

// Leaderboard returns the top n players of mode.
func (s *Service) Leaderboard(ctx context.Context, mode model.Mode, n int) ([]types.Entry, error) {
	if _, err := s.mode(mode); err != nil {
		return nil, err
	}
	return s.store.TopN(ctx, mode, n)
}

// RatingHistory returns the newest rating changes of a player first.
func (s *Service) RatingHistory(ctx context.Context, player model.PlayerID, mode model.Mode, limit int) ([]model.RatingChange, error) {
	if _, err := s.mode(mode); err != nil {
		return nil, err
	}
	return s.store.History(ctx, player, mode, limit)
}

// RecentMatches returns the newest completed matches of mode first.
func (s *Service) RecentMatches(ctx context.Context, mode model.Mode, limit int) ([]model.MatchRecord, error) {
	if _, err := s.mode(mode); err != nil {
		return nil, err
	}
	return s.store.Matches(ctx, mode, limit)
}

// AdjustRating adds amount to the player's rating, clamped at zero.
func (s *Service) AdjustRating(ctx context.Context, player model.PlayerID, mode model.Mode, amount int, actor string) (model.RatingChange, error) {
	if _, err := s.mode(mode); err != nil {
		return model.RatingChange{}, err
	}
	return s.engine.ApplyDelta(ctx, player, mode, amount, manualReason(actor))
}

// SetRating replaces the player's rating. Negative values are rejected.
func (s *Service) SetRating(ctx context.Context, player model.PlayerID, mode model.Mode, value int, actor string) (model.RatingChange, error) {
	if _, err := s.mode(mode); err != nil {
		return model.RatingChange{}, err
	}
	return s.engine.SetRating(ctx, player, mode, value, manualReason(actor))
}

func manualReason(actor string) string {
	if actor == "" {
		actor = "admin"
	}
	return "manual adjustment by " + actor
}

// Stats returns a snapshot for monitoring.
func (s *Service) Stats(ctx context.Context) map[string]any {
	queues := make(map[string]int, len(s.modes))
	players := make(map[string]int, len(s.modes))
	for name, st := range s.modes {
		queues[string(name)] = st.pool.Len()
		n := s.store.Count(ctx, name)
		players[string(name)] = n
		metrics.UpdateTotalPlayers(string(name), n)
	}

	s.mu.RLock()
	active := len(s.matches)
	closed := s.closed
	s.mu.RUnlock()

	return map[string]any{
		"running":        !closed,
		"modes":          len(s.modes),
		"queues":         queues,
		"players":        players,
		"active_matches": active,
	}
}

func (s *Service) onRatingChange(ctx context.Context, change model.RatingChange) {
	s.publish(ctx, events.New(events.RatingAdjusted, change.Mode, "", events.RatingPayload{Change: change}))
}

func (s *Service) publish(ctx context.Context, e events.Event) { //nolint:gocritic // hugeParam: events are passed by value
	s.publisher.Publish(ctx, e)
}
