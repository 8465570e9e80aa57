// Package readycheck implements the per-match ready-up state machine.
//
// A Session waits for every expected player to confirm before a deadline.
// Reaching the full set moves it to MatchStarting. On expiry the unready
// players are penalized and either replaced from the live substitute pool,
// which spawns a fresh Session, or the match is cancelled. Every state other
// than AwaitingReady is terminal for that instance.
package readycheck

import (
	"context"
	"sync"
	"time"

	"github.com/okian/matchd/internal/domain/model"
	"github.com/okian/matchd/pkg/logger"
	"github.com/okian/matchd/pkg/metrics"
)

const (
	// DefaultDeadline is the ready-up window.
	DefaultDeadline = 240 * time.Second
	// DefaultPenalty is subtracted from every player who failed to ready up.
	DefaultPenalty = 80
)

// State of a Session.
type State int

const (
	AwaitingReady State = iota
	MatchStarting
	Substituting
	Cancelled
)

func (s State) String() string {
	switch s {
	case AwaitingReady:
		return "awaiting_ready"
	case MatchStarting:
		return "match_starting"
	case Substituting:
		return "substituting"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// SubstitutePool is the live queue substitutes are drawn from.
type SubstitutePool interface {
	// TakeFront atomically removes the first n waiting players, or none.
	TakeFront(n int) ([]model.PlayerID, bool)
}

// Penalizer applies the no-show rating change.
type Penalizer interface {
	ApplyDelta(ctx context.Context, player model.PlayerID, mode model.Mode, delta int, reason string) (model.RatingChange, error)
}

// Progress is the observable state of a Session after a confirm.
type Progress struct {
	MatchID   string        `json:"match_id"`
	Confirmed int           `json:"confirmed"`
	Expected  int           `json:"expected"`
	Remaining time.Duration `json:"remaining"`
	State     State         `json:"state"`
}

// AllReady reports whether the confirm completed the roster.
func (p Progress) AllReady() bool { return p.State == MatchStarting }

// Substitution describes a roster swap made on expiry.
type Substitution struct {
	Replaced    []model.PlayerID
	Substitutes []model.PlayerID
	Penalties   []model.RatingChange
}

// Hooks receive expiry transitions. They run after the session lock is
// released, on the goroutine that caused the transition. OnSubstituted runs
// before the next session is started.
type Hooks struct {
	OnSubstituted func(old, next *Session, sub Substitution)
	OnCancelled   func(s *Session, unready []model.PlayerID, penalties []model.RatingChange, cause error)
}

// Session is one ready-check attempt for a fixed roster.
type Session struct {
	matchID string
	mode    model.Mode

	pool      SubstitutePool
	penalizer Penalizer
	penalty   int
	deadline  time.Duration
	scheduler Scheduler
	now       func() time.Time
	hooks     Hooks
	logger    logger.Logger
	ctx       context.Context

	mu        sync.Mutex
	expected  []model.PlayerID
	confirmed map[model.PlayerID]struct{}
	state     State
	expiresAt time.Time
	timer     Timer
}

// New creates a session for expected players. The deadline starts on Start.
func New(matchID string, mode model.Mode, expected []model.PlayerID, pool SubstitutePool, opts ...Option) *Session {
	s := &Session{
		matchID:   matchID,
		mode:      mode,
		pool:      pool,
		penalty:   DefaultPenalty,
		deadline:  DefaultDeadline,
		scheduler: RealScheduler{},
		now:       time.Now,
		ctx:       context.Background(),
		expected:  append([]model.PlayerID(nil), expected...),
		confirmed: make(map[model.PlayerID]struct{}, len(expected)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("readycheck")
	}
	return s
}

// Start arms the deadline. Calling it more than once has no effect.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil || s.state != AwaitingReady {
		return
	}
	s.expiresAt = s.now().Add(s.deadline)
	s.timer = s.scheduler.AfterFunc(s.deadline, s.expire)
}

// Expected returns the roster in slot order.
func (s *Session) Expected() []model.PlayerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.PlayerID(nil), s.expected...)
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConfirmed reports whether player has confirmed.
func (s *Session) IsConfirmed(player model.PlayerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.confirmed[player]
	return ok
}

// Progress returns the current confirm count and remaining time.
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked()
}

func (s *Session) progressLocked() Progress {
	remaining := time.Duration(0)
	if s.state == AwaitingReady && !s.expiresAt.IsZero() {
		remaining = max(0, s.expiresAt.Sub(s.now()))
	}
	return Progress{
		MatchID:   s.matchID,
		Confirmed: len(s.confirmed),
		Expected:  len(s.expected),
		Remaining: remaining,
		State:     s.state,
	}
}

// Confirm records player as ready. A rejected confirm changes nothing.
// The confirm that completes the roster stops the deadline and moves the
// session to MatchStarting; its Progress reports AllReady.
func (s *Session) Confirm(player model.PlayerID) (Progress, error) {
	s.mu.Lock()
	if s.state != AwaitingReady {
		p := s.progressLocked()
		s.mu.Unlock()
		return p, model.ErrSessionClosed
	}
	if !s.expectedLocked(player) {
		p := s.progressLocked()
		s.mu.Unlock()
		return p, model.ErrNotInMatch
	}
	if _, ok := s.confirmed[player]; ok {
		p := s.progressLocked()
		s.mu.Unlock()
		return p, model.ErrAlreadyConfirmed
	}
	s.confirmed[player] = struct{}{}
	done := len(s.confirmed) == len(s.expected)
	if done {
		s.state = MatchStarting
		if s.timer != nil {
			s.timer.Stop()
		}
	}
	p := s.progressLocked()
	s.mu.Unlock()

	if done {
		metrics.RecordReadyCheck(string(s.mode), "ready")
		s.logger.Info(s.ctx, "all players ready",
			logger.String("match_id", s.matchID),
			logger.Int("players", p.Expected),
		)
	}
	return p, nil
}

// Close stops the deadline and cancels the session without penalties.
// It is used when the owner shuts down.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != AwaitingReady {
		return
	}
	s.state = Cancelled
	if s.timer != nil {
		s.timer.Stop()
	}
}

func (s *Session) expire() {
	s.mu.Lock()
	if s.state != AwaitingReady {
		s.mu.Unlock()
		return
	}
	unready := make([]int, 0, len(s.expected))
	for i, p := range s.expected {
		if _, ok := s.confirmed[p]; !ok {
			unready = append(unready, i)
		}
	}
	replaced := make([]model.PlayerID, len(unready))
	for i, slot := range unready {
		replaced[i] = s.expected[slot]
	}

	var next *Session
	subs, ok := s.pool.TakeFront(len(unready))
	if ok {
		roster := append([]model.PlayerID(nil), s.expected...)
		for i, slot := range unready {
			roster[slot] = subs[i]
		}
		s.state = Substituting
		next = s.spawn(roster)
	} else {
		s.state = Cancelled
	}
	s.mu.Unlock()

	penalties := s.penalize(replaced)

	if next != nil {
		metrics.RecordReadyCheck(string(s.mode), "substituted")
		metrics.RecordSubstitutions(string(s.mode), len(subs))
		s.logger.Info(s.ctx, "ready check expired, substitutes found",
			logger.String("match_id", s.matchID),
			logger.Strings("replaced", ids(replaced)),
			logger.Strings("substitutes", ids(subs)),
		)
		// The owner adopts next before its deadline is armed.
		if s.hooks.OnSubstituted != nil {
			s.hooks.OnSubstituted(s, next, Substitution{Replaced: replaced, Substitutes: subs, Penalties: penalties})
		}
		next.Start()
		return
	}

	metrics.RecordReadyCheck(string(s.mode), "cancelled")
	s.logger.Info(s.ctx, "ready check expired, match cancelled",
		logger.String("match_id", s.matchID),
		logger.Strings("unready", ids(replaced)),
	)
	if s.hooks.OnCancelled != nil {
		s.hooks.OnCancelled(s, replaced, penalties, model.ErrInsufficientSubstitutes)
	}
}

// spawn builds the follow-up session with the same configuration.
func (s *Session) spawn(roster []model.PlayerID) *Session {
	return &Session{
		matchID:   s.matchID,
		mode:      s.mode,
		pool:      s.pool,
		penalizer: s.penalizer,
		penalty:   s.penalty,
		deadline:  s.deadline,
		scheduler: s.scheduler,
		now:       s.now,
		hooks:     s.hooks,
		logger:    s.logger,
		ctx:       s.ctx,
		expected:  roster,
		confirmed: make(map[model.PlayerID]struct{}, len(roster)),
	}
}

func (s *Session) penalize(players []model.PlayerID) []model.RatingChange {
	if s.penalizer == nil || s.penalty == 0 {
		return nil
	}
	out := make([]model.RatingChange, 0, len(players))
	for _, p := range players {
		c, err := s.penalizer.ApplyDelta(s.ctx, p, s.mode, -s.penalty, model.ReasonNoShow)
		if err != nil {
			s.logger.Error(s.ctx, "failed to apply no-show penalty",
				logger.String("match_id", s.matchID),
				logger.String("player", string(p)),
				logger.Error(err),
			)
			continue
		}
		out = append(out, c)
	}
	return out
}

func (s *Session) expectedLocked(player model.PlayerID) bool {
	for _, p := range s.expected {
		if p == player {
			return true
		}
	}
	return false
}

func ids(players []model.PlayerID) []string {
	out := make([]string, len(players))
	for i, p := range players {
		out[i] = string(p)
	}
	return out
}
