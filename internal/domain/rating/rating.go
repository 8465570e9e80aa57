// Package rating implements the Elo-style rating engine. Every rating
// mutation, whether a match result, a no-show penalty or an admin change,
// goes through Engine so it is serialized per player and audited.
package rating

import (
	"context"
	"fmt"
	"hash/maphash"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/okian/matchd/internal/domain/model"
	"github.com/okian/matchd/pkg/logger"
	"github.com/okian/matchd/pkg/metrics"
)

const (
	defaultKFactor  = 25
	defaultVariance = 1600
	baseVariance    = 1600
	lockStripes     = 64
)

// Store is the part of the rating store the engine reads and writes.
type Store interface {
	// GetRating returns the current rating, creating a default record on first access.
	GetRating(ctx context.Context, player model.PlayerID, mode model.Mode) (int, error)
	// SetRating persists change.NewRating and appends change to the history as one unit.
	SetRating(ctx context.Context, change model.RatingChange) error
}

// Observer is notified after a rating change has been persisted.
type Observer func(ctx context.Context, change model.RatingChange)

// Engine computes and applies rating changes.
type Engine struct {
	store    Store
	kFactor  float64
	variance float64
	now      func() time.Time
	observer Observer
	logger   logger.Logger

	seed  maphash.Seed
	locks [lockStripes]sync.Mutex
}

// NewEngine creates an engine backed by store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		kFactor:  defaultKFactor,
		variance: defaultVariance,
		now:      time.Now,
		seed:     maphash.MakeSeed(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.Get().Named("rating")
	}
	return e
}

// ExpectedScore is the logistic probability that a player rated a beats
// an opponent rated b.
func ExpectedScore(a, b float64) float64 {
	return 1 / (1 + math.Pow(10, (b-a)/400))
}

// TeamAverage returns the mean of ratings, or 0 for an empty team.
func TeamAverage(ratings []int) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return float64(sum) / float64(len(ratings))
}

// Delta is the rounded rating change for a player against an opponent
// average given the actual score (1 win, 0 loss). Halves round away from zero.
func (e *Engine) Delta(playerRating, opponentAvg, actual float64) int {
	change := e.kFactor * (actual - ExpectedScore(playerRating, opponentAvg))
	change /= e.variance / baseVariance
	return int(math.Round(change))
}

// Deltas rates every player of each team against the other team's average.
// The returned slices are parallel to team1 and team2.
func (e *Engine) Deltas(team1, team2 []int, winner model.Team) (d1, d2 []int) {
	avg1 := TeamAverage(team1)
	avg2 := TeamAverage(team2)
	score1, score2 := 0.0, 0.0
	if winner == model.Team1 {
		score1 = 1
	} else if winner == model.Team2 {
		score2 = 1
	}
	d1 = make([]int, len(team1))
	for i, r := range team1 {
		d1[i] = e.Delta(float64(r), avg2, score1)
	}
	d2 = make([]int, len(team2))
	for i, r := range team2 {
		d2[i] = e.Delta(float64(r), avg1, score2)
	}
	return d1, d2
}

// Ratings returns the current rating of each player in order.
func (e *Engine) Ratings(ctx context.Context, mode model.Mode, players []model.PlayerID) ([]int, error) {
	return e.ratings(ctx, mode, players)
}

func (e *Engine) ratings(ctx context.Context, mode model.Mode, players []model.PlayerID) ([]int, error) {
	out := make([]int, len(players))
	for i, p := range players {
		r, err := e.store.GetRating(ctx, p, mode)
		if err != nil {
			return nil, fmt.Errorf("get rating for %s: %w", p, err)
		}
		out[i] = r
	}
	return out, nil
}

// ApplyDelta adds delta to the player's rating, floors the result at 0,
// and persists it together with its audit record.
func (e *Engine) ApplyDelta(ctx context.Context, player model.PlayerID, mode model.Mode, delta int, reason string) (model.RatingChange, error) {
	return e.mutate(ctx, player, mode, reason, func(old int) (int, error) {
		return max(0, old+delta), nil
	})
}

// SetRating replaces the player's rating with value. Negative values are
// rejected with model.ErrNegativeRating and nothing is written.
func (e *Engine) SetRating(ctx context.Context, player model.PlayerID, mode model.Mode, value int, reason string) (model.RatingChange, error) {
	if value < 0 {
		return model.RatingChange{}, model.ErrNegativeRating
	}
	return e.mutate(ctx, player, mode, reason, func(int) (int, error) {
		return value, nil
	})
}

// Commit persists a complete set of match rating changes as one unit.
type Commit func(ctx context.Context, changes []model.RatingChange) error

// ApplyMatch rates a decided match. It holds every participant's lock
// while it reads ratings, computes the clamped changes and hands them to
// commit. Metrics and the observer only see the changes once commit
// succeeds; on any error nothing is reported and the error is returned.
func (e *Engine) ApplyMatch(ctx context.Context, mode model.Mode, team1, team2 []model.PlayerID, winner model.Team, commit Commit) ([]model.RatingChange, error) {
	if !winner.Valid() {
		return nil, model.ErrInvalidTeam
	}
	players := append(slices.Clone(team1), team2...)
	unlock := e.lockAll(players, mode)
	defer unlock()

	r1, err := e.ratings(ctx, mode, team1)
	if err != nil {
		return nil, err
	}
	r2, err := e.ratings(ctx, mode, team2)
	if err != nil {
		return nil, err
	}
	d1, d2 := e.Deltas(r1, r2, winner)
	olds := append(r1, r2...)
	deltas := append(d1, d2...)

	at := e.now().UTC()
	changes := make([]model.RatingChange, len(players))
	for i, p := range players {
		changes[i] = model.RatingChange{
			Player:    p,
			Mode:      mode,
			OldRating: olds[i],
			NewRating: max(0, olds[i]+deltas[i]),
			Reason:    model.ReasonMatchResult,
			At:        at,
		}
	}
	if err := commit(ctx, changes); err != nil {
		return nil, err
	}

	for _, c := range changes {
		metrics.RecordRatingAdjustment(string(mode), model.ReasonMatchResult, c.Delta())
		if e.observer != nil {
			e.observer(ctx, c)
		}
	}
	e.logger.Debug(ctx, "match rated",
		logger.String("mode", string(mode)),
		logger.Int("players", len(changes)),
		logger.Int("winner", int(winner)),
	)
	return changes, nil
}

func (e *Engine) mutate(ctx context.Context, player model.PlayerID, mode model.Mode, reason string, next func(old int) (int, error)) (model.RatingChange, error) {
	mu := e.lockFor(player, mode)
	mu.Lock()
	defer mu.Unlock()

	old, err := e.store.GetRating(ctx, player, mode)
	if err != nil {
		return model.RatingChange{}, fmt.Errorf("get rating for %s: %w", player, err)
	}
	updated, err := next(old)
	if err != nil {
		return model.RatingChange{}, err
	}
	change := model.RatingChange{
		Player:    player,
		Mode:      mode,
		OldRating: old,
		NewRating: updated,
		Reason:    reason,
		At:        e.now().UTC(),
	}
	if err := e.store.SetRating(ctx, change); err != nil {
		return model.RatingChange{}, fmt.Errorf("set rating for %s: %w", player, err)
	}

	metrics.RecordRatingAdjustment(string(mode), reasonLabel(reason), change.Delta())
	e.logger.Debug(ctx, "rating changed",
		logger.String("player", string(player)),
		logger.String("mode", string(mode)),
		logger.Int("old", old),
		logger.Int("new", updated),
		logger.String("reason", reason),
	)
	if e.observer != nil {
		e.observer(ctx, change)
	}
	return change, nil
}

// reasonLabel folds free-form admin reasons into one metric label.
func reasonLabel(reason string) string {
	switch reason {
	case model.ReasonMatchResult, model.ReasonNoShow:
		return reason
	default:
		return "manual"
	}
}

// lockFor returns the stripe guarding read-modify-write of (player, mode).
func (e *Engine) lockFor(player model.PlayerID, mode model.Mode) *sync.Mutex {
	return &e.locks[e.stripe(player, mode)]
}

func (e *Engine) stripe(player model.PlayerID, mode model.Mode) uint64 {
	var h maphash.Hash
	h.SetSeed(e.seed)
	_, _ = h.WriteString(string(mode))
	_ = h.WriteByte(0)
	_, _ = h.WriteString(string(player))
	return h.Sum64() % lockStripes
}

// lockAll takes the distinct stripes of players in ascending order and
// returns the matching unlock.
func (e *Engine) lockAll(players []model.PlayerID, mode model.Mode) func() {
	idx := make([]uint64, 0, len(players))
	for _, p := range players {
		idx = append(idx, e.stripe(p, mode))
	}
	slices.Sort(idx)
	idx = slices.Compact(idx)
	for _, i := range idx {
		e.locks[i].Lock()
	}
	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			e.locks[idx[j]].Unlock()
		}
	}
}
