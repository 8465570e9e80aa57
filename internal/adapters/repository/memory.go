package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/matchd/internal/domain/model"
	"github.com/okian/matchd/pkg/metrics"
)

type playerKey struct {
	player model.PlayerID
	mode   model.Mode
}

// MemoryStore is a Store backed by maps and a per-mode leaderboard treap.
// State is lost on restart.
type MemoryStore struct {
	defaultRating int
	historyLimit  int

	mu      sync.RWMutex
	players map[playerKey]*model.PlayerStats
	history map[playerKey][]model.RatingChange
	matches map[model.Mode][]model.MatchRecord
	boards  map[model.Mode]*board
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		defaultRating: model.DefaultRating,
		players:       make(map[playerKey]*model.PlayerStats),
		history:       make(map[playerKey][]model.RatingChange),
		matches:       make(map[model.Mode][]model.MatchRecord),
		boards:        make(map[model.Mode]*board),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ensureLocked returns the player's record, creating it at the default rating.
func (s *MemoryStore) ensureLocked(player model.PlayerID, mode model.Mode) *model.PlayerStats {
	k := playerKey{player, mode}
	if st, ok := s.players[k]; ok {
		return st
	}
	st := &model.PlayerStats{Player: player, Mode: mode, Rating: s.defaultRating}
	s.players[k] = st
	b, ok := s.boards[mode]
	if !ok {
		b = &board{}
		s.boards[mode] = b
	}
	b.set(string(player), 0, st.Rating, true)
	metrics.UpdateTotalPlayers(string(mode), b.len())
	return st
}

// GetRating implements Store.GetRating.
func (s *MemoryStore) GetRating(ctx context.Context, player model.PlayerID, mode model.Mode) (int, error) {
	defer observe("get_rating", time.Now())
	s.mu.RLock()
	st, ok := s.players[playerKey{player, mode}]
	if ok {
		r := st.Rating
		s.mu.RUnlock()
		return r, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(player, mode).Rating, nil
}

// SetRating implements Store.SetRating.
func (s *MemoryStore) SetRating(ctx context.Context, change model.RatingChange) error {
	defer observe("set_rating", time.Now())
	if change.NewRating < 0 {
		metrics.RecordStoreError("set_rating")
		return fmt.Errorf("set rating %d: %w", change.NewRating, model.ErrNegativeRating)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(change)
	return nil
}

func (s *MemoryStore) setLocked(change model.RatingChange) {
	st := s.ensureLocked(change.Player, change.Mode)
	k := playerKey{change.Player, change.Mode}
	s.boards[change.Mode].set(string(change.Player), st.Rating, change.NewRating, false)
	st.Rating = change.NewRating

	h := append(s.history[k], change)
	if s.historyLimit > 0 && len(h) > s.historyLimit {
		h = h[len(h)-s.historyLimit:]
	}
	s.history[k] = h
}

// SaveResult implements Store.SaveResult.
func (s *MemoryStore) SaveResult(ctx context.Context, rec model.MatchRecord, changes []model.RatingChange) error {
	defer observe("save_result", time.Now())
	for _, c := range changes {
		if c.NewRating < 0 {
			metrics.RecordStoreError("save_result")
			return fmt.Errorf("set rating %d for %s: %w", c.NewRating, c.Player, model.ErrNegativeRating)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.matches[rec.Mode] {
		if m.MatchID == rec.MatchID {
			return ErrDuplicate
		}
	}

	for _, c := range changes {
		s.setLocked(c)
	}
	for _, team := range [][]model.PlayerID{rec.Team1, rec.Team2} {
		for _, p := range team {
			st := s.ensureLocked(p, rec.Mode)
			st.Games++
			if rec.Won(p) {
				st.Wins++
			} else {
				st.Losses++
			}
		}
	}
	s.matches[rec.Mode] = append(s.matches[rec.Mode], rec)
	return nil
}

// Stats implements Store.Stats.
func (s *MemoryStore) Stats(ctx context.Context, player model.PlayerID, mode model.Mode) (model.PlayerStats, error) {
	defer observe("stats", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.ensureLocked(player, mode), nil
}

// Rank implements Store.Rank.
func (s *MemoryStore) Rank(ctx context.Context, player model.PlayerID, mode model.Mode) (Entry, error) {
	defer observe("rank", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.players[playerKey{player, mode}]
	if !ok {
		return Entry{}, ErrNotFound
	}
	e := toEntry(st)
	e.Rank = s.boards[mode].rank(st.Rating)
	return e, nil
}

// TopN implements Store.TopN.
func (s *MemoryStore) TopN(ctx context.Context, mode model.Mode, n int) ([]Entry, error) {
	defer observe("top_n", time.Now())
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.boards[mode]
	if !ok {
		return []Entry{}, nil
	}
	out := make([]Entry, 0, min(n, b.len()))
	b.top(n, func(id string, _ int) {
		out = append(out, toEntry(s.players[playerKey{model.PlayerID(id), mode}]))
	})
	assignRanks(out)
	return out, nil
}

// History implements Store.History.
func (s *MemoryStore) History(ctx context.Context, player model.PlayerID, mode model.Mode, limit int) ([]model.RatingChange, error) {
	defer observe("history", time.Now())
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.history[playerKey{player, mode}]
	out := make([]model.RatingChange, 0, min(limit, len(h)))
	for i := len(h) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h[i])
	}
	return out, nil
}

// Matches implements Store.Matches.
func (s *MemoryStore) Matches(ctx context.Context, mode model.Mode, limit int) ([]model.MatchRecord, error) {
	defer observe("matches", time.Now())
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.matches[mode]
	out := make([]model.MatchRecord, 0, min(limit, len(m)))
	for i := len(m) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m[i])
	}
	return out, nil
}

// Count implements Store.Count.
func (s *MemoryStore) Count(ctx context.Context, mode model.Mode) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.boards[mode]
	if !ok {
		return 0
	}
	return b.len()
}

func toEntry(st *model.PlayerStats) Entry {
	return Entry{
		PlayerID: string(st.Player),
		Rating:   st.Rating,
		Games:    st.Games,
		Wins:     st.Wins,
		Losses:   st.Losses,
	}
}

// assignRanks gives tied ratings the same rank and skips the positions they
// occupy (1, 1, 3).
func assignRanks(entries []Entry) {
	for i := range entries {
		if i > 0 && entries[i].Rating == entries[i-1].Rating {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
}
