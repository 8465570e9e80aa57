// Package repository defines the rating store interface and its in-memory
// implementation.
package repository

import (
	"context"

	"github.com/okian/matchd/internal/domain/model"
	"github.com/okian/matchd/internal/domain/types"
)

// Entry is a leaderboard row.
type Entry = types.Entry

// Store provides read/write access to per-mode player ratings and records.
type Store interface {
	// GetRating returns the current rating, creating a default record on first access.
	GetRating(ctx context.Context, player model.PlayerID, mode model.Mode) (int, error)
	// SetRating persists change.NewRating and appends change to the rating
	// history. Both happen or neither does.
	SetRating(ctx context.Context, change model.RatingChange) error
	// SaveResult records a completed match as one unit: every change is
	// applied as SetRating would, each rostered player gains a game and a
	// win or loss, and rec is appended. On error nothing is written.
	// Returns ErrDuplicate if rec.MatchID was already saved.
	SaveResult(ctx context.Context, rec model.MatchRecord, changes []model.RatingChange) error

	// Stats returns the player's record, creating a default one on first access.
	Stats(ctx context.Context, player model.PlayerID, mode model.Mode) (model.PlayerStats, error)
	// Rank returns the player's leaderboard row.
	// Returns ErrNotFound if the player has no record in mode.
	Rank(ctx context.Context, player model.PlayerID, mode model.Mode) (Entry, error)
	// TopN returns the top-N entries ordered by rating desc, then player id asc.
	TopN(ctx context.Context, mode model.Mode, n int) ([]Entry, error)
	// History returns the newest rating changes first, at most limit of them.
	History(ctx context.Context, player model.PlayerID, mode model.Mode, limit int) ([]model.RatingChange, error)
	// Matches returns the newest completed matches of mode first.
	Matches(ctx context.Context, mode model.Mode, limit int) ([]model.MatchRecord, error)

	// Count returns the number of players tracked in mode.
	Count(ctx context.Context, mode model.Mode) int
}
