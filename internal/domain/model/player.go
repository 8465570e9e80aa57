// Package model contains domain models passed between layers.
package model

import "time"

// PlayerID is an opaque player identity supplied by the identity provider.
// It is only ever compared for equality.
type PlayerID string

// Mode names a configured game type.
type Mode string

// DefaultRating is the rating a player starts with in every mode.
const DefaultRating = 500

// Reasons attached to audited rating changes.
const (
	ReasonMatchResult = "match result"
	ReasonNoShow      = "failed to ready up"
)

// PlayerStats is a player's per-mode rating and record.
type PlayerStats struct {
	Player PlayerID `json:"player_id"`
	Mode   Mode     `json:"mode"`
	Rating int      `json:"rating"`
	Games  int      `json:"games"`
	Wins   int      `json:"wins"`
	Losses int      `json:"losses"`
}

// RatingChange is one row of the append-only rating audit trail.
type RatingChange struct {
	Player    PlayerID  `json:"player_id"`
	Mode      Mode      `json:"mode"`
	OldRating int       `json:"old_rating"`
	NewRating int       `json:"new_rating"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

// Delta is the applied change after clamping.
func (c RatingChange) Delta() int {
	return c.NewRating - c.OldRating
}
