// Package types contains read shapes shared by the store and the HTTP layer.
package types

import "github.com/okian/matchd/internal/domain/model"

// Entry is one leaderboard row.
type Entry struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"player_id"`
	Rating   int    `json:"rating"`
	Games    int    `json:"games"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
}

// WinRate is wins over games, or 0 for a player with no games.
func (e Entry) WinRate() float64 {
	if e.Games == 0 {
		return 0
	}
	return float64(e.Wins) / float64(e.Games)
}

// JoinResult is the outcome of a successful queue join.
type JoinResult struct {
	Mode     model.Mode `json:"mode"`
	Position int        `json:"position"`
	Waiting  int        `json:"waiting"`
	// Match is set when this join completed a roster.
	Match *model.MatchView `json:"match,omitempty"`
}

// QueueStatus describes a mode's waiting pool.
type QueueStatus struct {
	Mode       model.Mode       `json:"mode"`
	RosterSize int              `json:"roster_size"`
	Quorum     int              `json:"quorum"`
	Waiting    []model.PlayerID `json:"waiting"`
}
