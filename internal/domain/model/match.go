package model

import (
	"fmt"
	"time"
)

// MatchRecord is the immutable log of a completed match.
type MatchRecord struct {
	MatchID     string           `json:"match_id"`
	Mode        Mode             `json:"mode"`
	QueueNumber int              `json:"queue_number"`
	Team1       []PlayerID       `json:"team1"`
	Team2       []PlayerID       `json:"team2"`
	Winner      Team             `json:"winner"`
	Deltas      map[PlayerID]int `json:"deltas"`
	CompletedAt time.Time        `json:"completed_at"`
}

// Won reports whether player was on the winning side.
func (r MatchRecord) Won(player PlayerID) bool {
	side := r.Team2
	if r.Winner == Team1 {
		side = r.Team1
	}
	for _, p := range side {
		if p == player {
			return true
		}
	}
	return false
}

// Phase is the lifecycle stage of a match.
type Phase int

// Match phases. A match whose ready check substituted players returns to
// PhaseAwaitingReady with a fresh roster.
const (
	PhaseAwaitingReady Phase = iota
	PhaseStarting
	PhaseCancelled
	PhaseAwaitingOutcome
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingReady:
		return "awaiting_ready"
	case PhaseStarting:
		return "starting"
	case PhaseCancelled:
		return "cancelled"
	case PhaseAwaitingOutcome:
		return "awaiting_outcome"
	case PhaseComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText decodes a phase name.
func (p *Phase) UnmarshalText(b []byte) error {
	for c := PhaseAwaitingReady; c <= PhaseComplete; c++ {
		if c.String() == string(b) {
			*p = c
			return nil
		}
	}
	return fmt.Errorf("unknown match phase %q", b)
}

// MatchView is a read-only snapshot of an active match.
type MatchView struct {
	ID          string     `json:"match_id"`
	Mode        Mode       `json:"mode"`
	QueueNumber int        `json:"queue_number"`
	Phase       Phase      `json:"phase"`
	Roster      []PlayerID `json:"roster"`
	Confirmed   []PlayerID `json:"confirmed,omitempty"`
	Remaining   float64    `json:"remaining_seconds,omitempty"`
	Team1       []PlayerID `json:"team1,omitempty"`
	Team2       []PlayerID `json:"team2,omitempty"`
	Team1Votes  int        `json:"team1_votes,omitempty"`
	Team2Votes  int        `json:"team2_votes,omitempty"`
	Quorum      int        `json:"quorum,omitempty"`
	Winner      Team       `json:"winner,omitempty"`
	Unready     []PlayerID `json:"unready,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
