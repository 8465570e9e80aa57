// Package events defines the inert payloads the match lifecycle publishes
// for presentation layers. Rendering is the consumer's concern.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/okian/matchd/internal/domain/model"
)

// Type names an event kind.
type Type string

// Event kinds.
const (
	QueueUpdated          Type = "queue.updated"
	MatchFormed           Type = "match.formed"
	ReadyCheckProgress    Type = "readycheck.progress"
	ReadyCheckSubstituted Type = "readycheck.substituted"
	ReadyCheckCancelled   Type = "readycheck.cancelled"
	MatchStarted          Type = "match.started"
	VoteProgress          Type = "vote.progress"
	MatchCompleted        Type = "match.completed"
	RatingAdjusted        Type = "rating.adjusted"
)

// Event is the envelope every payload travels in.
type Event struct {
	ID      string     `json:"id"`
	Type    Type       `json:"type"`
	Mode    model.Mode `json:"mode"`
	MatchID string     `json:"match_id,omitempty"`
	At      time.Time  `json:"at"`
	Payload any        `json:"payload"`
}

// New wraps payload in an envelope with a fresh id.
func New(t Type, mode model.Mode, matchID string, payload any) Event {
	return Event{
		ID:      uuid.NewString(),
		Type:    t,
		Mode:    mode,
		MatchID: matchID,
		At:      time.Now().UTC(),
		Payload: payload,
	}
}

// Publisher accepts events for delivery. Implementations must not block
// the caller on slow consumers.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, e Event)

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, e Event) { f(ctx, e) }

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(context.Context, Event) {})

// QueuePayload reports a pool change.
type QueuePayload struct {
	Player  model.PlayerID   `json:"player_id,omitempty"`
	Action  string           `json:"action"`
	Size    int              `json:"size"`
	Roster  int              `json:"roster_size"`
	Waiting []model.PlayerID `json:"waiting"`
}

// FormedPayload announces a new match.
type FormedPayload struct {
	QueueNumber int              `json:"queue_number"`
	Roster      []model.PlayerID `json:"roster"`
	Deadline    time.Duration    `json:"deadline"`
}

// ReadyProgressPayload reports a confirm.
type ReadyProgressPayload struct {
	Player    model.PlayerID `json:"player_id"`
	Confirmed int            `json:"confirmed"`
	Expected  int            `json:"expected"`
	Remaining time.Duration  `json:"remaining"`
}

// SubstitutedPayload reports a roster swap after the deadline.
type SubstitutedPayload struct {
	Replaced    []model.PlayerID `json:"replaced"`
	Substitutes []model.PlayerID `json:"substitutes"`
	Roster      []model.PlayerID `json:"roster"`
	Penalty     int              `json:"penalty"`
}

// CancelledPayload reports a match that will not happen.
type CancelledPayload struct {
	Unready []model.PlayerID `json:"unready"`
	Penalty int              `json:"penalty"`
	Reason  string           `json:"reason"`
}

// StartedPayload carries the balanced teams.
type StartedPayload struct {
	QueueNumber int              `json:"queue_number"`
	Team1       []model.PlayerID `json:"team1"`
	Team2       []model.PlayerID `json:"team2"`
	Team1Rating int              `json:"team1_rating"`
	Team2Rating int              `json:"team2_rating"`
	Quorum      int              `json:"quorum"`
}

// VotePayload reports a vote tally.
type VotePayload struct {
	Voter      model.PlayerID `json:"voter"`
	Team       model.Team     `json:"team"`
	Team1Votes int            `json:"team1_votes"`
	Team2Votes int            `json:"team2_votes"`
	Quorum     int            `json:"quorum"`
}

// CompletedPayload carries the outcome and every player's change.
type CompletedPayload struct {
	Record model.MatchRecord `json:"record"`
}

// RatingPayload carries one audited rating change.
type RatingPayload struct {
	Change model.RatingChange `json:"change"`
}
