package model

import "fmt"

// Team identifies one side of a match.
type Team int

// Teams of a two-sided match. NoTeam marks an undecided outcome.
const (
	NoTeam Team = 0
	Team1  Team = 1
	Team2  Team = 2
)

// Valid reports whether t is Team1 or Team2.
func (t Team) Valid() bool { return t == Team1 || t == Team2 }

func (t Team) String() string {
	switch t {
	case Team1:
		return "1"
	case Team2:
		return "2"
	default:
		return "none"
	}
}

// ModeConfig is the roster and vote configuration of a mode.
type ModeConfig struct {
	Name       Mode `json:"name" koanf:"name"`
	RosterSize int  `json:"roster_size" koanf:"roster_size"`
	// Quorum overrides the derived vote quorum when positive.
	Quorum int `json:"quorum" koanf:"quorum"`
}

// TeamSize is the number of players on each side.
func (c ModeConfig) TeamSize() int { return c.RosterSize / 2 }

// VoteQuorum is the number of votes one team needs to be declared winner.
// Defaults to a majority of the roster plus one: 2->2, 4->3, 6->4, 10->6.
func (c ModeConfig) VoteQuorum() int {
	if c.Quorum > 0 {
		return c.Quorum
	}
	return c.RosterSize/2 + 1
}

// Validate checks the configuration supports two-team balancing.
func (c ModeConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: mode name is empty", ErrInvalidMode)
	}
	if c.RosterSize < 2 || c.RosterSize%2 != 0 {
		return fmt.Errorf("%w: mode %s roster size %d must be even and at least 2", ErrInvalidMode, c.Name, c.RosterSize)
	}
	if c.Quorum < 0 {
		return fmt.Errorf("%w: mode %s quorum %d is negative", ErrInvalidMode, c.Name, c.Quorum)
	}
	return nil
}

// DefaultModes are the modes served when none are configured.
func DefaultModes() []ModeConfig {
	return []ModeConfig{
		{Name: "r6", RosterSize: 10},
		{Name: "valorant", RosterSize: 10},
		{Name: "breachers", RosterSize: 10},
		{Name: "rl1v1", RosterSize: 2},
		{Name: "rl2v2", RosterSize: 4},
		{Name: "rl3v3", RosterSize: 6},
	}
}
