// Package vote implements the outcome vote: a race between the two teams
// to reach a fixed quorum of votes.
package vote

import (
	"sync"

	"github.com/okian/matchd/internal/domain/model"
)

// Result is the session state after a vote.
type Result struct {
	Team1Votes int        `json:"team1_votes"`
	Team2Votes int        `json:"team2_votes"`
	Quorum     int        `json:"quorum"`
	Winner     model.Team `json:"winner"`
	// Decided is true only for the vote that reached quorum.
	Decided bool `json:"decided"`
}

// Session collects votes for one match. Any identity may vote once.
type Session struct {
	quorum int

	mu     sync.Mutex
	team1  map[model.PlayerID]struct{}
	team2  map[model.PlayerID]struct{}
	winner model.Team
}

// New opens a vote. A quorum below 1 is raised to 1.
func New(quorum int) *Session {
	return &Session{
		quorum: max(1, quorum),
		team1:  make(map[model.PlayerID]struct{}),
		team2:  make(map[model.PlayerID]struct{}),
	}
}

// Cast records voter's choice. A voter already in either set gets
// model.ErrAlreadyVoted and nothing changes. Once a winner exists further
// votes are recorded but never change it.
func (s *Session) Cast(voter model.PlayerID, team model.Team) (Result, error) {
	if !team.Valid() {
		return s.Result(), model.ErrInvalidTeam
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, in1 := s.team1[voter]
	_, in2 := s.team2[voter]
	if in1 || in2 {
		return s.resultLocked(false), model.ErrAlreadyVoted
	}
	votes := s.team1
	if team == model.Team2 {
		votes = s.team2
	}
	votes[voter] = struct{}{}

	decided := false
	if s.winner == model.NoTeam && len(votes) >= s.quorum {
		s.winner = team
		decided = true
	}
	return s.resultLocked(decided), nil
}

// Retract withdraws voter's vote and clears the winner it decided, so the
// session can be decided again. It is a no-op for a voter that has not voted.
func (s *Session) Retract(voter model.PlayerID) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, in1 := s.team1[voter]
	_, in2 := s.team2[voter]
	if !in1 && !in2 {
		return s.resultLocked(false)
	}
	delete(s.team1, voter)
	delete(s.team2, voter)
	s.winner = model.NoTeam
	return s.resultLocked(false)
}

// Result returns the current tally.
func (s *Session) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resultLocked(false)
}

// Winner returns the decided team or model.NoTeam.
func (s *Session) Winner() model.Team {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.winner
}

func (s *Session) resultLocked(decided bool) Result {
	return Result{
		Team1Votes: len(s.team1),
		Team2Votes: len(s.team2),
		Quorum:     s.quorum,
		Winner:     s.winner,
		Decided:    decided,
	}
}
