package simulate

import (
	"sync"
	"time"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL string        // Base URL of the service
	Mode    string        // Mode to queue for
	Players int           // Size of the simulated population
	Rounds  int           // Times every player queues
	Workers int           // Concurrent requests per step
	Timeout time.Duration // HTTP request timeout
	Seed    uint64        // Seed for hidden skills and outcomes
	Verbose bool          // Log every match
}

// Stats holds run statistics.
type Stats struct {
	Joins            int
	MatchesFormed    int
	MatchesCompleted int
	Confirmations    int
	Votes            int
	Failures         int
	LeaderboardRows  int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration

	mu sync.Mutex
}

func (s *Stats) addConfirmations(n int) {
	s.mu.Lock()
	s.Confirmations += n
	s.mu.Unlock()
}

func (s *Stats) addVotes(n int) {
	s.mu.Lock()
	s.Votes += n
	s.mu.Unlock()
}
