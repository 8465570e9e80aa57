// Package pool holds the per-mode admission queue.
//
// A Pool tracks two disjoint sets for one mode: the FIFO of waiting players
// and the players currently held by an active match. Every membership test
// and mutation happens under a single mutex, so admission, formation and
// substitution each observe and change both sets in one step.
package pool

import (
	"sync"

	"github.com/okian/matchd/internal/domain/model"
	"github.com/okian/matchd/pkg/metrics"
)

// Admission is the result of a successful Admit.
type Admission struct {
	// Position is the 1-based place in the queue after admission. It is the
	// roster size when the admission completed a batch.
	Position int
	// Formed holds the earliest rosterSize players when the pool reached
	// capacity. They have already moved to the active set.
	Formed []model.PlayerID
}

// Pool is a FIFO of waiting players with no duplicates.
type Pool struct {
	mode model.Mode

	mu      sync.Mutex
	waiting []model.PlayerID
	queued  map[model.PlayerID]struct{}
	active  map[model.PlayerID]struct{}
}

// New creates an empty pool for mode.
func New(mode model.Mode) *Pool {
	return &Pool{
		mode:   mode,
		queued: make(map[model.PlayerID]struct{}),
		active: make(map[model.PlayerID]struct{}),
	}
}

// Admit appends player unless it is already waiting or playing. When the
// queue reaches rosterSize the earliest rosterSize players are removed and
// returned in Formed.
func (p *Pool) Admit(player model.PlayerID, rosterSize int) (Admission, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.queued[player]; ok {
		return Admission{}, model.ErrAlreadyQueued
	}
	if _, ok := p.active[player]; ok {
		return Admission{}, model.ErrAlreadyInMatch
	}
	p.waiting = append(p.waiting, player)
	p.queued[player] = struct{}{}
	adm := Admission{Position: len(p.waiting)}

	if rosterSize > 0 && len(p.waiting) >= rosterSize {
		adm.Formed = p.takeLocked(rosterSize)
	}
	p.report()
	return adm, nil
}

// Remove drops a waiting player. It reports false if player was not waiting.
func (p *Pool) Remove(player model.PlayerID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.queued[player]; !ok {
		return false
	}
	delete(p.queued, player)
	for i, id := range p.waiting {
		if id == player {
			p.waiting = append(p.waiting[:i], p.waiting[i+1:]...)
			break
		}
	}
	p.report()
	return true
}

// TakeFront removes the first n waiting players and marks them active.
// It takes nothing and reports false when fewer than n are waiting.
func (p *Pool) TakeFront(n int) ([]model.PlayerID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n <= 0 {
		return nil, true
	}
	if len(p.waiting) < n {
		return nil, false
	}
	taken := p.takeLocked(n)
	p.report()
	return taken, true
}

func (p *Pool) takeLocked(n int) []model.PlayerID {
	taken := make([]model.PlayerID, n)
	copy(taken, p.waiting[:n])
	p.waiting = append([]model.PlayerID(nil), p.waiting[n:]...)
	for _, id := range taken {
		delete(p.queued, id)
		p.active[id] = struct{}{}
	}
	return taken
}

// Release returns players from the active set. They may queue again.
func (p *Pool) Release(players ...model.PlayerID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range players {
		delete(p.active, id)
	}
}

// Contains reports whether player is waiting.
func (p *Pool) Contains(player model.PlayerID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.queued[player]
	return ok
}

// Active reports whether player is held by a match of this mode.
func (p *Pool) Active(player model.PlayerID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.active[player]
	return ok
}

// Len is the number of waiting players.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiting)
}

// Snapshot returns the waiting players in queue order.
func (p *Pool) Snapshot() []model.PlayerID {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.PlayerID, len(p.waiting))
	copy(out, p.waiting)
	return out
}

func (p *Pool) report() {
	metrics.UpdateQueueSize(string(p.mode), len(p.waiting))
}
