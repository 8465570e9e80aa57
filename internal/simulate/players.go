package simulate

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"

	"github.com/okian/matchd/internal/domain/model"
)

const (
	skillMean   = 500
	skillSpread = 150
	eloScale    = 400
)

// population is the simulated player base. Each player has a hidden skill
// that decides match outcomes.
type population struct {
	ids   []model.PlayerID
	skill map[model.PlayerID]float64

	mu  sync.Mutex
	rng *rand.Rand
}

func newPopulation(n int, seed uint64) *population {
	p := &population{
		ids:   make([]model.PlayerID, n),
		skill: make(map[model.PlayerID]float64, n),
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
	for i := range p.ids {
		id := model.PlayerID("sim-" + uuid.NewString()[:8])
		p.ids[i] = id
		p.skill[id] = skillMean + p.rng.NormFloat64()*skillSpread
	}
	return p
}

// shuffled returns the players in a fresh random order.
func (p *population) shuffled() []model.PlayerID {
	out := append([]model.PlayerID(nil), p.ids...)
	p.mu.Lock()
	p.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	p.mu.Unlock()
	return out
}

func (p *population) has(id model.PlayerID) bool {
	_, ok := p.skill[id]
	return ok
}

// winner draws the outcome from the Elo expectation of the mean hidden skills.
func (p *population) winner(team1, team2 []model.PlayerID) model.Team {
	expected := 1 / (1 + math.Pow(10, (p.mean(team2)-p.mean(team1))/eloScale))
	p.mu.Lock()
	roll := p.rng.Float64()
	p.mu.Unlock()
	if roll < expected {
		return model.Team1
	}
	return model.Team2
}

func (p *population) mean(team []model.PlayerID) float64 {
	if len(team) == 0 {
		return 0
	}
	var sum float64
	for _, id := range team {
		sum += p.skill[id]
	}
	return sum / float64(len(team))
}
