// Package balance splits a roster into two teams of equal size with
// close rating sums.
package balance

import (
	"sort"

	"github.com/okian/matchd/internal/domain/model"
)

// Rated pairs a player with the rating used for balancing.
type Rated struct {
	Player model.PlayerID
	Rating int
}

// Balance sorts players by rating descending and hands each one to the
// team with the lower running sum, ties going to team 1. Equal ratings
// keep input order. An odd roster returns model.ErrOddRoster.
//
// The greedy pass keeps |sum1 - sum2| at most the highest rating. Team
// sizes are also held equal: once a team is full the rest go to the other.
func Balance(players []Rated) (team1, team2 []model.PlayerID, err error) {
	if len(players)%2 != 0 {
		return nil, nil, model.ErrOddRoster
	}
	if len(players) == 2 {
		return []model.PlayerID{players[0].Player}, []model.PlayerID{players[1].Player}, nil
	}

	sorted := make([]Rated, len(players))
	copy(sorted, players)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Rating > sorted[j].Rating
	})

	half := len(sorted) / 2
	team1 = make([]model.PlayerID, 0, half)
	team2 = make([]model.PlayerID, 0, half)
	sum1, sum2 := 0, 0
	for _, p := range sorted {
		toFirst := sum1 <= sum2
		if len(team1) == half {
			toFirst = false
		} else if len(team2) == half {
			toFirst = true
		}
		if toFirst {
			team1 = append(team1, p.Player)
			sum1 += p.Rating
		} else {
			team2 = append(team2, p.Player)
			sum2 += p.Rating
		}
	}
	return team1, team2, nil
}

// Sum adds the ratings of the given players.
func Sum(players []Rated) int {
	total := 0
	for _, p := range players {
		total += p.Rating
	}
	return total
}
