package simulate

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/matchd/internal/domain/model"
	"github.com/okian/matchd/internal/domain/types"
	"github.com/okian/matchd/pkg/logger"
)

// verify checks leaderboard ordering and record bookkeeping, then reports how
// well ratings track hidden skill.
func verify(ctx context.Context, log logger.Logger, pop *population, board []types.Entry, stats *Stats) error {
	if len(board) == 0 {
		if stats.MatchesCompleted > 0 {
			return errors.New("empty leaderboard after completed matches")
		}
		return nil
	}

	for i, e := range board {
		if e.Rank != i+1 {
			return fmt.Errorf("row %d has rank %d", i, e.Rank)
		}
		if i > 0 && e.Rating > board[i-1].Rating {
			return fmt.Errorf("leaderboard not sorted: %s (%d) above %s (%d)",
				board[i-1].PlayerID, board[i-1].Rating, e.PlayerID, e.Rating)
		}
		if e.Games != e.Wins+e.Losses {
			return fmt.Errorf("player %s has %d games but %d wins and %d losses", e.PlayerID, e.Games, e.Wins, e.Losses)
		}
	}

	// With every player listed, each match adds as many wins as losses.
	if len(board) == len(pop.ids) {
		var wins, losses int
		for _, e := range board {
			wins += e.Wins
			losses += e.Losses
		}
		if wins != losses {
			return fmt.Errorf("%d wins recorded against %d losses", wins, losses)
		}
	}

	top, bottom := skillSplit(pop, board)
	log.Info(ctx, "rating versus hidden skill",
		logger.Float64("top_half_skill", top),
		logger.Float64("bottom_half_skill", bottom))
	if top < bottom {
		log.Warn(ctx, "ratings have not converged toward hidden skill yet; try more rounds")
	}
	return nil
}

// skillSplit returns the mean hidden skill of the upper and lower halves of
// the board.
func skillSplit(pop *population, board []types.Entry) (top, bottom float64) {
	half := len(board) / 2
	if half == 0 {
		return 0, 0
	}
	upper := make([]model.PlayerID, 0, half)
	lower := make([]model.PlayerID, 0, len(board)-half)
	for i, e := range board {
		if !pop.has(model.PlayerID(e.PlayerID)) {
			continue
		}
		if i < half {
			upper = append(upper, model.PlayerID(e.PlayerID))
		} else {
			lower = append(lower, model.PlayerID(e.PlayerID))
		}
	}
	return pop.mean(upper), pop.mean(lower)
}

func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.MatchesCompleted) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("joins", stats.Joins),
		logger.Int("matchesFormed", stats.MatchesFormed),
		logger.Int("matchesCompleted", stats.MatchesCompleted),
		logger.Int("confirmations", stats.Confirmations),
		logger.Int("votes", stats.Votes),
		logger.Int("failures", stats.Failures),
		logger.Int("leaderboardRows", stats.LeaderboardRows),
		logger.Duration("duration", stats.Duration),
		logger.Float64("matchesPerSecond", perSecond))
}
