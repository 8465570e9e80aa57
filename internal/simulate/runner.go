package simulate

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/matchd/internal/domain/model"
	"github.com/okian/matchd/internal/domain/types"
	"github.com/okian/matchd/internal/domain/vote"
	"github.com/okian/matchd/pkg/logger"
)

const (
	defaultMode    = "rl2v2"
	defaultWorkers = 16
	defaultTimeout = 10 * time.Second
	maxBoardLimit  = 100
)

// Run plays cfg.Rounds rounds against the service and verifies the
// resulting leaderboard.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	applyDefaults(cfg)
	log := logger.Get().Named("simulate")
	r := &runner{
		cfg: cfg,
		c:   newClient(cfg.BaseURL, cfg.Timeout),
		pop: newPopulation(cfg.Players, cfg.Seed),
		log: log,
	}
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting simulation",
		logger.String("url", cfg.BaseURL),
		logger.String("mode", cfg.Mode),
		logger.Int("players", cfg.Players),
		logger.Int("rounds", cfg.Rounds),
		logger.Int("workers", cfg.Workers))

	if err := r.checkHealth(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}
	mode, err := r.findMode(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.Players < mode.RosterSize {
		return nil, fmt.Errorf("%d players cannot fill a %s roster of %d", cfg.Players, mode.Name, mode.RosterSize)
	}

	for round := 1; round <= cfg.Rounds; round++ {
		if err := r.playRound(ctx, round, stats); err != nil {
			return stats, fmt.Errorf("round %d: %w", round, err)
		}
	}

	board, err := r.leaderboard(ctx)
	if err != nil {
		return stats, fmt.Errorf("leaderboard retrieval failed: %w", err)
	}
	stats.LeaderboardRows = len(board)
	if err := verify(ctx, log, r.pop, board, stats); err != nil {
		return stats, fmt.Errorf("result verification failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)
	return stats, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Mode == "" {
		cfg.Mode = defaultMode
	}
	if cfg.Workers < 1 {
		cfg.Workers = defaultWorkers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Rounds < 1 {
		cfg.Rounds = 1
	}
}

type runner struct {
	cfg *Config
	c   *client
	pop *population
	log logger.Logger
}

func (r *runner) checkHealth(ctx context.Context) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := r.c.get(ctx, "/healthz", &body); err != nil {
		return err
	}
	if body.Status != "ok" {
		return fmt.Errorf("unexpected health status %q", body.Status)
	}
	return nil
}

func (r *runner) findMode(ctx context.Context) (model.ModeConfig, error) {
	var modes []model.ModeConfig
	if err := r.c.get(ctx, "/modes", &modes); err != nil {
		return model.ModeConfig{}, fmt.Errorf("list modes: %w", err)
	}
	for _, m := range modes {
		if string(m.Name) == r.cfg.Mode {
			return m, nil
		}
	}
	return model.ModeConfig{}, fmt.Errorf("mode %q is not served", r.cfg.Mode)
}

// playRound queues every player once, plays each formed match to completion
// and pulls leftovers back out of the queue.
func (r *runner) playRound(ctx context.Context, round int, stats *Stats) error {
	var (
		mu      sync.Mutex
		matches []string
		joins   atomic.Int64
		failed  atomic.Int64
	)
	mode := url.PathEscape(r.cfg.Mode)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for _, id := range r.pop.shuffled() {
		g.Go(func() error {
			var res types.JoinResult
			_, err := r.c.post(gctx, "/queues/"+mode+"/join", map[string]string{"player_id": string(id)}, &res)
			if err != nil {
				return r.tolerate(gctx, &failed, "join", err)
			}
			joins.Add(1)
			if res.Match != nil {
				mu.Lock()
				matches = append(matches, res.Match.ID)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := r.drainQueue(ctx, &failed); err != nil {
		return err
	}

	var completed atomic.Int64
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for _, id := range matches {
		g.Go(func() error {
			done, err := r.playMatch(gctx, id, stats)
			if err != nil {
				return r.tolerate(gctx, &failed, "match", err)
			}
			if done {
				completed.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	stats.Joins += int(joins.Load())
	stats.MatchesFormed += len(matches)
	stats.MatchesCompleted += int(completed.Load())
	stats.Failures += int(failed.Load())

	r.log.Info(ctx, "round finished",
		logger.Int("round", round),
		logger.Int("matches", len(matches)),
		logger.Int("completed", int(completed.Load())),
		logger.Int("failures", int(failed.Load())))
	return nil
}

// tolerate counts API rejections and lets transport errors abort the round.
func (r *runner) tolerate(ctx context.Context, failed *atomic.Int64, step string, err error) error {
	var se *StatusError
	if !errors.As(err, &se) {
		return err
	}
	failed.Add(1)
	if r.cfg.Verbose {
		r.log.Warn(ctx, "request rejected", logger.String("step", step), logger.Error(err))
	}
	return nil
}

func (r *runner) drainQueue(ctx context.Context, failed *atomic.Int64) error {
	mode := url.PathEscape(r.cfg.Mode)
	var status types.QueueStatus
	if err := r.c.get(ctx, "/queues/"+mode, &status); err != nil {
		return fmt.Errorf("queue status: %w", err)
	}
	for _, id := range status.Waiting {
		if !r.pop.has(id) {
			continue
		}
		if _, err := r.c.post(ctx, "/queues/"+mode+"/leave", map[string]string{"player_id": string(id)}, nil); err != nil {
			if err := r.tolerate(ctx, failed, "leave", err); err != nil {
				return err
			}
		}
	}
	return nil
}

// playMatch confirms every rostered player, then votes the drawn winner in.
// It reports whether the match reached completion.
func (r *runner) playMatch(ctx context.Context, id string, stats *Stats) (bool, error) {
	path := "/matches/" + url.PathEscape(id)

	var m model.MatchView
	if err := r.c.get(ctx, path, &m); err != nil {
		return false, err
	}
	for _, p := range m.Roster {
		if _, err := r.c.post(ctx, path+"/ready", map[string]string{"player_id": string(p)}, nil); err != nil {
			return false, err
		}
		stats.addConfirmations(1)
	}

	if err := r.c.get(ctx, path, &m); err != nil {
		return false, err
	}
	if m.Phase != model.PhaseAwaitingOutcome {
		return false, nil
	}

	winner := r.pop.winner(m.Team1, m.Team2)
	voters := append(append([]model.PlayerID(nil), m.Team1...), m.Team2...)
	if winner == model.Team2 {
		voters = append(append([]model.PlayerID(nil), m.Team2...), m.Team1...)
	}
	for _, p := range voters {
		var res vote.Result
		body := map[string]any{"player_id": p, "team": int(winner)}
		if _, err := r.c.post(ctx, path+"/votes", body, &res); err != nil {
			return false, err
		}
		stats.addVotes(1)
		if res.Decided {
			if r.cfg.Verbose {
				r.log.Info(ctx, "match decided",
					logger.String("match_id", id),
					logger.Int("winner", int(winner)),
					logger.Int("team1_votes", res.Team1Votes),
					logger.Int("team2_votes", res.Team2Votes))
			}
			return true, nil
		}
	}
	return false, nil
}

func (r *runner) leaderboard(ctx context.Context) ([]types.Entry, error) {
	n := min(r.cfg.Players, maxBoardLimit)
	var board []types.Entry
	path := fmt.Sprintf("/leaderboard/%s?limit=%d", url.PathEscape(r.cfg.Mode), n)
	if err := r.c.get(ctx, path, &board); err != nil {
		return nil, err
	}
	return board, nil
}
