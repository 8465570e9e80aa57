// Package api exposes the matchmaking service over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/okian/matchd/internal/domain/model"
	"github.com/okian/matchd/internal/domain/readycheck"
	"github.com/okian/matchd/internal/domain/types"
	"github.com/okian/matchd/internal/domain/vote"
	"github.com/okian/matchd/pkg/logger"
)

const defaultMaxLimit = 100

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// QueueDependencies is what the queue handlers need.
type QueueDependencies interface {
	Join(ctx context.Context, player model.PlayerID, mode model.Mode) (types.JoinResult, error)
	Leave(ctx context.Context, player model.PlayerID, mode model.Mode) error
	QueueStatus(mode model.Mode) (types.QueueStatus, error)
	Modes() []model.ModeConfig
}

// MatchDependencies is what the match handlers need.
type MatchDependencies interface {
	Match(id string) (model.MatchView, bool)
	ActiveMatches() []model.MatchView
	Confirm(ctx context.Context, matchID string, player model.PlayerID) (readycheck.Progress, error)
	Vote(ctx context.Context, matchID string, voter model.PlayerID, team model.Team) (vote.Result, error)
	RecentMatches(ctx context.Context, mode model.Mode, limit int) ([]model.MatchRecord, error)
}

// PlayerDependencies is what the leaderboard, player and admin handlers need.
type PlayerDependencies interface {
	Leaderboard(ctx context.Context, mode model.Mode, n int) ([]Entry, error)
	PlayerStats(ctx context.Context, player model.PlayerID, mode model.Mode) (model.PlayerStats, error)
	Rank(ctx context.Context, player model.PlayerID, mode model.Mode) (Entry, error)
	RatingHistory(ctx context.Context, player model.PlayerID, mode model.Mode, limit int) ([]model.RatingChange, error)
	AdjustRating(ctx context.Context, player model.PlayerID, mode model.Mode, amount int, actor string) (model.RatingChange, error)
	SetRating(ctx context.Context, player model.PlayerID, mode model.Mode, value int, actor string) (model.RatingChange, error)
}

// Dependencies bundles everything the handlers call. The app service
// satisfies it; tests substitute fakes.
type Dependencies interface {
	QueueDependencies
	MatchDependencies
	PlayerDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	health      *HealthHandler
	stats       *StatsHandler
	queues      *QueueHandler
	matches     *MatchHandler
	leaderboard *LeaderboardHandler
	players     *PlayerHandler
	stream      http.Handler
	logger      logger.Logger
}

// Option configures a Server.
type Option func(*serverConfig)

type serverConfig struct {
	maxLimit int
	stream   http.Handler
	logger   logger.Logger
}

// WithMaxLimit caps the limit query parameter.
func WithMaxLimit(n int) Option {
	return func(c *serverConfig) {
		if n > 0 {
			c.maxLimit = n
		}
	}
}

// WithStream mounts a websocket event stream at /events/stream.
func WithStream(h http.Handler) Option {
	return func(c *serverConfig) { c.stream = h }
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *serverConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	cfg := serverConfig{maxLimit: defaultMaxLimit}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.Get().Named("api")
	}
	return &Server{
		health:      NewHealthHandler(),
		stats:       NewStatsHandler(deps),
		queues:      NewQueueHandler(deps),
		matches:     NewMatchHandler(deps, cfg.maxLimit),
		leaderboard: NewLeaderboardHandler(deps, cfg.maxLimit),
		players:     NewPlayerHandler(deps, cfg.maxLimit),
		stream:      cfg.stream,
		logger:      cfg.logger,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, MetricsMiddleware(h, endpoint))
	}

	route("GET /healthz", "healthz", s.health.HandleHealth)
	mux.Handle("GET /metrics", s.health.Metrics())
	route("GET /stats", "stats", s.stats.HandleStats)

	route("GET /modes", "modes", s.queues.HandleModes)
	route("GET /queues/{mode}", "queue_status", s.queues.HandleStatus)
	route("POST /queues/{mode}/join", "queue_join", s.queues.HandleJoin)
	route("POST /queues/{mode}/leave", "queue_leave", s.queues.HandleLeave)

	route("GET /matches", "matches", s.matches.HandleList)
	route("GET /matches/{id}", "match", s.matches.HandleGet)
	route("POST /matches/{id}/ready", "match_ready", s.matches.HandleReady)
	route("POST /matches/{id}/votes", "match_vote", s.matches.HandleVote)
	route("GET /history/{mode}", "match_history", s.matches.HandleHistory)

	route("GET /leaderboard/{mode}", "leaderboard", s.leaderboard.HandleGetLeaderboard)
	route("GET /players/{id}/{mode}", "player", s.players.HandleStats)
	route("GET /players/{id}/{mode}/history", "player_history", s.players.HandleHistory)
	route("POST /admin/ratings/{mode}/{id}", "admin_rating", s.players.HandleAdminRating)

	// The stream hijacks the connection, so it skips the metrics wrapper.
	if s.stream != nil {
		mux.Handle("GET /events/stream", s.stream)
	}
	s.logger.Debug(ctx, "routes registered", logger.Bool("stream", s.stream != nil))
}
