// Package sqlite provides a durable rating store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/okian/matchd/internal/adapters/repository"
	"github.com/okian/matchd/internal/adapters/repository/sqlite/migrations"
	"github.com/okian/matchd/internal/domain/model"
	"github.com/okian/matchd/pkg/metrics"
)

// Store persists ratings, rating history and match records in SQLite.
type Store struct {
	db            *sql.DB
	defaultRating int
}

var _ repository.Store = (*Store)(nil)

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// Open opens the database at path and applies embedded migrations.
func Open(ctx context.Context, path string, defaultRating int) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Writers serialize on one connection; WAL keeps readers unblocked.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if defaultRating < 0 {
		defaultRating = model.DefaultRating
	}
	return &Store{db: db, defaultRating: defaultRating}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) ensure(ctx context.Context, ex execer, player model.PlayerID, mode model.Mode) error {
	_, err := ex.ExecContext(ctx,
		`INSERT OR IGNORE INTO players (player_id, mode, rating) VALUES (?, ?, ?)`,
		string(player), string(mode), s.defaultRating,
	)
	return err
}

// GetRating implements repository.Store.
func (s *Store) GetRating(ctx context.Context, player model.PlayerID, mode model.Mode) (int, error) {
	defer observe("get_rating", time.Now())
	if err := s.ensure(ctx, s.db, player, mode); err != nil {
		return 0, fail("get_rating", fmt.Errorf("create player: %w", err))
	}
	var rating int
	err := s.db.QueryRowContext(ctx,
		`SELECT rating FROM players WHERE player_id = ? AND mode = ?`,
		string(player), string(mode),
	).Scan(&rating)
	if err != nil {
		return 0, fail("get_rating", fmt.Errorf("get rating: %w", err))
	}
	return rating, nil
}

// SetRating implements repository.Store. The rating update and its history
// row commit in one transaction.
func (s *Store) SetRating(ctx context.Context, c model.RatingChange) error {
	defer observe("set_rating", time.Now())
	if c.NewRating < 0 {
		return fail("set_rating", fmt.Errorf("set rating %d: %w", c.NewRating, model.ErrNegativeRating))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail("set_rating", fmt.Errorf("begin: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.setTx(ctx, tx, c); err != nil {
		return fail("set_rating", err)
	}
	if err := tx.Commit(); err != nil {
		return fail("set_rating", fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (s *Store) setTx(ctx context.Context, tx *sql.Tx, c model.RatingChange) error {
	if err := s.ensure(ctx, tx, c.Player, c.Mode); err != nil {
		return fmt.Errorf("create player: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE players SET rating = ? WHERE player_id = ? AND mode = ?`,
		c.NewRating, string(c.Player), string(c.Mode),
	); err != nil {
		return fmt.Errorf("update rating: %w", err)
	}
	at := c.At
	if at.IsZero() {
		at = time.Now()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO rating_history (player_id, mode, old_rating, new_rating, reason, at) VALUES (?, ?, ?, ?, ?, ?)`,
		string(c.Player), string(c.Mode), c.OldRating, c.NewRating, c.Reason, toMillis(at),
	); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// SaveResult implements repository.Store. Ratings, history, stats and the
// match row commit in one transaction; a duplicate match id rolls back all
// of them.
func (s *Store) SaveResult(ctx context.Context, rec model.MatchRecord, changes []model.RatingChange) error {
	defer observe("save_result", time.Now())
	for _, c := range changes {
		if c.NewRating < 0 {
			return fail("save_result", fmt.Errorf("set rating %d for %s: %w", c.NewRating, c.Player, model.ErrNegativeRating))
		}
	}
	team1, err := json.Marshal(rec.Team1)
	if err != nil {
		return fmt.Errorf("encode team1: %w", err)
	}
	team2, err := json.Marshal(rec.Team2)
	if err != nil {
		return fmt.Errorf("encode team2: %w", err)
	}
	deltas, err := json.Marshal(rec.Deltas)
	if err != nil {
		return fmt.Errorf("encode deltas: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail("save_result", fmt.Errorf("begin: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range changes {
		if err := s.setTx(ctx, tx, c); err != nil {
			return fail("save_result", fmt.Errorf("%s: %w", c.Player, err))
		}
	}
	for _, team := range [][]model.PlayerID{rec.Team1, rec.Team2} {
		for _, p := range team {
			if err := s.ensure(ctx, tx, p, rec.Mode); err != nil {
				return fail("save_result", fmt.Errorf("create player %s: %w", p, err))
			}
			win, loss := 0, 1
			if rec.Won(p) {
				win, loss = 1, 0
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE players SET games = games + 1, wins = wins + ?, losses = losses + ? WHERE player_id = ? AND mode = ?`,
				win, loss, string(p), string(rec.Mode),
			); err != nil {
				return fail("save_result", fmt.Errorf("increment stats for %s: %w", p, err))
			}
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO matches (match_id, mode, queue_number, team1, team2, winner, deltas, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.MatchID, string(rec.Mode), rec.QueueNumber, string(team1), string(team2),
		int(rec.Winner), string(deltas), toMillis(rec.CompletedAt),
	); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fail("save_result", fmt.Errorf("save match: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return fail("save_result", fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Stats implements repository.Store.
func (s *Store) Stats(ctx context.Context, player model.PlayerID, mode model.Mode) (model.PlayerStats, error) {
	defer observe("stats", time.Now())
	if err := s.ensure(ctx, s.db, player, mode); err != nil {
		return model.PlayerStats{}, fail("stats", fmt.Errorf("create player: %w", err))
	}
	st := model.PlayerStats{Player: player, Mode: mode}
	err := s.db.QueryRowContext(ctx,
		`SELECT rating, games, wins, losses FROM players WHERE player_id = ? AND mode = ?`,
		string(player), string(mode),
	).Scan(&st.Rating, &st.Games, &st.Wins, &st.Losses)
	if err != nil {
		return model.PlayerStats{}, fail("stats", fmt.Errorf("get stats: %w", err))
	}
	return st, nil
}

// Rank implements repository.Store.
func (s *Store) Rank(ctx context.Context, player model.PlayerID, mode model.Mode) (repository.Entry, error) {
	defer observe("rank", time.Now())
	e := repository.Entry{PlayerID: string(player)}
	err := s.db.QueryRowContext(ctx,
		`SELECT p.rating, p.games, p.wins, p.losses,
		        (SELECT COUNT(*) + 1 FROM players q WHERE q.mode = p.mode AND q.rating > p.rating)
		   FROM players p WHERE p.player_id = ? AND p.mode = ?`,
		string(player), string(mode),
	).Scan(&e.Rating, &e.Games, &e.Wins, &e.Losses, &e.Rank)
	if errors.Is(err, sql.ErrNoRows) {
		return repository.Entry{}, repository.ErrNotFound
	}
	if err != nil {
		return repository.Entry{}, fail("rank", fmt.Errorf("rank: %w", err))
	}
	return e, nil
}

// TopN implements repository.Store.
func (s *Store) TopN(ctx context.Context, mode model.Mode, n int) ([]repository.Entry, error) {
	defer observe("top_n", time.Now())
	if n < 1 {
		return nil, repository.ErrInvalidLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT player_id, rating, games, wins, losses FROM players
		  WHERE mode = ? ORDER BY rating DESC, player_id ASC LIMIT ?`,
		string(mode), n,
	)
	if err != nil {
		return nil, fail("top_n", fmt.Errorf("query leaderboard: %w", err))
	}
	defer rows.Close()

	out := make([]repository.Entry, 0, n)
	for rows.Next() {
		var e repository.Entry
		if err := rows.Scan(&e.PlayerID, &e.Rating, &e.Games, &e.Wins, &e.Losses); err != nil {
			return nil, fail("top_n", fmt.Errorf("scan leaderboard: %w", err))
		}
		if len(out) > 0 && out[len(out)-1].Rating == e.Rating {
			e.Rank = out[len(out)-1].Rank
		} else {
			e.Rank = len(out) + 1
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("top_n", fmt.Errorf("iterate leaderboard: %w", err))
	}
	return out, nil
}

// History implements repository.Store.
func (s *Store) History(ctx context.Context, player model.PlayerID, mode model.Mode, limit int) ([]model.RatingChange, error) {
	defer observe("history", time.Now())
	if limit < 1 {
		return nil, repository.ErrInvalidLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT old_rating, new_rating, reason, at FROM rating_history
		  WHERE player_id = ? AND mode = ? ORDER BY id DESC LIMIT ?`,
		string(player), string(mode), limit,
	)
	if err != nil {
		return nil, fail("history", fmt.Errorf("query history: %w", err))
	}
	defer rows.Close()

	var out []model.RatingChange
	for rows.Next() {
		c := model.RatingChange{Player: player, Mode: mode}
		var at int64
		if err := rows.Scan(&c.OldRating, &c.NewRating, &c.Reason, &at); err != nil {
			return nil, fail("history", fmt.Errorf("scan history: %w", err))
		}
		c.At = fromMillis(at)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("history", fmt.Errorf("iterate history: %w", err))
	}
	return out, nil
}

// Matches implements repository.Store.
func (s *Store) Matches(ctx context.Context, mode model.Mode, limit int) ([]model.MatchRecord, error) {
	defer observe("matches", time.Now())
	if limit < 1 {
		return nil, repository.ErrInvalidLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT match_id, queue_number, team1, team2, winner, deltas, completed_at FROM matches
		  WHERE mode = ? ORDER BY completed_at DESC, rowid DESC LIMIT ?`,
		string(mode), limit,
	)
	if err != nil {
		return nil, fail("matches", fmt.Errorf("query matches: %w", err))
	}
	defer rows.Close()

	var out []model.MatchRecord
	for rows.Next() {
		rec := model.MatchRecord{Mode: mode}
		var team1, team2, deltas string
		var winner int
		var completed int64
		if err := rows.Scan(&rec.MatchID, &rec.QueueNumber, &team1, &team2, &winner, &deltas, &completed); err != nil {
			return nil, fail("matches", fmt.Errorf("scan match: %w", err))
		}
		if err := json.Unmarshal([]byte(team1), &rec.Team1); err != nil {
			return nil, fmt.Errorf("decode team1 of %s: %w", rec.MatchID, err)
		}
		if err := json.Unmarshal([]byte(team2), &rec.Team2); err != nil {
			return nil, fmt.Errorf("decode team2 of %s: %w", rec.MatchID, err)
		}
		if err := json.Unmarshal([]byte(deltas), &rec.Deltas); err != nil {
			return nil, fmt.Errorf("decode deltas of %s: %w", rec.MatchID, err)
		}
		rec.Winner = model.Team(winner)
		rec.CompletedAt = fromMillis(completed)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("matches", fmt.Errorf("iterate matches: %w", err))
	}
	return out, nil
}

// Count implements repository.Store.
func (s *Store) Count(ctx context.Context, mode model.Mode) int {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM players WHERE mode = ?`, string(mode)).Scan(&n); err != nil {
		metrics.RecordStoreError("count")
		return 0
	}
	return n
}

func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func fail(op string, err error) error {
	metrics.RecordStoreError(op)
	return err
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
}
