package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/matchd/internal/domain/balance"
	"github.com/okian/matchd/internal/domain/events"
	"github.com/okian/matchd/internal/domain/model"
	"github.com/okian/matchd/internal/domain/readycheck"
	"github.com/okian/matchd/internal/domain/vote"
	"github.com/okian/matchd/pkg/logger"
	"github.com/okian/matchd/pkg/metrics"
)

// match is one formed roster moving through ready check, vote and result.
// mu guards everything below it. Session hooks take mu themselves, so it is
// never held while calling into the session.
type match struct {
	id          string
	mode        *modeState
	queueNumber int
	createdAt   time.Time

	mu       sync.Mutex
	phase    model.Phase
	roster   []model.PlayerID
	session  *readycheck.Session
	vote     *vote.Session
	team1    []model.PlayerID
	team2    []model.PlayerID
	winner   model.Team
	unready  []model.PlayerID
	teardown readycheck.Timer
}

func (m *match) name() model.Mode { return m.mode.cfg.Name }

// form registers a match for roster and starts its ready check. The roster
// has already been moved to the pool's active set.
func (s *Service) form(ctx context.Context, st *modeState, roster []model.PlayerID) model.MatchView {
	m := &match{
		id:        uuid.NewString(),
		mode:      st,
		createdAt: s.now().UTC(),
		phase:     model.PhaseAwaitingReady,
		roster:    append([]model.PlayerID(nil), roster...),
	}
	m.session = readycheck.New(m.id, st.cfg.Name, roster, st.pool,
		readycheck.WithDeadline(s.readyDeadline),
		readycheck.WithScheduler(s.scheduler),
		readycheck.WithClock(s.now),
		readycheck.WithPenalty(s.penalty, s.engine),
		readycheck.WithHooks(s.hooks(m)),
		readycheck.WithContext(s.ctx),
		readycheck.WithLogger(s.logger.Named("readycheck")),
	)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		st.pool.Release(roster...)
		m.phase = model.PhaseCancelled
		return m.view()
	}
	s.numbers[st.cfg.Name]++
	m.queueNumber = s.numbers[st.cfg.Name]
	s.matches[m.id] = m
	active := len(s.matches)
	s.mu.Unlock()

	m.session.Start()

	metrics.RecordMatchFormed(string(st.cfg.Name))
	metrics.UpdateActiveMatches(active)
	s.logger.Info(ctx, "match formed",
		logger.String("match_id", m.id),
		logger.String("mode", string(st.cfg.Name)),
		logger.Int("queue_number", m.queueNumber),
		logger.Strings("roster", playerStrings(roster)),
	)
	s.publish(ctx, events.New(events.MatchFormed, st.cfg.Name, m.id, events.FormedPayload{
		QueueNumber: m.queueNumber,
		Roster:      m.roster,
		Deadline:    s.readyDeadline,
	}))
	return m.view()
}

func (s *Service) hooks(m *match) readycheck.Hooks {
	return readycheck.Hooks{
		OnSubstituted: func(old, next *readycheck.Session, sub readycheck.Substitution) {
			s.substituted(m, old, next, sub)
		},
		OnCancelled: func(sess *readycheck.Session, unready []model.PlayerID, _ []model.RatingChange, cause error) {
			s.cancelled(m, sess, unready, cause)
		},
	}
}

// Confirm marks player ready in the match's current ready check. The confirm
// that completes the roster balances the teams and opens the outcome vote.
func (s *Service) Confirm(ctx context.Context, matchID string, player model.PlayerID) (readycheck.Progress, error) {
	m, ok := s.lookup(matchID)
	if !ok {
		return readycheck.Progress{}, model.ErrMatchNotFound
	}
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()

	p, err := sess.Confirm(player)
	if err != nil {
		return p, err
	}
	s.publish(ctx, events.New(events.ReadyCheckProgress, m.name(), m.id, events.ReadyProgressPayload{
		Player:    player,
		Confirmed: p.Confirmed,
		Expected:  p.Expected,
		Remaining: p.Remaining,
	}))
	if p.AllReady() {
		if err := s.start(context.WithoutCancel(ctx), m, sess); err != nil {
			return p, err
		}
	}
	return p, nil
}

// start balances the confirmed roster and opens the vote. If the ratings
// cannot be read the match is cancelled without penalties and the error is
// returned.
func (s *Service) start(ctx context.Context, m *match, sess *readycheck.Session) error {
	m.mu.Lock()
	if m.session != sess || m.phase != model.PhaseAwaitingReady {
		m.mu.Unlock()
		return nil
	}
	m.phase = model.PhaseStarting
	roster := append([]model.PlayerID(nil), m.roster...)
	m.mu.Unlock()

	ratings, err := s.engine.Ratings(ctx, m.name(), roster)
	if err != nil {
		err = fmt.Errorf("read ratings: %w", err)
		s.abort(ctx, m, err)
		return err
	}
	rated := make([]balance.Rated, len(roster))
	byPlayer := make(map[model.PlayerID]int, len(roster))
	for i, p := range roster {
		rated[i] = balance.Rated{Player: p, Rating: ratings[i]}
		byPlayer[p] = ratings[i]
	}
	team1, team2, err := balance.Balance(rated)
	if err != nil {
		err = fmt.Errorf("balance teams: %w", err)
		s.abort(ctx, m, err)
		return err
	}
	quorum := m.mode.cfg.VoteQuorum()

	m.mu.Lock()
	m.team1, m.team2 = team1, team2
	m.vote = vote.New(quorum)
	m.phase = model.PhaseAwaitingOutcome
	m.mu.Unlock()

	s.logger.Info(ctx, "match started",
		logger.String("match_id", m.id),
		logger.Strings("team1", playerStrings(team1)),
		logger.Strings("team2", playerStrings(team2)),
	)
	s.publish(ctx, events.New(events.MatchStarted, m.name(), m.id, events.StartedPayload{
		QueueNumber: m.queueNumber,
		Team1:       team1,
		Team2:       team2,
		Team1Rating: sumRatings(team1, byPlayer),
		Team2Rating: sumRatings(team2, byPlayer),
		Quorum:      quorum,
	}))
	return nil
}

// abort cancels a match that could not start. Nobody is penalized.
func (s *Service) abort(ctx context.Context, m *match, cause error) {
	m.mu.Lock()
	m.phase = model.PhaseCancelled
	roster := append([]model.PlayerID(nil), m.roster...)
	m.mu.Unlock()

	m.mode.pool.Release(roster...)
	s.logger.Error(ctx, "match aborted", logger.String("match_id", m.id), logger.Error(cause))
	s.publish(ctx, events.New(events.ReadyCheckCancelled, m.name(), m.id, events.CancelledPayload{
		Reason: cause.Error(),
	}))
	s.scheduleTeardown(m, s.cancelTeardown)
}

// Vote records voter's choice of winner. The vote that reaches quorum
// applies the result before Vote returns.
func (s *Service) Vote(ctx context.Context, matchID string, voter model.PlayerID, team model.Team) (vote.Result, error) {
	if !team.Valid() {
		return vote.Result{}, model.ErrInvalidTeam
	}
	m, ok := s.lookup(matchID)
	if !ok {
		return vote.Result{}, model.ErrMatchNotFound
	}
	m.mu.Lock()
	v := m.vote
	m.mu.Unlock()
	if v == nil {
		return vote.Result{}, model.ErrNotAwaitingOutcome
	}

	res, err := v.Cast(voter, team)
	if err != nil {
		metrics.RecordVote(string(m.name()), "rejected")
		return res, err
	}
	metrics.RecordVote(string(m.name()), "accepted")
	s.publish(ctx, events.New(events.VoteProgress, m.name(), m.id, events.VotePayload{
		Voter:      voter,
		Team:       team,
		Team1Votes: res.Team1Votes,
		Team2Votes: res.Team2Votes,
		Quorum:     res.Quorum,
	}))
	if res.Decided {
		if err := s.complete(context.WithoutCancel(ctx), m, res.Winner); err != nil {
			// Reopen the vote so the same voter can decide again.
			res = v.Retract(voter)
			return res, err
		}
	}
	return res, nil
}

// complete applies the decided result. Ratings, stats and the match record
// are written as one unit; if that fails nothing changes, the match stays
// awaiting its outcome and the error is returned.
func (s *Service) complete(ctx context.Context, m *match, winner model.Team) error {
	m.mu.Lock()
	if m.phase != model.PhaseAwaitingOutcome {
		m.mu.Unlock()
		return nil
	}
	team1 := append([]model.PlayerID(nil), m.team1...)
	team2 := append([]model.PlayerID(nil), m.team2...)
	m.mu.Unlock()

	mode := m.name()
	rec := model.MatchRecord{
		MatchID:     m.id,
		Mode:        mode,
		QueueNumber: m.queueNumber,
		Team1:       team1,
		Team2:       team2,
		Winner:      winner,
	}
	_, err := s.engine.ApplyMatch(ctx, mode, team1, team2, winner, func(ctx context.Context, changes []model.RatingChange) error {
		rec.Deltas = make(map[model.PlayerID]int, len(changes))
		for _, c := range changes {
			rec.Deltas[c.Player] = c.Delta()
		}
		rec.CompletedAt = s.now().UTC()
		return s.store.SaveResult(ctx, rec, changes)
	})
	if err != nil {
		s.logger.Error(ctx, "match result not saved",
			logger.String("match_id", m.id),
			logger.String("winner", winner.String()),
			logger.Error(err),
		)
		return fmt.Errorf("save result: %w", err)
	}

	m.mu.Lock()
	m.phase = model.PhaseComplete
	m.winner = winner
	m.mu.Unlock()
	m.mode.pool.Release(append(team1, team2...)...)

	metrics.RecordMatchCompleted(string(mode), winner.String())
	s.logger.Info(ctx, "match completed",
		logger.String("match_id", m.id),
		logger.String("winner", winner.String()),
	)
	s.publish(ctx, events.New(events.MatchCompleted, mode, m.id, events.CompletedPayload{Record: rec}))
	s.scheduleTeardown(m, s.teardown)
	return nil
}

func (s *Service) substituted(m *match, old, next *readycheck.Session, sub readycheck.Substitution) {
	if s.isClosed() {
		next.Close()
		return
	}
	m.mu.Lock()
	if m.session != old {
		m.mu.Unlock()
		next.Close()
		m.mode.pool.Release(sub.Substitutes...)
		return
	}
	m.session = next
	m.roster = next.Expected()
	roster := append([]model.PlayerID(nil), m.roster...)
	m.mu.Unlock()

	m.mode.pool.Release(sub.Replaced...)
	s.publish(s.ctx, events.New(events.ReadyCheckSubstituted, m.name(), m.id, events.SubstitutedPayload{
		Replaced:    sub.Replaced,
		Substitutes: sub.Substitutes,
		Roster:      roster,
		Penalty:     s.penalty,
	}))
}

func (s *Service) cancelled(m *match, sess *readycheck.Session, unready []model.PlayerID, cause error) {
	m.mu.Lock()
	if m.session != sess {
		m.mu.Unlock()
		return
	}
	m.phase = model.PhaseCancelled
	m.unready = unready
	roster := append([]model.PlayerID(nil), m.roster...)
	m.mu.Unlock()

	m.mode.pool.Release(roster...)
	s.publish(s.ctx, events.New(events.ReadyCheckCancelled, m.name(), m.id, events.CancelledPayload{
		Unready: unready,
		Penalty: s.penalty,
		Reason:  cause.Error(),
	}))
	s.scheduleTeardown(m, s.cancelTeardown)
}

// scheduleTeardown keeps a finished match visible for d before dropping it.
func (s *Service) scheduleTeardown(m *match, d time.Duration) {
	if d <= 0 {
		s.archive(m)
		return
	}
	t := s.scheduler.AfterFunc(d, func() { s.archive(m) })
	m.mu.Lock()
	m.teardown = t
	m.mu.Unlock()
}

func (s *Service) archive(m *match) {
	s.mu.Lock()
	if s.matches[m.id] == m {
		delete(s.matches, m.id)
	}
	active := len(s.matches)
	s.mu.Unlock()
	metrics.UpdateActiveMatches(active)
}

func (s *Service) lookup(id string) (*match, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[id]
	return m, ok
}

// Match returns a snapshot of an active or recently finished match.
func (s *Service) Match(id string) (model.MatchView, bool) {
	m, ok := s.lookup(id)
	if !ok {
		return model.MatchView{}, false
	}
	return m.view(), true
}

// ActiveMatches returns every tracked match, oldest first.
func (s *Service) ActiveMatches() []model.MatchView {
	s.mu.RLock()
	ms := make([]*match, 0, len(s.matches))
	for _, m := range s.matches {
		ms = append(ms, m)
	}
	s.mu.RUnlock()

	out := make([]model.MatchView, len(ms))
	for i, m := range ms {
		out[i] = m.view()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *match) view() model.MatchView {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := model.MatchView{
		ID:          m.id,
		Mode:        m.name(),
		QueueNumber: m.queueNumber,
		Phase:       m.phase,
		Roster:      append([]model.PlayerID(nil), m.roster...),
		Team1:       append([]model.PlayerID(nil), m.team1...),
		Team2:       append([]model.PlayerID(nil), m.team2...),
		Winner:      m.winner,
		Unready:     append([]model.PlayerID(nil), m.unready...),
		CreatedAt:   m.createdAt,
	}
	if m.phase == model.PhaseAwaitingReady && m.session != nil {
		for _, p := range m.roster {
			if m.session.IsConfirmed(p) {
				v.Confirmed = append(v.Confirmed, p)
			}
		}
		v.Remaining = m.session.Progress().Remaining.Seconds()
	}
	if m.vote != nil {
		r := m.vote.Result()
		v.Team1Votes, v.Team2Votes, v.Quorum = r.Team1Votes, r.Team2Votes, r.Quorum
	}
	return v
}

func sumRatings(team []model.PlayerID, ratings map[model.PlayerID]int) int {
	sum := 0
	for _, p := range team {
		sum += ratings[p]
	}
	return sum
}

func playerStrings(players []model.PlayerID) []string {
	out := make([]string, len(players))
	for i, p := range players {
		out[i] = string(p)
	}
	return out
}
