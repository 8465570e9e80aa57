package service

import (
	"context"
	"errors"

	"github.com/okian/matchd/internal/domain/events"
	"github.com/okian/matchd/internal/domain/model"
	"github.com/okian/matchd/internal/domain/types"
	"github.com/okian/matchd/pkg/logger"
	"github.com/okian/matchd/pkg/metrics"
)

// JoinResult is the outcome of a successful Join.
type JoinResult = types.JoinResult

// QueueStatus describes a mode's waiting pool.
type QueueStatus = types.QueueStatus

// Join admits player to mode's queue. When the queue reaches the roster size
// the earliest players form a match and its ready check starts.
func (s *Service) Join(ctx context.Context, player model.PlayerID, mode model.Mode) (JoinResult, error) {
	st, err := s.mode(mode)
	if err != nil {
		metrics.RecordJoin(string(mode), "unknown_mode")
		return JoinResult{}, err
	}
	if s.isClosed() {
		return JoinResult{}, ErrClosed
	}

	adm, err := st.pool.Admit(player, st.cfg.RosterSize)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrAlreadyQueued):
			metrics.RecordJoin(string(mode), "already_queued")
		case errors.Is(err, model.ErrAlreadyInMatch):
			metrics.RecordJoin(string(mode), "in_match")
		}
		return JoinResult{}, err
	}
	metrics.RecordJoin(string(mode), "admitted")

	waiting := st.pool.Snapshot()
	res := JoinResult{Mode: mode, Position: adm.Position, Waiting: len(waiting)}
	s.logger.Debug(ctx, "player joined queue",
		logger.String("player", string(player)),
		logger.String("mode", string(mode)),
		logger.Int("position", adm.Position),
	)
	s.publish(ctx, events.New(events.QueueUpdated, mode, "", events.QueuePayload{
		Player:  player,
		Action:  "join",
		Size:    len(waiting),
		Roster:  st.cfg.RosterSize,
		Waiting: waiting,
	}))

	if len(adm.Formed) > 0 {
		view := s.form(ctx, st, adm.Formed)
		res.Match = &view
	}
	return res, nil
}

// Leave removes a waiting player from mode's queue.
func (s *Service) Leave(ctx context.Context, player model.PlayerID, mode model.Mode) error {
	st, err := s.mode(mode)
	if err != nil {
		return err
	}
	if !st.pool.Remove(player) {
		return model.ErrNotQueued
	}
	metrics.RecordLeave(string(mode))

	waiting := st.pool.Snapshot()
	s.publish(ctx, events.New(events.QueueUpdated, mode, "", events.QueuePayload{
		Player:  player,
		Action:  "leave",
		Size:    len(waiting),
		Roster:  st.cfg.RosterSize,
		Waiting: waiting,
	}))
	return nil
}

// QueueStatus returns the waiting players of mode in queue order.
func (s *Service) QueueStatus(mode model.Mode) (QueueStatus, error) {
	st, err := s.mode(mode)
	if err != nil {
		return QueueStatus{}, err
	}
	return QueueStatus{
		Mode:       mode,
		RosterSize: st.cfg.RosterSize,
		Quorum:     st.cfg.VoteQuorum(),
		Waiting:    st.pool.Snapshot(),
	}, nil
}

func (s *Service) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
