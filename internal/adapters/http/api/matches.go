package api

import (
	"net/http"

	"github.com/okian/matchd/internal/domain/model"
)

const defaultHistoryLimit = 20

// MatchHandler serves ready checks, outcome votes and match lookups.
type MatchHandler struct {
	deps     MatchDependencies
	maxLimit int
}

// NewMatchHandler creates a match handler.
func NewMatchHandler(deps MatchDependencies, maxLimit int) *MatchHandler {
	return &MatchHandler{deps: deps, maxLimit: maxLimit}
}

type voteRequest struct {
	PlayerID string     `json:"player_id"`
	Team     model.Team `json:"team"`
}

// readyResponse flattens readycheck.Progress with the remaining time in seconds.
type readyResponse struct {
	MatchID   string  `json:"match_id"`
	Confirmed int     `json:"confirmed"`
	Expected  int     `json:"expected"`
	Remaining float64 `json:"remaining_seconds"`
	State     string  `json:"state"`
	AllReady  bool    `json:"all_ready"`
}

// HandleList handles GET /matches.
func (h *MatchHandler) HandleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.ActiveMatches())
}

// HandleGet handles GET /matches/{id}.
func (h *MatchHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	m, ok := h.deps.Match(r.PathValue("id"))
	if !ok {
		writeError(w, NewKind("api.get_match", model.ErrMatchNotFound))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleReady handles POST /matches/{id}/ready.
func (h *MatchHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	const op = "api.match_ready"
	var req playerRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	player, err := req.player()
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	p, err := h.deps.Confirm(r.Context(), r.PathValue("id"), player)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, readyResponse{
		MatchID:   p.MatchID,
		Confirmed: p.Confirmed,
		Expected:  p.Expected,
		Remaining: p.Remaining.Seconds(),
		State:     p.State.String(),
		AllReady:  p.AllReady(),
	})
}

// HandleVote handles POST /matches/{id}/votes.
func (h *MatchHandler) HandleVote(w http.ResponseWriter, r *http.Request) {
	const op = "api.match_vote"
	var req voteRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	voter, err := playerRequest{PlayerID: req.PlayerID}.player()
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.Vote(r.Context(), r.PathValue("id"), voter, req.Team)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleHistory handles GET /history/{mode}?limit=N, the newest completed matches.
func (h *MatchHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.match_history"
	n, err := limit(r, defaultHistoryLimit, h.maxLimit)
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	recs, err := h.deps.RecentMatches(r.Context(), model.Mode(r.PathValue("mode")), n)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	if recs == nil {
		recs = []model.MatchRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}
