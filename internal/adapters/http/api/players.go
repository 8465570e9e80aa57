package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/okian/matchd/internal/domain/model"
)

// PlayerHandler serves player profiles, rating history and admin changes.
type PlayerHandler struct {
	deps     PlayerDependencies
	maxLimit int
}

// NewPlayerHandler creates a player handler.
func NewPlayerHandler(deps PlayerDependencies, maxLimit int) *PlayerHandler {
	return &PlayerHandler{deps: deps, maxLimit: maxLimit}
}

type profileResponse struct {
	model.PlayerStats
	Rank    int     `json:"rank"`
	WinRate float64 `json:"win_rate"`
}

// adminRatingRequest carries exactly one of Amount or Value.
type adminRatingRequest struct {
	Amount *int   `json:"amount"`
	Value  *int   `json:"value"`
	Actor  string `json:"actor"`
}

func (a adminRatingRequest) validate() error {
	switch {
	case a.Amount == nil && a.Value == nil:
		return errors.New("one of amount or value is required")
	case a.Amount != nil && a.Value != nil:
		return errors.New("amount and value are mutually exclusive")
	}
	return nil
}

// HandleStats handles GET /players/{id}/{mode}. Unknown players get a
// default record.
func (h *PlayerHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.player_stats"
	player, mode := model.PlayerID(r.PathValue("id")), model.Mode(r.PathValue("mode"))
	st, err := h.deps.PlayerStats(r.Context(), player, mode)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	entry, err := h.deps.Rank(r.Context(), player, mode)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{PlayerStats: st, Rank: entry.Rank, WinRate: entry.WinRate()})
}

// HandleHistory handles GET /players/{id}/{mode}/history?limit=N.
func (h *PlayerHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.player_history"
	n, err := limit(r, defaultHistoryLimit, h.maxLimit)
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	hist, err := h.deps.RatingHistory(r.Context(), model.PlayerID(r.PathValue("id")), model.Mode(r.PathValue("mode")), n)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	if hist == nil {
		hist = []model.RatingChange{}
	}
	writeJSON(w, http.StatusOK, hist)
}

// HandleAdminRating handles POST /admin/ratings/{mode}/{id}. An amount is
// added to the current rating, a value replaces it.
func (h *PlayerHandler) HandleAdminRating(w http.ResponseWriter, r *http.Request) {
	const op = "api.admin_rating"
	var req adminRatingRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	player := model.PlayerID(strings.TrimSpace(r.PathValue("id")))
	mode := model.Mode(r.PathValue("mode"))

	var (
		change model.RatingChange
		err    error
	)
	if req.Amount != nil {
		change, err = h.deps.AdjustRating(r.Context(), player, mode, *req.Amount, req.Actor)
	} else {
		change, err = h.deps.SetRating(r.Context(), player, mode, *req.Value, req.Actor)
	}
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, change)
}
