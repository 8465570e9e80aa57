package api

import (
	"net/http"

	"github.com/okian/matchd/internal/domain/model"
)

// QueueHandler serves the per-mode queues.
type QueueHandler struct {
	deps QueueDependencies
}

// NewQueueHandler creates a queue handler.
func NewQueueHandler(deps QueueDependencies) *QueueHandler {
	return &QueueHandler{deps: deps}
}

// HandleModes handles GET /modes.
func (h *QueueHandler) HandleModes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Modes())
}

// HandleStatus handles GET /queues/{mode}.
func (h *QueueHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.QueueStatus(model.Mode(r.PathValue("mode")))
	if err != nil {
		writeError(w, Wrap("api.queue_status", err))
		return
	}
	if st.Waiting == nil {
		st.Waiting = []model.PlayerID{}
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleJoin handles POST /queues/{mode}/join. A join that completes a
// roster answers 201 with the formed match.
func (h *QueueHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	const op = "api.queue_join"
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
	res, err := h.deps.Join(r.Context(), player, model.Mode(r.PathValue("mode")))
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	status := http.StatusOK
	if res.Match != nil {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// HandleLeave handles POST /queues/{mode}/leave.
func (h *QueueHandler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	const op = "api.queue_leave"
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
	if err := h.deps.Leave(r.Context(), player, model.Mode(r.PathValue("mode"))); err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
