package api

import (
	"errors"
	"fmt"
	"net/http"

	repository "github.com/okian/matchd/internal/adapters/repository"
	"github.com/okian/matchd/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrNotFound   = errors.New("not found")
)

// Error carries the operation that failed and the kind used to pick a status.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Kind != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewKind builds an error of kind with no further cause.
func NewKind(op string, kind error) error { return &Error{Op: op, Kind: kind} }

// WrapKind attaches kind and op to err.
func WrapKind(op string, kind, err error) error { return &Error{Op: op, Kind: kind, Err: err} }

// Wrap attaches op to err.
func Wrap(op string, err error) error { return &Error{Op: op, Err: err} }

// classify maps an error to a status code and a short machine-readable code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrUnknownMode),
		errors.Is(err, model.ErrMatchNotFound),
		errors.Is(err, repository.ErrNotFound),
		errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrAlreadyQueued),
		errors.Is(err, model.ErrAlreadyInMatch),
		errors.Is(err, model.ErrNotQueued),
		errors.Is(err, model.ErrNotInMatch),
		errors.Is(err, model.ErrAlreadyConfirmed),
		errors.Is(err, model.ErrAlreadyVoted),
		errors.Is(err, model.ErrSessionClosed),
		errors.Is(err, model.ErrNotAwaitingOutcome):
		return http.StatusConflict, "conflict"
	case errors.Is(err, model.ErrInvalidTeam),
		errors.Is(err, model.ErrNegativeRating),
		errors.Is(err, repository.ErrInvalidLimit),
		errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
