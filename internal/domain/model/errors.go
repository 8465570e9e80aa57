package model

import "errors"

// Caller-visible outcomes. None of these are fatal; the collaborator layer
// decides how to present them.
var (
	ErrAlreadyQueued           = errors.New("player already queued")
	ErrAlreadyInMatch          = errors.New("player already in an active match")
	ErrNotQueued               = errors.New("player not queued")
	ErrNotInMatch              = errors.New("player not in match")
	ErrAlreadyConfirmed        = errors.New("player already confirmed")
	ErrAlreadyVoted            = errors.New("voter already voted")
	ErrInsufficientSubstitutes = errors.New("not enough substitutes")
	ErrNegativeRating          = errors.New("rating must not be negative")
	ErrSessionClosed           = errors.New("session is closed")
	ErrInvalidTeam             = errors.New("team must be 1 or 2")
	ErrUnknownMode             = errors.New("unknown mode")
	ErrInvalidMode             = errors.New("invalid mode configuration")
	ErrMatchNotFound           = errors.New("match not found")
	ErrNotAwaitingOutcome      = errors.New("match is not awaiting an outcome")
	ErrOddRoster               = errors.New("roster size must be even")
)
