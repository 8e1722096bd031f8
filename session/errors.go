package session

import "errors"

var (
	// ErrRedisUnavailable wraps every backend failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrNotFound is returned for unknown, expired or malformed tokens.
	ErrNotFound = errors.New("session not found")
	// ErrAlreadyLogged is returned when the identity already holds a live session.
	ErrAlreadyLogged = errors.New("identity already has a live session")
	// ErrAlreadyCompleted is returned when a pending session was already completed.
	ErrAlreadyCompleted = errors.New("session already authenticated")
	// ErrSessionPending is returned when an operation needs an authenticated session.
	ErrSessionPending = errors.New("session awaiting second factor")
	// ErrCorruptRecord is returned when a stored payload cannot be decoded.
	ErrCorruptRecord = errors.New("session record corrupt")
	// ErrTokenCollision is returned when no unique token could be issued.
	ErrTokenCollision = errors.New("could not issue a unique token")
)
