package session

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionBusy is returned when another top-level operation holds the session.
	ErrSessionBusy     = errors.New("session is busy")
	ErrRunLimitReached = errors.New("session run limit reached")
)
