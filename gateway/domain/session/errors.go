package session

import "errors"

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrNoActiveSession  = errors.New("no active session for workspace")
	ErrSessionNotActive = errors.New("session is not connected")
	ErrNoBackupProvider = errors.New("no backup provider available")
	ErrInvalidTransition = errors.New("invalid session status transition")
)
