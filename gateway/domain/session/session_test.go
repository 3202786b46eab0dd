package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionForwardOnly(t *testing.T) {
	assert.True(t, CanTransition(StatusInitializing, StatusQRPending))
	assert.True(t, CanTransition(StatusQRPending, StatusAuthenticated))
	assert.True(t, CanTransition(StatusAuthenticated, StatusConnected))

	// Skipping a step is not allowed.
	assert.False(t, CanTransition(StatusInitializing, StatusAuthenticated))
	assert.False(t, CanTransition(StatusQRPending, StatusConnected))

	// Backwards is not allowed.
	assert.False(t, CanTransition(StatusConnected, StatusAuthenticated))
	assert.False(t, CanTransition(StatusAuthenticated, StatusQRPending))
}

func TestCanTransitionTerminalStates(t *testing.T) {
	for _, from := range []Status{StatusInitializing, StatusQRPending, StatusAuthenticated, StatusConnected, StatusDisconnected} {
		assert.True(t, CanTransition(from, StatusFailed), "from %s", from)
	}
	for _, from := range []Status{StatusInitializing, StatusQRPending, StatusAuthenticated, StatusConnected} {
		assert.True(t, CanTransition(from, StatusDisconnected), "from %s", from)
	}

	// failed is absorbing except for restart.
	assert.False(t, CanTransition(StatusFailed, StatusConnected))
	assert.False(t, CanTransition(StatusFailed, StatusDisconnected))
}

func TestCanTransitionRestartPath(t *testing.T) {
	assert.True(t, CanTransition(StatusDisconnected, StatusInitializing))
	assert.True(t, CanTransition(StatusFailed, StatusInitializing))

	assert.False(t, CanTransition(StatusConnected, StatusInitializing))
	assert.False(t, CanTransition(StatusQRPending, StatusInitializing))
}

func TestCanTransitionSelfLoop(t *testing.T) {
	for _, s := range []Status{StatusInitializing, StatusConnected, StatusFailed} {
		assert.False(t, CanTransition(s, s), "self loop %s", s)
	}
}

func TestInactivityDuration(t *testing.T) {
	now := time.Now()

	var s Session
	assert.Equal(t, time.Duration(0), s.InactivityDuration(now))

	connected := now.Add(-2 * time.Hour)
	s.ConnectedAt = &connected
	assert.Equal(t, 2*time.Hour, s.InactivityDuration(now))

	active := now.Add(-10 * time.Minute)
	s.LastActivityAt = &active
	assert.Equal(t, 10*time.Minute, s.InactivityDuration(now))
}
