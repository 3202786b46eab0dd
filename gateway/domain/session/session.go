package session

import (
	"time"
)

// ProviderKind identifies which connectivity backend a session runs on.
type ProviderKind string

const (
	ProviderCloudAPI          ProviderKind = "cloud-api"
	ProviderBrowserAutomation ProviderKind = "browser-automation"
)

// Status is the lifecycle state of a session. Transitions only move forward
// along initializing -> qr_pending -> authenticated -> connected, with
// disconnected/failed reachable from any later state.
type Status string

const (
	StatusInitializing  Status = "initializing"
	StatusQRPending     Status = "qr_pending"
	StatusAuthenticated Status = "authenticated"
	StatusConnected     Status = "connected"
	StatusDisconnected  Status = "disconnected"
	StatusFailed        Status = "failed"
)

var statusRank = map[Status]int{
	StatusInitializing:  0,
	StatusQRPending:     1,
	StatusAuthenticated: 2,
	StatusConnected:     3,
}

// CanTransition reports whether moving from one status to another respects
// the forward-only lifecycle. disconnected and failed are absorbing from any
// state past initializing; re-initialization (restart) is the only way back.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	if to == StatusDisconnected || to == StatusFailed {
		return from != StatusFailed
	}
	// Restart path: a torn-down session begins a new lifecycle.
	if to == StatusInitializing {
		return from == StatusDisconnected || from == StatusFailed
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank == fromRank+1
}

// InstanceRef points at the worker instance currently believed to own a
// browser-automation session.
type InstanceRef struct {
	URL   string `json:"url"`
	Index int    `json:"index"`
}

// Session is one connectivity endpoint for one workspace. Sessions are never
// hard-deleted; disconnection is a status change, preserving history.
type Session struct {
	ID             string
	WorkspaceID    string
	Provider       ProviderKind
	Status         Status
	PhoneNumber    string // empty until authenticated
	HealthScore    int    // 0-100
	IsPrimary      bool
	Instance       InstanceRef
	LastActivityAt *time.Time
	ConnectedAt    *time.Time
	Metadata       Metadata
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Metadata carries free-form operational annotations on a session.
type Metadata struct {
	DisconnectReason string `json:"disconnect_reason,omitempty"`
	LastError        string `json:"last_error,omitempty"`
	QRCode           string `json:"qr_code,omitempty"`
	Unreachable      bool   `json:"unreachable,omitempty"`
}

// InactivityDuration is the time since the last inbound activity, falling
// back to the connect timestamp when nothing has been received yet.
// Returns 0 when the session has never connected.
func (s *Session) InactivityDuration(now time.Time) time.Duration {
	ref := s.LastActivityAt
	if ref == nil {
		ref = s.ConnectedAt
	}
	if ref == nil {
		return 0
	}
	return now.Sub(*ref)
}
