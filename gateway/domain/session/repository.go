package session

import "context"

// Repository is the persistence contract for sessions. Implementations live
// in gateway/repository.
type Repository interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id string) (*Session, error)
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*Session, error)

	// ConnectedByWorkspace returns connected sessions ordered by
	// is_primary desc, health_score desc, id asc. The ordering is the
	// selection contract; callers may take the head directly.
	ConnectedByWorkspace(ctx context.Context, workspaceID string) ([]*Session, error)

	// ListByStatus returns every session in the given status across all
	// workspaces (monitor and reconciliation sweeps).
	ListByStatus(ctx context.Context, status Status) ([]*Session, error)

	// UpdateStatus applies a lifecycle transition and the accompanying
	// metadata in one write. Returns ErrInvalidTransition when the move is
	// not allowed.
	UpdateStatus(ctx context.Context, id string, to Status, meta Metadata) error

	// Update persists mutable fields (phone number, health score, instance
	// assignment, timestamps, metadata).
	Update(ctx context.Context, s *Session) error

	// TouchActivity records inbound activity for a session.
	TouchActivity(ctx context.Context, id string) error
}
