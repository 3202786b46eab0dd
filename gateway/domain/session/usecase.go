package session

import "context"

// CreateRequest opens a new session for a workspace.
type CreateRequest struct {
	WorkspaceID string       `json:"workspace_id"`
	Provider    ProviderKind `json:"provider"`
	IsPrimary   bool         `json:"is_primary"`
}

// IUsecase is the session lifecycle surface exposed to the REST layer and
// the background jobs.
type IUsecase interface {
	Create(ctx context.Context, request CreateRequest) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	List(ctx context.Context, workspaceID string) ([]*Session, error)
	SetPrimary(ctx context.Context, workspaceID, sessionID string) error
	Disconnect(ctx context.Context, sessionID, reason string) error
	Logout(ctx context.Context, sessionID string) error
	RestartSession(ctx context.Context, sessionID string) error
}
