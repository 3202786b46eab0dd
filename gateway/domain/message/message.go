// Package message defines the outbound send contract exposed by the REST
// layer and implemented in usecase.
package message

import (
	"context"
)

// SendTextRequest sends a plain text message through a workspace's sessions.
// SessionID is optional; when empty the gateway picks the best session.
type SendTextRequest struct {
	WorkspaceID string `json:"workspace_id"`
	SessionID   string `json:"session_id,omitempty"`
	Phone       string `json:"phone"`
	Message     string `json:"message"`
}

type SendMediaRequest struct {
	WorkspaceID string `json:"workspace_id"`
	SessionID   string `json:"session_id,omitempty"`
	Phone       string `json:"phone"`
	MediaURL    string `json:"media_url"`
	MimeType    string `json:"mime_type"`
	Caption     string `json:"caption,omitempty"`
	Filename    string `json:"filename,omitempty"`
}

type SendTemplateRequest struct {
	WorkspaceID  string            `json:"workspace_id"`
	SessionID    string            `json:"session_id,omitempty"`
	Phone        string            `json:"phone"`
	TemplateName string            `json:"template_name"`
	LanguageCode string            `json:"language_code"`
	Parameters   map[string]string `json:"parameters,omitempty"`
}

type MarkReadRequest struct {
	WorkspaceID string `json:"workspace_id"`
	SessionID   string `json:"session_id,omitempty"`
	MessageID   string `json:"message_id"`
}

// SendResponse reports delivery through whichever session carried the send.
type SendResponse struct {
	MessageID string `json:"message_id"`
	SessionID string `json:"session_id"`
	Provider  string `json:"provider"`
	FellBack  bool   `json:"fell_back"`
	Rejected  bool   `json:"rejected,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ISendUsecase is the outbound messaging surface.
type ISendUsecase interface {
	SendText(ctx context.Context, request SendTextRequest) (SendResponse, error)
	SendMedia(ctx context.Context, request SendMediaRequest) (SendResponse, error)
	SendTemplate(ctx context.Context, request SendTemplateRequest) (SendResponse, error)
	MarkAsRead(ctx context.Context, request MarkReadRequest) error
	MessageStatus(ctx context.Context, workspaceID, sessionID, messageID string) (string, error)
}
