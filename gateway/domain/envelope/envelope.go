// Package envelope holds the normalized chat/message shapes shared by the
// sync pipeline and the webhook boundary.
package envelope

import "time"

// ChatType distinguishes private conversations from groups.
type ChatType string

const (
	ChatPrivate ChatType = "private"
	ChatGroup   ChatType = "group"
)

// Participant is one member of a group chat.
type Participant struct {
	PhoneNumber string `json:"phone_number"`
	Name        string `json:"name,omitempty"`
	IsAdmin     bool   `json:"is_admin"`
}

// Contact is the counterpart descriptor of a private chat.
type Contact struct {
	PhoneNumber string `json:"phone_number"`
	Name        string `json:"name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// GroupInfo carries group-only metadata.
type GroupInfo struct {
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	Participants []Participant `json:"participants,omitempty"`
}

// ChatEnvelope is the normalized representation of one conversation unit.
// It is uniquely identified by (workspace id, session id, remote id);
// re-delivery of the same identifier updates, never duplicates.
type ChatEnvelope struct {
	WorkspaceID     string     `json:"workspace_id"`
	SessionID       string     `json:"session_id"`
	RemoteID        string     `json:"remote_id"`
	Type            ChatType   `json:"type"`
	Contact         *Contact   `json:"contact,omitempty"`
	Group           *GroupInfo `json:"group,omitempty"`
	LastMessageBody string     `json:"last_message_body,omitempty"`
	LastMessageType string     `json:"last_message_type,omitempty"`
	LastMessageAt   time.Time  `json:"last_message_at"`
	UnreadCount     int        `json:"unread_count"`
}

// InboundMessage is one received message as delivered by an automation
// worker. ExternalID is the provider-assigned identifier used for duplicate
// suppression.
type InboundMessage struct {
	ExternalID   string    `json:"external_id"`
	WorkspaceID  string    `json:"workspace_id"`
	SessionID    string    `json:"session_id"`
	ChatRemoteID string    `json:"chat_remote_id"`
	FromPhone    string    `json:"from_phone"`
	FromName     string    `json:"from_name,omitempty"`
	Body         string    `json:"body"`
	MessageType  string    `json:"message_type"`
	IsBroadcast  bool      `json:"is_broadcast"`
	Timestamp    time.Time `json:"timestamp"`
}
