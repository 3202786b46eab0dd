// Package webhook defines the inbound event contract between automation
// worker instances and the gateway. Authenticity is enforced at the HTTP
// boundary before any payload in this package is decoded.
package webhook

import (
	"context"
	"encoding/json"

	"github.com/zentria/wagate/gateway/domain/envelope"
)

// EventType discriminates worker-originated events.
type EventType string

const (
	EventMessage    EventType = "message"
	EventQRCode     EventType = "qr"
	EventStatus     EventType = "status"
	EventChatUpsert EventType = "chat"
	EventChatBatch  EventType = "chat_batch"
)

// Event is the signed envelope every worker instance posts. Payload is
// decoded per Type after the envelope itself validates.
type Event struct {
	Type        EventType       `json:"type"`
	WorkspaceID string          `json:"workspace_id"`
	SessionID   string          `json:"session_id"`
	Payload     json.RawMessage `json:"payload"`
}

// QRPayload carries a freshly generated pairing code.
type QRPayload struct {
	Code      string `json:"code"`
	ExpiresIn int    `json:"expires_in,omitempty"`
}

// ChatBatchPayload carries one sync batch of chat envelopes. Batches are
// queued for asynchronous application; re-delivery of an already-applied
// batch is idempotent.
type ChatBatchPayload struct {
	Chats []envelope.ChatEnvelope `json:"chats"`
}

// StatusPayload reports a session lifecycle change observed by the worker.
type StatusPayload struct {
	State       string `json:"state"`
	Reason      string `json:"reason,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// IWebhookUsecase processes authenticated worker events.
type IWebhookUsecase interface {
	HandleEvent(ctx context.Context, event Event) error
}
