// Package provider defines the uniform capability contract every
// connectivity backend implements. Selection always returns this interface,
// never a concrete adapter, so callers cannot branch on provider identity.
package provider

import (
	"context"
	"errors"
)

// ErrTemplatesNotSupported is the capability error returned by providers
// that cannot manage message templates. It must fail fast, never no-op.
var ErrTemplatesNotSupported = errors.New("templates not supported by this provider")

// DeliveryResult is returned from every adapter send call. Expected
// provider-side rejections are reported here, not as Go errors; only
// transport or programming faults propagate as errors.
type DeliveryResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HealthInfo reports a provider's view of a session's connection.
type HealthInfo struct {
	Connected bool   `json:"connected"`
	State     string `json:"state"`
	Detail    string `json:"detail,omitempty"`
}

// MediaPayload describes an outbound media message.
type MediaPayload struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// TemplatePayload describes an outbound template send.
type TemplatePayload struct {
	Name       string            `json:"name"`
	Language   string            `json:"language"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// Adapter is the uniform send/template/media contract. Adapters are
// stateless per call: construction pulls configuration from the session and
// workspace records and holds no mutable cross-call state, so concurrent
// selection across workspaces is safe.
type Adapter interface {
	IsAvailable(ctx context.Context) bool
	SendMessage(ctx context.Context, phoneNumber, body string) (DeliveryResult, error)
	SendMedia(ctx context.Context, phoneNumber string, media MediaPayload) (DeliveryResult, error)
	SendTemplate(ctx context.Context, phoneNumber string, tpl TemplatePayload) (DeliveryResult, error)
	MarkAsRead(ctx context.Context, messageID string) error
	GetMessageStatus(ctx context.Context, messageID string) (string, error)
	GetHealthInfo(ctx context.Context) (HealthInfo, error)
}
