package validations

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/zentria/wagate/gateway/domain/webhook"
	pkgError "github.com/zentria/wagate/pkg/error"
)

func ValidateWebhookEvent(ctx context.Context, event webhook.Event) error {
	err := validation.ValidateStructWithContext(ctx, &event,
		validation.Field(&event.Type, validation.Required, validation.In(
			webhook.EventMessage, webhook.EventQRCode, webhook.EventStatus,
			webhook.EventChatUpsert, webhook.EventChatBatch,
		)),
		validation.Field(&event.WorkspaceID, validation.Required),
		validation.Field(&event.SessionID, validation.Required),
		validation.Field(&event.Payload, validation.Required),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
