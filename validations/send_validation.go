package validations

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/zentria/wagate/gateway/domain/message"
	pkgError "github.com/zentria/wagate/pkg/error"
	"github.com/zentria/wagate/pkg/phone"
)

func phoneRule(value any) error {
	raw, _ := value.(string)
	if raw == "" {
		return nil // Required rule reports the empty case
	}
	_, err := phone.Normalize(raw)
	return err
}

func ValidateSendText(ctx context.Context, request message.SendTextRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.WorkspaceID, validation.Required),
		validation.Field(&request.Phone, validation.Required, validation.By(phoneRule)),
		validation.Field(&request.Message, validation.Required, validation.Length(1, 65536)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateSendMedia(ctx context.Context, request message.SendMediaRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.WorkspaceID, validation.Required),
		validation.Field(&request.Phone, validation.Required, validation.By(phoneRule)),
		validation.Field(&request.MediaURL, validation.Required),
		validation.Field(&request.MimeType, validation.Required),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateSendTemplate(ctx context.Context, request message.SendTemplateRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.WorkspaceID, validation.Required),
		validation.Field(&request.Phone, validation.Required, validation.By(phoneRule)),
		validation.Field(&request.TemplateName, validation.Required),
		validation.Field(&request.LanguageCode, validation.Required),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateMarkRead(ctx context.Context, request message.MarkReadRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.WorkspaceID, validation.Required),
		validation.Field(&request.MessageID, validation.Required),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
