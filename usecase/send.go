package usecase

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/zentria/wagate/gateway/domain/message"
	domainProvider "github.com/zentria/wagate/gateway/domain/provider"
	"github.com/zentria/wagate/gateway/domain/session"
	"github.com/zentria/wagate/gateway/provider"
	"github.com/zentria/wagate/validations"
)

type serviceSend struct {
	selector *provider.Selector
	sessions session.Repository
}

func NewSendService(selector *provider.Selector, sessions session.Repository) message.ISendUsecase {
	return &serviceSend{
		selector: selector,
		sessions: sessions,
	}
}

// dispatch runs one selection-and-send cycle with a single failover retry.
// A provider rejection (DeliveryResult with Success=false) is a final answer
// and never triggers failover; only infrastructure failures do.
func (s *serviceSend) dispatch(
	ctx context.Context,
	workspaceID, sessionID string,
	send func(ctx context.Context, adapter domainProvider.Adapter) (domainProvider.DeliveryResult, error),
) (message.SendResponse, error) {
	adapter, sess, err := s.selector.Select(ctx, workspaceID, sessionID)
	if err != nil {
		return message.SendResponse{}, err
	}

	result, err := send(ctx, adapter)
	if err == nil {
		return toSendResponse(result, sess, false), nil
	}
	if errors.Is(err, domainProvider.ErrTemplatesNotSupported) {
		return message.SendResponse{}, err
	}
	if sessionID != "" {
		// Caller pinned the session; failing over would violate the pin.
		return message.SendResponse{}, err
	}

	logrus.WithError(err).WithFields(logrus.Fields{
		"workspace_id": workspaceID,
		"session_id":   sess.ID,
	}).Warn("[SEND] Delivery failed, attempting failover")

	fallbackAdapter, fallbackSess, foErr := s.selector.Failover(ctx, workspaceID, sess.ID)
	if foErr != nil {
		if errors.Is(foErr, session.ErrNoBackupProvider) {
			return message.SendResponse{}, err
		}
		return message.SendResponse{}, foErr
	}

	result, err = send(ctx, fallbackAdapter)
	if err != nil {
		return message.SendResponse{}, err
	}
	return toSendResponse(result, fallbackSess, true), nil
}

func toSendResponse(result domainProvider.DeliveryResult, sess *session.Session, fellBack bool) message.SendResponse {
	return message.SendResponse{
		MessageID: result.MessageID,
		SessionID: sess.ID,
		Provider:  string(sess.Provider),
		FellBack:  fellBack,
		Rejected:  !result.Success,
		Error:     result.Error,
	}
}

func (s *serviceSend) SendText(ctx context.Context, request message.SendTextRequest) (message.SendResponse, error) {
	if err := validations.ValidateSendText(ctx, request); err != nil {
		return message.SendResponse{}, err
	}
	return s.dispatch(ctx, request.WorkspaceID, request.SessionID,
		func(ctx context.Context, adapter domainProvider.Adapter) (domainProvider.DeliveryResult, error) {
			return adapter.SendMessage(ctx, request.Phone, request.Message)
		})
}

func (s *serviceSend) SendMedia(ctx context.Context, request message.SendMediaRequest) (message.SendResponse, error) {
	if err := validations.ValidateSendMedia(ctx, request); err != nil {
		return message.SendResponse{}, err
	}
	media := domainProvider.MediaPayload{
		URL:      request.MediaURL,
		MimeType: request.MimeType,
		Caption:  request.Caption,
		Filename: request.Filename,
	}
	return s.dispatch(ctx, request.WorkspaceID, request.SessionID,
		func(ctx context.Context, adapter domainProvider.Adapter) (domainProvider.DeliveryResult, error) {
			return adapter.SendMedia(ctx, request.Phone, media)
		})
}

func (s *serviceSend) SendTemplate(ctx context.Context, request message.SendTemplateRequest) (message.SendResponse, error) {
	if err := validations.ValidateSendTemplate(ctx, request); err != nil {
		return message.SendResponse{}, err
	}
	tpl := domainProvider.TemplatePayload{
		Name:       request.TemplateName,
		Language:   request.LanguageCode,
		Parameters: request.Parameters,
	}
	return s.dispatch(ctx, request.WorkspaceID, request.SessionID,
		func(ctx context.Context, adapter domainProvider.Adapter) (domainProvider.DeliveryResult, error) {
			return adapter.SendTemplate(ctx, request.Phone, tpl)
		})
}

func (s *serviceSend) MarkAsRead(ctx context.Context, request message.MarkReadRequest) error {
	if err := validations.ValidateMarkRead(ctx, request); err != nil {
		return err
	}
	adapter, _, err := s.selector.Select(ctx, request.WorkspaceID, request.SessionID)
	if err != nil {
		return err
	}
	return adapter.MarkAsRead(ctx, request.MessageID)
}

func (s *serviceSend) MessageStatus(ctx context.Context, workspaceID, sessionID, messageID string) (string, error) {
	adapter, _, err := s.selector.Select(ctx, workspaceID, sessionID)
	if err != nil {
		return "", err
	}
	return adapter.GetMessageStatus(ctx, messageID)
}
