package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/zentria/wagate/gateway/authstate"
	"github.com/zentria/wagate/gateway/domain/envelope"
	domainSession "github.com/zentria/wagate/gateway/domain/session"
	"github.com/zentria/wagate/gateway/domain/webhook"
	"github.com/zentria/wagate/gateway/instance"
	"github.com/zentria/wagate/gateway/notifier"
	"github.com/zentria/wagate/gateway/registry"
	"github.com/zentria/wagate/gateway/repository"
	pkgError "github.com/zentria/wagate/pkg/error"
	"github.com/zentria/wagate/pkg/msgworker"
	"github.com/zentria/wagate/validations"
)

// Broadcaster pushes gateway events to connected dashboard clients.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

type serviceWebhook struct {
	sessions    domainSession.Repository
	chats       *repository.ChatGormRepository
	registry    *registry.Registry
	authManager *authstate.Manager
	instances   *instance.Client
	pool        *msgworker.IngestWorkerPool
	notifier    *notifier.Notifier
	broadcaster Broadcaster
}

func NewWebhookService(
	sessions domainSession.Repository,
	chats *repository.ChatGormRepository,
	reg *registry.Registry,
	authManager *authstate.Manager,
	instances *instance.Client,
	pool *msgworker.IngestWorkerPool,
	n *notifier.Notifier,
	broadcaster Broadcaster,
) webhook.IWebhookUsecase {
	return &serviceWebhook{
		sessions:    sessions,
		chats:       chats,
		registry:    reg,
		authManager: authManager,
		instances:   instances,
		pool:        pool,
		notifier:    n,
		broadcaster: broadcaster,
	}
}

func (s *serviceWebhook) HandleEvent(ctx context.Context, event webhook.Event) error {
	if err := validations.ValidateWebhookEvent(ctx, event); err != nil {
		return err
	}

	switch event.Type {
	case webhook.EventMessage:
		return s.handleMessage(ctx, event)
	case webhook.EventQRCode:
		return s.handleQRCode(ctx, event)
	case webhook.EventStatus:
		return s.handleStatus(ctx, event)
	case webhook.EventChatUpsert:
		return s.handleChatUpsert(ctx, event)
	case webhook.EventChatBatch:
		return s.handleChatBatch(ctx, event)
	default:
		return fmt.Errorf("unhandled event type: %s", event.Type)
	}
}

func (s *serviceWebhook) handleMessage(ctx context.Context, event webhook.Event) error {
	var msg envelope.InboundMessage
	if err := json.Unmarshal(event.Payload, &msg); err != nil {
		return fmt.Errorf("malformed message payload: %w", err)
	}
	msg.WorkspaceID = event.WorkspaceID
	msg.SessionID = event.SessionID

	// Broadcast-only system messages carry no conversational state; they are
	// acknowledged and skipped, never stored.
	if msg.IsBroadcast {
		logrus.WithField("external_id", msg.ExternalID).Debug("[WEBHOOK] Broadcast message skipped")
		return nil
	}

	contactID, err := s.chats.ResolveContact(ctx, msg.WorkspaceID, msg.FromPhone, msg.FromName)
	if err != nil {
		return fmt.Errorf("contact resolution failed: %w", err)
	}

	if _, err := s.chats.StoreInboundMessage(ctx, msg, contactID); err != nil {
		if errors.Is(err, repository.ErrDuplicateMessage) {
			logrus.WithField("external_id", msg.ExternalID).Debug("[WEBHOOK] Duplicate message suppressed")
			return nil
		}
		return err
	}

	// Inbound traffic is what keeps the inactivity monitor satisfied.
	s.registry.TouchActivity(event.SessionID)
	if err := s.sessions.TouchActivity(ctx, event.SessionID); err != nil {
		logrus.WithError(err).WithField("session_id", event.SessionID).Warn("[WEBHOOK] Failed to persist activity")
	}

	if s.broadcaster != nil {
		s.broadcaster.Broadcast("message.received", msg)
	}
	if err := s.notifier.Notify(ctx, "message.received", msg); err != nil {
		logrus.WithError(err).WithField("session_id", event.SessionID).Error("[WEBHOOK] Backend delivery failed")
	}
	return nil
}

func (s *serviceWebhook) handleQRCode(ctx context.Context, event webhook.Event) error {
	var payload webhook.QRPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("malformed qr payload: %w", err)
	}

	sess, err := s.sessions.GetByID(ctx, event.SessionID)
	if err != nil {
		return err
	}

	meta := sess.Metadata
	meta.QRCode = payload.Code
	if sess.Status == domainSession.StatusInitializing {
		if err := s.sessions.UpdateStatus(ctx, sess.ID, domainSession.StatusQRPending, meta); err != nil {
			return err
		}
	} else {
		// Re-issued code during an open pairing window; refresh metadata only.
		sess.Metadata = meta
		if err := s.sessions.Update(ctx, sess); err != nil {
			return err
		}
	}

	if s.broadcaster != nil {
		s.broadcaster.Broadcast("session.qr", map[string]any{
			"session_id":   sess.ID,
			"workspace_id": sess.WorkspaceID,
			"code":         payload.Code,
			"expires_in":   payload.ExpiresIn,
		})
	}
	return nil
}

func (s *serviceWebhook) handleStatus(ctx context.Context, event webhook.Event) error {
	var payload webhook.StatusPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("malformed status payload: %w", err)
	}

	sess, err := s.sessions.GetByID(ctx, event.SessionID)
	if err != nil {
		return err
	}

	target, err := statusFromWorkerState(payload.State)
	if err != nil {
		return err
	}

	meta := sess.Metadata
	switch target {
	case domainSession.StatusAuthenticated:
		meta.QRCode = ""
		meta.LastError = ""
	case domainSession.StatusConnected:
		meta.QRCode = ""
		meta.LastError = ""
	case domainSession.StatusDisconnected, domainSession.StatusFailed:
		meta.DisconnectReason = payload.Reason
	}

	if err := s.sessions.UpdateStatus(ctx, sess.ID, target, meta); err != nil {
		if errors.Is(err, domainSession.ErrInvalidTransition) {
			logrus.WithFields(logrus.Fields{
				"session_id": sess.ID,
				"from":       sess.Status,
				"to":         target,
			}).Warn("[WEBHOOK] Stale status event ignored")
			return nil
		}
		return err
	}

	strategy := s.authManager.For(sess.ID)
	switch target {
	case domainSession.StatusAuthenticated:
		if err := strategy.AfterAuth(ctx); err != nil {
			logrus.WithError(err).WithField("session_id", sess.ID).Error("[WEBHOOK] Post-auth credential backup failed")
		}
	case domainSession.StatusConnected:
		if payload.PhoneNumber != "" && sess.PhoneNumber != payload.PhoneNumber {
			sess.PhoneNumber = payload.PhoneNumber
			sess.Status = target
			if err := s.sessions.Update(ctx, sess); err != nil {
				logrus.WithError(err).WithField("session_id", sess.ID).Warn("[WEBHOOK] Failed to record phone number")
			}
		}
		if err := strategy.AfterConnect(ctx); err != nil {
			logrus.WithError(err).WithField("session_id", sess.ID).Error("[WEBHOOK] Failed to start credential backup timer")
		}
		// The connected worker session becomes a live client this process
		// owns; the sync handler and health monitor depend on this entry.
		if sess.Provider == domainSession.ProviderBrowserAutomation && sess.Instance.URL != "" {
			s.registry.Put(sess.ID, s.instances.LiveClient(sess.Instance.URL, sess.ID, sess.WorkspaceID))
		}
	case domainSession.StatusDisconnected, domainSession.StatusFailed:
		if err := strategy.Disconnect(ctx); err != nil {
			logrus.WithError(err).WithField("session_id", sess.ID).Warn("[WEBHOOK] Credential backup timer teardown failed")
		}
		s.registry.Remove(sess.ID)
	}

	if s.broadcaster != nil {
		s.broadcaster.Broadcast("session.status", map[string]any{
			"session_id":   sess.ID,
			"workspace_id": sess.WorkspaceID,
			"status":       target,
			"reason":       payload.Reason,
		})
	}
	if err := s.notifier.Notify(ctx, "session.status", map[string]any{
		"session_id":   sess.ID,
		"workspace_id": sess.WorkspaceID,
		"status":       target,
		"reason":       payload.Reason,
	}); err != nil {
		logrus.WithError(err).WithField("session_id", sess.ID).Error("[WEBHOOK] Backend delivery failed")
	}
	return nil
}

// handleChatBatch queues a sync batch on the ingest pool and returns as
// soon as the job is accepted; the per-batch transaction in the chat
// repository keeps re-delivery idempotent.
func (s *serviceWebhook) handleChatBatch(ctx context.Context, event webhook.Event) error {
	var payload webhook.ChatBatchPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("malformed chat batch payload: %w", err)
	}
	if len(payload.Chats) == 0 {
		return nil
	}

	envs := make([]envelope.ChatEnvelope, len(payload.Chats))
	for i, env := range payload.Chats {
		env.WorkspaceID = event.WorkspaceID
		env.SessionID = event.SessionID
		envs[i] = env
	}

	sessionID := event.SessionID
	accepted := s.pool.TryDispatch(msgworker.IngestJob{
		SessionID: sessionID,
		ChatID:    "sync-batch",
		Handler: func(jobCtx context.Context) error {
			if err := s.chats.UpsertChatBatch(jobCtx, envs); err != nil {
				return fmt.Errorf("sync batch for %s failed: %w", sessionID, err)
			}
			logrus.WithFields(logrus.Fields{
				"session_id": sessionID,
				"chats":      len(envs),
			}).Debug("[WEBHOOK] Sync batch applied")
			return nil
		},
	})
	if !accepted {
		return pkgError.WebhookError("sync batch queue is full")
	}
	return nil
}

func (s *serviceWebhook) handleChatUpsert(ctx context.Context, event webhook.Event) error {
	var env envelope.ChatEnvelope
	if err := json.Unmarshal(event.Payload, &env); err != nil {
		return fmt.Errorf("malformed chat payload: %w", err)
	}
	env.WorkspaceID = event.WorkspaceID
	env.SessionID = event.SessionID
	return s.chats.UpsertChat(ctx, env)
}

func statusFromWorkerState(state string) (domainSession.Status, error) {
	switch state {
	case "qr":
		return domainSession.StatusQRPending, nil
	case "authenticated":
		return domainSession.StatusAuthenticated, nil
	case "connected":
		return domainSession.StatusConnected, nil
	case "disconnected":
		return domainSession.StatusDisconnected, nil
	case "failed":
		return domainSession.StatusFailed, nil
	default:
		return "", fmt.Errorf("unknown worker state: %q", state)
	}
}
