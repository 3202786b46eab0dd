package usecase

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/zentria/wagate/gateway/chatsync"
	"github.com/zentria/wagate/gateway/domain/envelope"
	domainSession "github.com/zentria/wagate/gateway/domain/session"
	"github.com/zentria/wagate/gateway/notifier"
	"github.com/zentria/wagate/gateway/repository"
	"github.com/zentria/wagate/pkg/msgworker"
)

// chatBatchDeliverer persists each batch locally, then forwards it to the
// tenant backend. Local persistence failing fails the batch so the retry
// budget covers both sinks.
type chatBatchDeliverer struct {
	chats    *repository.ChatGormRepository
	notifier *notifier.Notifier
}

func NewChatBatchDeliverer(chats *repository.ChatGormRepository, n *notifier.Notifier) chatsync.BatchDeliverer {
	return &chatBatchDeliverer{chats: chats, notifier: n}
}

func (d *chatBatchDeliverer) DeliverBatch(ctx context.Context, workspaceID, sessionID string, batch []envelope.ChatEnvelope) error {
	if err := d.chats.UpsertChatBatch(ctx, batch); err != nil {
		return fmt.Errorf("batch persistence failed: %w", err)
	}
	return d.notifier.Notify(ctx, "chats.batch", map[string]any{
		"workspace_id": workspaceID,
		"session_id":   sessionID,
		"chats":        batch,
	})
}

// IChatSyncUsecase triggers and reports chat synchronization runs.
type IChatSyncUsecase interface {
	TriggerSync(ctx context.Context, sessionID string) error
	SyncNow(ctx context.Context, sessionID string) (chatsync.Summary, error)
}

type serviceChatSync struct {
	handler  *chatsync.Handler
	sessions domainSession.Repository
	pool     *msgworker.IngestWorkerPool
	opts     chatsync.Options
}

func NewChatSyncService(
	handler *chatsync.Handler,
	sessions domainSession.Repository,
	pool *msgworker.IngestWorkerPool,
	opts chatsync.Options,
) IChatSyncUsecase {
	return &serviceChatSync{
		handler:  handler,
		sessions: sessions,
		pool:     pool,
		opts:     opts,
	}
}

func (s *serviceChatSync) resolve(ctx context.Context, sessionID string) (*domainSession.Session, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Provider != domainSession.ProviderBrowserAutomation {
		return nil, fmt.Errorf("chat sync requires a browser automation session")
	}
	if sess.Status != domainSession.StatusConnected {
		return nil, domainSession.ErrSessionNotActive
	}
	return sess, nil
}

// TriggerSync queues a sync run on the ingest pool and returns immediately.
// The pool shards by session, so two triggers for the same session execute
// in order instead of racing.
func (s *serviceChatSync) TriggerSync(ctx context.Context, sessionID string) error {
	sess, err := s.resolve(ctx, sessionID)
	if err != nil {
		return err
	}

	accepted := s.pool.TryDispatch(msgworker.IngestJob{
		SessionID: sess.ID,
		ChatID:    "chat-sync",
		Handler: func(ctx context.Context) error {
			summary, err := s.handler.SyncAllChats(ctx, sess, s.opts)
			if err != nil {
				return err
			}
			if summary.BatchesFailed > 0 {
				logrus.WithFields(logrus.Fields{
					"session_id":     sess.ID,
					"batches_failed": summary.BatchesFailed,
				}).Warn("[CHATSYNC] Queued sync finished with failed batches")
			}
			return nil
		},
	})
	if !accepted {
		return fmt.Errorf("sync queue is full, try again later")
	}
	return nil
}

// SyncNow runs the sync inline and returns the full summary.
func (s *serviceChatSync) SyncNow(ctx context.Context, sessionID string) (chatsync.Summary, error) {
	sess, err := s.resolve(ctx, sessionID)
	if err != nil {
		return chatsync.Summary{}, err
	}
	return s.handler.SyncAllChats(ctx, sess, s.opts)
}
