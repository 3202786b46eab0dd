package usecase

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zentria/wagate/gateway/authstate"
	"github.com/zentria/wagate/gateway/credstore"
	"github.com/zentria/wagate/gateway/domain/envelope"
	domainSession "github.com/zentria/wagate/gateway/domain/session"
	"github.com/zentria/wagate/gateway/domain/webhook"
	"github.com/zentria/wagate/gateway/instance"
	"github.com/zentria/wagate/gateway/notifier"
	"github.com/zentria/wagate/gateway/registry"
	"github.com/zentria/wagate/gateway/repository"
	"github.com/zentria/wagate/pkg/msgworker"
)

type fakeSessionRepo struct {
	sessions map[string]*domainSession.Session
}

func newFakeSessionRepo(sessions ...*domainSession.Session) *fakeSessionRepo {
	r := &fakeSessionRepo{sessions: make(map[string]*domainSession.Session)}
	for _, s := range sessions {
		r.sessions[s.ID] = s
	}
	return r
}

func (r *fakeSessionRepo) Create(ctx context.Context, s *domainSession.Session) error {
	r.sessions[s.ID] = s
	return nil
}

func (r *fakeSessionRepo) GetByID(ctx context.Context, id string) (*domainSession.Session, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, domainSession.ErrSessionNotFound
	}
	return s, nil
}

func (r *fakeSessionRepo) ListByWorkspace(ctx context.Context, workspaceID string) ([]*domainSession.Session, error) {
	var out []*domainSession.Session
	for _, s := range r.sessions {
		if s.WorkspaceID == workspaceID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) ConnectedByWorkspace(ctx context.Context, workspaceID string) ([]*domainSession.Session, error) {
	var out []*domainSession.Session
	for _, s := range r.sessions {
		if s.WorkspaceID == workspaceID && s.Status == domainSession.StatusConnected {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) ListByStatus(ctx context.Context, status domainSession.Status) ([]*domainSession.Session, error) {
	var out []*domainSession.Session
	for _, s := range r.sessions {
		if s.Status == status {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) UpdateStatus(ctx context.Context, id string, to domainSession.Status, meta domainSession.Metadata) error {
	s, ok := r.sessions[id]
	if !ok {
		return domainSession.ErrSessionNotFound
	}
	if !domainSession.CanTransition(s.Status, to) {
		return domainSession.ErrInvalidTransition
	}
	s.Status = to
	s.Metadata = meta
	return nil
}

func (r *fakeSessionRepo) Update(ctx context.Context, s *domainSession.Session) error {
	r.sessions[s.ID] = s
	return nil
}

func (r *fakeSessionRepo) TouchActivity(ctx context.Context, id string) error { return nil }

type webhookFixture struct {
	service  webhook.IWebhookUsecase
	sessions *fakeSessionRepo
	chats    *repository.ChatGormRepository
	registry *registry.Registry
	pool     *msgworker.IngestWorkerPool
}

func newWebhookFixture(t *testing.T, sessions ...*domainSession.Session) *webhookFixture {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "webhook_test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	chats := repository.NewChatGormRepository(db)
	require.NoError(t, chats.Init(context.Background()))

	backup, err := credstore.NewFileBackup(t.TempDir())
	require.NoError(t, err)
	store := credstore.NewValkeyStore(nil, backup, time.Hour)
	authManager := authstate.NewManager(t.TempDir(), store, time.Hour)

	repo := newFakeSessionRepo(sessions...)
	reg := registry.New()
	pool := msgworker.NewIngestWorkerPool(2, 16)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	t.Cleanup(func() {
		pool.Stop()
		cancel()
	})

	service := NewWebhookService(
		repo, chats, reg, authManager,
		instance.NewClient("worker-token", "hmac-secret", time.Second),
		pool,
		notifier.New(nil, "hmac-secret", nil),
		nil,
	)
	return &webhookFixture{
		service:  service,
		sessions: repo,
		chats:    chats,
		registry: reg,
		pool:     pool,
	}
}

func automationSession(id string, status domainSession.Status) *domainSession.Session {
	return &domainSession.Session{
		ID:          id,
		WorkspaceID: "ws-1",
		Provider:    domainSession.ProviderBrowserAutomation,
		Status:      status,
		Instance:    domainSession.InstanceRef{URL: "http://instance-1:3000"},
	}
}

func eventWith(t *testing.T, typ webhook.EventType, payload any) webhook.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return webhook.Event{
		Type:        typ,
		WorkspaceID: "ws-1",
		SessionID:   "sess-1",
		Payload:     raw,
	}
}

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestConnectedStatusRegistersLiveClient(t *testing.T) {
	f := newWebhookFixture(t, automationSession("sess-1", domainSession.StatusAuthenticated))

	event := eventWith(t, webhook.EventStatus, webhook.StatusPayload{
		State:       "connected",
		PhoneNumber: "5511999990000",
	})
	require.NoError(t, f.service.HandleEvent(context.Background(), event))

	client, ok := f.registry.Get("sess-1")
	require.True(t, ok, "a connected automation session must be registered on this worker")
	assert.IsType(t, &instance.LiveClient{}, client)

	sess, err := f.sessions.GetByID(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, domainSession.StatusConnected, sess.Status)
	assert.Equal(t, "5511999990000", sess.PhoneNumber)
}

func TestDisconnectedStatusRemovesLiveClient(t *testing.T) {
	f := newWebhookFixture(t, automationSession("sess-1", domainSession.StatusAuthenticated))
	ctx := context.Background()

	require.NoError(t, f.service.HandleEvent(ctx, eventWith(t, webhook.EventStatus,
		webhook.StatusPayload{State: "connected"})))
	_, ok := f.registry.Get("sess-1")
	require.True(t, ok)

	require.NoError(t, f.service.HandleEvent(ctx, eventWith(t, webhook.EventStatus,
		webhook.StatusPayload{State: "disconnected", Reason: "network"})))
	_, ok = f.registry.Get("sess-1")
	assert.False(t, ok, "disconnection must evict the live client")
}

func TestBroadcastMessageIsSkippedEntirely(t *testing.T) {
	f := newWebhookFixture(t, automationSession("sess-1", domainSession.StatusConnected))
	ctx := context.Background()

	event := eventWith(t, webhook.EventMessage, envelope.InboundMessage{
		ExternalID:  "ext-1",
		FromPhone:   "status@broadcast",
		Body:        "status update",
		IsBroadcast: true,
	})
	require.NoError(t, f.service.HandleEvent(ctx, event))

	count, err := f.chats.CountMessages(ctx, "ws-1")
	require.NoError(t, err)
	assert.Zero(t, count, "broadcast traffic must never reach storage")
}

func TestInboundMessageIsStored(t *testing.T) {
	f := newWebhookFixture(t, automationSession("sess-1", domainSession.StatusConnected))
	ctx := context.Background()

	event := eventWith(t, webhook.EventMessage, envelope.InboundMessage{
		ExternalID: "ext-1",
		FromPhone:  "5511999990000",
		FromName:   "Alice",
		Body:       "hello",
	})
	require.NoError(t, f.service.HandleEvent(ctx, event))

	count, err := f.chats.CountMessages(ctx, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestChatBatchIsAppliedAsynchronously(t *testing.T) {
	f := newWebhookFixture(t, automationSession("sess-1", domainSession.StatusConnected))
	ctx := context.Background()

	batch := webhook.ChatBatchPayload{Chats: []envelope.ChatEnvelope{
		{RemoteID: "chat-1", Type: envelope.ChatPrivate,
			Contact: &envelope.Contact{PhoneNumber: "5511999990000", Name: "Alice"}},
		{RemoteID: "chat-2", Type: envelope.ChatPrivate,
			Contact: &envelope.Contact{PhoneNumber: "5511999990001", Name: "Bob"}},
		{RemoteID: "group-1@g.us", Type: envelope.ChatGroup, Group: &envelope.GroupInfo{Name: "Team"}},
	}}
	require.NoError(t, f.service.HandleEvent(ctx, eventWith(t, webhook.EventChatBatch, batch)))

	waitForCondition(t, func() bool {
		count, err := f.chats.CountChats(ctx, "ws-1", "sess-1")
		return err == nil && count == 3
	})

	// Envelope identity comes from the event, not from the worker payload.
	stored, err := f.chats.GetChat(ctx, "ws-1", "sess-1", "chat-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "ws-1", stored.WorkspaceID)
	assert.Equal(t, "sess-1", stored.SessionID)
}

func TestEmptyChatBatchIsNoOp(t *testing.T) {
	f := newWebhookFixture(t, automationSession("sess-1", domainSession.StatusConnected))
	ctx := context.Background()

	require.NoError(t, f.service.HandleEvent(ctx, eventWith(t, webhook.EventChatBatch,
		webhook.ChatBatchPayload{})))

	count, err := f.chats.CountChats(ctx, "ws-1", "sess-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStaleStatusEventIgnored(t *testing.T) {
	f := newWebhookFixture(t, automationSession("sess-1", domainSession.StatusConnected))

	// A late "qr" event after the session already connected must not move
	// the lifecycle backwards.
	err := f.service.HandleEvent(context.Background(), eventWith(t, webhook.EventStatus,
		webhook.StatusPayload{State: "qr"}))
	require.NoError(t, err)

	sess, err := f.sessions.GetByID(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, domainSession.StatusConnected, sess.Status)
}
