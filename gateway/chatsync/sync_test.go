package chatsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zentria/wagate/gateway/domain/envelope"
	"github.com/zentria/wagate/gateway/domain/session"
	"github.com/zentria/wagate/gateway/registry"
)

type fakeAutomationClient struct {
	chats     []registry.RawChat
	stateErrs map[string]error
}

func (c *fakeAutomationClient) GetChats(ctx context.Context) ([]registry.RawChat, error) {
	return c.chats, nil
}

func (c *fakeAutomationClient) GetChatState(ctx context.Context, remoteID string) (registry.RawChatState, error) {
	if err, ok := c.stateErrs[remoteID]; ok {
		return registry.RawChatState{}, err
	}
	return registry.RawChatState{
		Contact: &envelope.Contact{PhoneNumber: "5215512345678", Name: "Contact " + remoteID},
	}, nil
}

func (c *fakeAutomationClient) SendMessage(ctx context.Context, phoneNumber, body string) (string, error) {
	return "", errors.New("not implemented")
}

func (c *fakeAutomationClient) Destroy(ctx context.Context) error { return nil }

type recordingDeliverer struct {
	mu       sync.Mutex
	batches  [][]envelope.ChatEnvelope
	failAll  bool
	attempts int
}

func (d *recordingDeliverer) DeliverBatch(ctx context.Context, workspaceID, sessionID string, batch []envelope.ChatEnvelope) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.failAll {
		return errors.New("backend unavailable")
	}
	d.batches = append(d.batches, batch)
	return nil
}

func testSession() *session.Session {
	return &session.Session{
		ID:          "sess-1",
		WorkspaceID: "ws-1",
		Provider:    session.ProviderBrowserAutomation,
		Status:      session.StatusConnected,
	}
}

func makeChats(n int, base time.Time) []registry.RawChat {
	chats := make([]registry.RawChat, 0, n)
	for i := 0; i < n; i++ {
		chats = append(chats, registry.RawChat{
			RemoteID:  fmt.Sprintf("chat-%03d", i),
			Timestamp: base.Add(-time.Duration(i) * time.Hour),
		})
	}
	return chats
}

func newTestHandler(client registry.AutomationClient, deliver BatchDeliverer) (*Handler, *session.Session) {
	reg := registry.New()
	sess := testSession()
	reg.Put(sess.ID, client)
	return NewHandler(reg, deliver), sess
}

func TestSyncAllChatsBatchesAndDelivers(t *testing.T) {
	client := &fakeAutomationClient{chats: makeChats(120, time.Now())}
	deliverer := &recordingDeliverer{}
	handler, sess := newTestHandler(client, deliverer)

	summary, err := handler.SyncAllChats(context.Background(), sess, Options{
		BatchSize:   50,
		Concurrency: 3,
		RetryBase:   time.Millisecond,
	})
	require.NoError(t, err)

	assert.Equal(t, 120, summary.TotalDiscovered)
	assert.Equal(t, 120, summary.Synced)
	assert.Equal(t, 3, summary.BatchesOK, "120 chats in batches of 50 gives 50+50+20")
	assert.Equal(t, 0, summary.BatchesFailed)

	total := 0
	for _, b := range deliverer.batches {
		total += len(b)
	}
	assert.Equal(t, 120, total)
}

func TestSyncAllChatsCapsMostRecent(t *testing.T) {
	now := time.Now()
	client := &fakeAutomationClient{chats: makeChats(30, now)}
	deliverer := &recordingDeliverer{}
	handler, sess := newTestHandler(client, deliverer)

	summary, err := handler.SyncAllChats(context.Background(), sess, Options{
		BatchSize:   50,
		Concurrency: 1,
		MaxChats:    10,
		RetryBase:   time.Millisecond,
	})
	require.NoError(t, err)

	assert.Equal(t, 30, summary.TotalDiscovered)
	assert.Equal(t, 10, summary.Synced)

	// The cap keeps the most recent chats, newest first.
	require.Len(t, deliverer.batches, 1)
	assert.Equal(t, "chat-000", deliverer.batches[0][0].RemoteID)
	assert.Equal(t, "chat-009", deliverer.batches[0][9].RemoteID)
}

func TestSyncAllChatsWindowFilter(t *testing.T) {
	now := time.Now()
	chats := []registry.RawChat{
		{RemoteID: "recent", Timestamp: now.Add(-24 * time.Hour)},
		{RemoteID: "old", Timestamp: now.Add(-40 * 24 * time.Hour)},
	}
	client := &fakeAutomationClient{chats: chats}
	deliverer := &recordingDeliverer{}
	handler, sess := newTestHandler(client, deliverer)

	summary, err := handler.SyncAllChats(context.Background(), sess, Options{
		WindowDays: 30,
		RetryBase:  time.Millisecond,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TotalDiscovered)
	assert.Equal(t, 1, summary.Synced)
	require.Len(t, deliverer.batches, 1)
	assert.Equal(t, "recent", deliverer.batches[0][0].RemoteID)
}

func TestSyncAllChatsDropsFailedTransforms(t *testing.T) {
	now := time.Now()
	client := &fakeAutomationClient{
		chats: []registry.RawChat{
			{RemoteID: "good", Timestamp: now},
			{RemoteID: "bad", Timestamp: now.Add(-time.Hour)},
		},
		stateErrs: map[string]error{"bad": errors.New("state fetch failed")},
	}
	deliverer := &recordingDeliverer{}
	handler, sess := newTestHandler(client, deliverer)

	summary, err := handler.SyncAllChats(context.Background(), sess, Options{RetryBase: time.Millisecond})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TotalDiscovered)
	assert.Equal(t, 1, summary.Synced, "failed transform drops the chat, not the run")
	assert.Equal(t, 0, summary.BatchesFailed)
}

func TestSyncAllChatsExhaustedRetriesCountAsFailed(t *testing.T) {
	client := &fakeAutomationClient{chats: makeChats(10, time.Now())}
	deliverer := &recordingDeliverer{failAll: true}
	handler, sess := newTestHandler(client, deliverer)

	summary, err := handler.SyncAllChats(context.Background(), sess, Options{
		BatchSize:     5,
		RetryAttempts: 3,
		RetryBase:     time.Millisecond,
	})
	require.NoError(t, err, "batch failures are summary data, not run errors")

	assert.Equal(t, 0, summary.BatchesOK)
	assert.Equal(t, 2, summary.BatchesFailed)
	assert.Equal(t, 6, deliverer.attempts, "each of 2 batches retried 3 times")
}

func TestSyncAllChatsNoLiveClient(t *testing.T) {
	handler := NewHandler(registry.New(), &recordingDeliverer{})

	_, err := handler.SyncAllChats(context.Background(), testSession(), Options{})
	assert.Error(t, err)
}

type flakyDeliverer struct {
	mu        sync.Mutex
	failuresN int
	attempts  int
}

func (d *flakyDeliverer) DeliverBatch(ctx context.Context, workspaceID, sessionID string, batch []envelope.ChatEnvelope) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.attempts <= d.failuresN {
		return errors.New("transient backend error")
	}
	return nil
}

func TestSyncAllChatsRetriesTransientFailures(t *testing.T) {
	client := &fakeAutomationClient{chats: makeChats(5, time.Now())}
	deliverer := &flakyDeliverer{failuresN: 2}
	handler, sess := newTestHandler(client, deliverer)

	summary, err := handler.SyncAllChats(context.Background(), sess, Options{
		BatchSize:     5,
		RetryAttempts: 3,
		RetryBase:     time.Millisecond,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.BatchesOK)
	assert.Equal(t, 0, summary.BatchesFailed)
	assert.Equal(t, 3, deliverer.attempts, "two transient failures then success")
}
