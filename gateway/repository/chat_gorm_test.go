package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zentria/wagate/gateway/domain/envelope"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestChatRepo(t *testing.T) *ChatGormRepository {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "chats_test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	repo := NewChatGormRepository(db)
	require.NoError(t, repo.Init(context.Background()))
	return repo
}

func privateChat(remoteID, lastBody string) envelope.ChatEnvelope {
	return envelope.ChatEnvelope{
		WorkspaceID: "ws-1",
		SessionID:   "sess-1",
		RemoteID:    remoteID,
		Type:        envelope.ChatPrivate,
		Contact: &envelope.Contact{
			PhoneNumber: "5511999990000",
			Name:        "Alice",
		},
		LastMessageBody: lastBody,
		LastMessageType: "text",
		LastMessageAt:   time.Now().UTC().Truncate(time.Second),
		UnreadCount:     2,
	}
}

func TestUpsertChatIsIdempotentLastWriteWins(t *testing.T) {
	repo := newTestChatRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertChat(ctx, privateChat("chat-1", "first delivery")))
	require.NoError(t, repo.UpsertChat(ctx, privateChat("chat-1", "second delivery")))

	count, err := repo.CountChats(ctx, "ws-1", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	stored, err := repo.GetChat(ctx, "ws-1", "sess-1", "chat-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "second delivery", stored.LastMessageBody)
	require.NotNil(t, stored.Contact)
	assert.Equal(t, "Alice", stored.Contact.Name)
}

func TestUpsertChatScopesIdentityPerSession(t *testing.T) {
	repo := newTestChatRepo(t)
	ctx := context.Background()

	chatA := privateChat("chat-1", "from session A")
	chatB := privateChat("chat-1", "from session B")
	chatB.SessionID = "sess-2"

	require.NoError(t, repo.UpsertChat(ctx, chatA))
	require.NoError(t, repo.UpsertChat(ctx, chatB))

	countA, err := repo.CountChats(ctx, "ws-1", "sess-1")
	require.NoError(t, err)
	countB, err := repo.CountChats(ctx, "ws-1", "sess-2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), countA)
	assert.Equal(t, int64(1), countB)
}

func TestUpsertChatBatchRedeliveryDoesNotDuplicate(t *testing.T) {
	repo := newTestChatRepo(t)
	ctx := context.Background()

	batch := []envelope.ChatEnvelope{
		privateChat("chat-1", "one"),
		privateChat("chat-2", "two"),
		{
			WorkspaceID: "ws-1",
			SessionID:   "sess-1",
			RemoteID:    "group-1",
			Type:        envelope.ChatGroup,
			Group: &envelope.GroupInfo{
				Name: "Team",
				Participants: []envelope.Participant{
					{PhoneNumber: "5511999990000", IsAdmin: true},
				},
			},
		},
	}

	require.NoError(t, repo.UpsertChatBatch(ctx, batch))
	require.NoError(t, repo.UpsertChatBatch(ctx, batch))

	count, err := repo.CountChats(ctx, "ws-1", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	stored, err := repo.GetChat(ctx, "ws-1", "sess-1", "group-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.Group)
	assert.Equal(t, "Team", stored.Group.Name)
	assert.Len(t, stored.Group.Participants, 1)
}

func TestGetChatMissingReturnsNil(t *testing.T) {
	repo := newTestChatRepo(t)

	stored, err := repo.GetChat(context.Background(), "ws-1", "sess-1", "nope")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestResolveContactFindsOrCreates(t *testing.T) {
	repo := newTestChatRepo(t)
	ctx := context.Background()

	id1, err := repo.ResolveContact(ctx, "ws-1", "5511999990000", "")
	require.NoError(t, err)
	require.NotEmpty(t, id1)

	// Same phone resolves to the same contact and backfills the name.
	id2, err := repo.ResolveContact(ctx, "ws-1", "5511999990000", "Alice")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	// Same phone in another workspace is a different contact.
	id3, err := repo.ResolveContact(ctx, "ws-2", "5511999990000", "Alice")
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}

func TestStoreInboundMessageDeduplicatesByExternalID(t *testing.T) {
	repo := newTestChatRepo(t)
	ctx := context.Background()

	contactID, err := repo.ResolveContact(ctx, "ws-1", "5511999990000", "Alice")
	require.NoError(t, err)

	msg := envelope.InboundMessage{
		ExternalID:   "wamid.abc123",
		WorkspaceID:  "ws-1",
		SessionID:    "sess-1",
		ChatRemoteID: "chat-1",
		FromPhone:    "5511999990000",
		Body:         "hello",
		MessageType:  "text",
		Timestamp:    time.Now().UTC(),
	}

	id, err := repo.StoreInboundMessage(ctx, msg, contactID)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// Re-delivery with the same external ID is refused and stores nothing.
	_, err = repo.StoreInboundMessage(ctx, msg, contactID)
	assert.ErrorIs(t, err, ErrDuplicateMessage)

	count, err := repo.CountMessages(ctx, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
