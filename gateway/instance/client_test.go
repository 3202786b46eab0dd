package instance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient() *Client {
	return NewClient("worker-token", "hmac-secret", time.Second)
}

func TestStartSessionRejectsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	err := newTestClient().StartSession(context.Background(), srv.URL, "sess-1", "ws-1")
	require.Error(t, err, "an instance that cannot find the session cannot start it")
	assert.Contains(t, err.Error(), "404")
}

func TestStopSessionTreatsNotFoundAsStopped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	err := newTestClient().StopSession(context.Background(), srv.URL, "sess-1")
	assert.NoError(t, err, "a missing session is already stopped")
}

func TestStartSessionSendsSignedRequest(t *testing.T) {
	var got *http.Request
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	require.NoError(t, newTestClient().StartSession(context.Background(), srv.URL, "sess-1", "ws-1"))

	require.NotNil(t, got)
	assert.Equal(t, "/sessions/sess-1/start", got.URL.Path)
	assert.Equal(t, "worker-token", got.Header.Get("X-API-Token"))
	assert.NotEmpty(t, got.Header.Get("X-HMAC-Signature"))
	assert.NotEmpty(t, got.Header.Get("X-Timestamp"))
	assert.Equal(t, "sess-1", body["session_id"])
	assert.Equal(t, "ws-1", body["workspace_id"])
}

func TestSessionStatusAbsentOnNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	report, err := newTestClient().SessionStatus(context.Background(), srv.URL, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "absent", report.State)
	assert.False(t, report.Connected)
}

func TestLiveClientGetChats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sessions/sess-1/chats", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-HMAC-Signature"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"chats": []map[string]any{
				{
					"remote_id":         "5511999990000@c.us",
					"is_group":          false,
					"name":              "Alice",
					"last_message_body": "hello",
					"last_message_type": "text",
					"unread_count":      3,
				},
				{
					"remote_id": "group-1@g.us",
					"is_group":  true,
					"name":      "Team",
				},
			},
		})
	}))
	defer srv.Close()

	lc := newTestClient().LiveClient(srv.URL, "sess-1", "ws-1")
	chats, err := lc.GetChats(context.Background())
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "5511999990000@c.us", chats[0].RemoteID)
	assert.Equal(t, "hello", chats[0].LastMessageBody)
	assert.Equal(t, 3, chats[0].UnreadCount)
	assert.True(t, chats[1].IsGroup)
}

func TestLiveClientGetChatStateEscapesRemoteID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sessions/sess-1/chats/group-1@g.us", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"group_name":        "Team",
			"group_description": "ops",
			"participants": []map[string]any{
				{"phone_number": "5511999990000", "is_admin": true},
			},
		})
	}))
	defer srv.Close()

	lc := newTestClient().LiveClient(srv.URL, "sess-1", "ws-1")
	state, err := lc.GetChatState(context.Background(), "group-1@g.us")
	require.NoError(t, err)
	assert.Equal(t, "Team", state.GroupName)
	assert.Equal(t, "ops", state.GroupDesc)
	require.Len(t, state.Participants, 1)
	assert.True(t, state.Participants[0].IsAdmin)
}

func TestLiveClientSendMessage(t *testing.T) {
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sessions/sess-1/send", r.URL.Path)
		assert.Equal(t, "ws-1", r.Header.Get("X-Workspace-ID"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_ = json.NewEncoder(w).Encode(map[string]string{"message_id": "msg-42"})
	}))
	defer srv.Close()

	lc := newTestClient().LiveClient(srv.URL, "sess-1", "ws-1")
	id, err := lc.SendMessage(context.Background(), "5511999990000", "hello there")
	require.NoError(t, err)
	assert.Equal(t, "msg-42", id)
	assert.Equal(t, "hello there", body["message"])
	assert.Equal(t, "5511999990000", body["phone_number"])
}
