package instance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/zentria/wagate/gateway/domain/envelope"
	"github.com/zentria/wagate/gateway/registry"
)

// LiveClient is the HTTP view of one session served by a worker instance.
// It satisfies the registry's automation client contract, so the chat sync
// handler and the send path talk to remote sessions exactly as they would
// to an in-process one.
type LiveClient struct {
	control     *Client
	instanceURL string
	sessionID   string
	workspaceID string
}

// LiveClient builds the per-session client for an instance assignment.
func (c *Client) LiveClient(instanceURL, sessionID, workspaceID string) *LiveClient {
	return &LiveClient{
		control:     c,
		instanceURL: instanceURL,
		sessionID:   sessionID,
		workspaceID: workspaceID,
	}
}

type wireChat struct {
	RemoteID        string    `json:"remote_id"`
	IsGroup         bool      `json:"is_group"`
	Name            string    `json:"name"`
	LastMessageBody string    `json:"last_message_body"`
	LastMessageType string    `json:"last_message_type"`
	Timestamp       time.Time `json:"timestamp"`
	UnreadCount     int       `json:"unread_count"`
}

type chatListResponse struct {
	Chats []wireChat `json:"chats"`
}

type chatStateResponse struct {
	Contact          *envelope.Contact      `json:"contact,omitempty"`
	GroupName        string                 `json:"group_name,omitempty"`
	GroupDescription string                 `json:"group_description,omitempty"`
	Participants     []envelope.Participant `json:"participants,omitempty"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
}

// GetChats fetches the instance's full chat list for this session.
func (lc *LiveClient) GetChats(ctx context.Context) ([]registry.RawChat, error) {
	var resp chatListResponse
	endpoint := fmt.Sprintf("%s/sessions/%s/chats", lc.instanceURL, lc.sessionID)
	if err := lc.control.get(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	chats := make([]registry.RawChat, 0, len(resp.Chats))
	for _, c := range resp.Chats {
		chats = append(chats, registry.RawChat{
			RemoteID:        c.RemoteID,
			IsGroup:         c.IsGroup,
			Name:            c.Name,
			LastMessageBody: c.LastMessageBody,
			LastMessageType: c.LastMessageType,
			Timestamp:       c.Timestamp,
			UnreadCount:     c.UnreadCount,
		})
	}
	return chats, nil
}

// GetChatState fetches the detail view of one chat: the counterpart contact
// for private chats, the roster for groups.
func (lc *LiveClient) GetChatState(ctx context.Context, remoteID string) (registry.RawChatState, error) {
	var resp chatStateResponse
	endpoint := fmt.Sprintf("%s/sessions/%s/chats/%s",
		lc.instanceURL, lc.sessionID, url.PathEscape(remoteID))
	if err := lc.control.get(ctx, endpoint, &resp); err != nil {
		return registry.RawChatState{}, err
	}

	return registry.RawChatState{
		Contact:      resp.Contact,
		GroupName:    resp.GroupName,
		GroupDesc:    resp.GroupDescription,
		Participants: resp.Participants,
	}, nil
}

// SendMessage delivers a text message through the instance's control API.
func (lc *LiveClient) SendMessage(ctx context.Context, phoneNumber, body string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"session_id":   lc.sessionID,
		"workspace_id": lc.workspaceID,
		"phone_number": phoneNumber,
		"message":      body,
	})
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/sessions/%s/send", lc.instanceURL, lc.sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	lc.control.sign(req, payload)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Workspace-ID", lc.workspaceID)

	resp, err := lc.control.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("instance %s unreachable: %w", lc.instanceURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("instance %s returned %d: %s", lc.instanceURL, resp.StatusCode, string(detail))
	}

	var result sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("instance %s sent malformed send response: %w", lc.instanceURL, err)
	}
	return result.MessageID, nil
}

// Destroy stops the session on the instance.
func (lc *LiveClient) Destroy(ctx context.Context) error {
	return lc.control.StopSession(ctx, lc.instanceURL, lc.sessionID)
}
