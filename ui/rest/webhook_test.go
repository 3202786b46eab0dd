package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zentria/wagate/gateway/domain/webhook"
)

type stubWebhookService struct {
	got webhook.Event
}

func (s *stubWebhookService) HandleEvent(ctx context.Context, event webhook.Event) error {
	s.got = event
	return nil
}

func postEvent(t *testing.T, app *fiber.App, event map[string]any) (int, string) {
	t.Helper()
	body, err := json.Marshal(event)
	require.NoError(t, err)
	req := httptest.NewRequest(fiber.MethodPost, "/webhooks/events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(respBody)
}

func TestChatBatchEventAnswersQueued(t *testing.T) {
	app := fiber.New()
	service := &stubWebhookService{}
	InitRestWebhook(app, service)

	code, body := postEvent(t, app, map[string]any{
		"type":         "chat_batch",
		"workspace_id": "ws-1",
		"session_id":   "sess-1",
		"payload":      map[string]any{"chats": []any{}},
	})

	assert.Equal(t, fiber.StatusAccepted, code)
	assert.Contains(t, body, "QUEUED")
	assert.Equal(t, webhook.EventChatBatch, service.got.Type)
}

func TestOtherEventsAnswerSuccess(t *testing.T) {
	app := fiber.New()
	service := &stubWebhookService{}
	InitRestWebhook(app, service)

	code, body := postEvent(t, app, map[string]any{
		"type":         "status",
		"workspace_id": "ws-1",
		"session_id":   "sess-1",
		"payload":      map[string]any{"state": "connected"},
	})

	assert.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, body, "SUCCESS")
}
