package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/zentria/wagate/gateway/domain/provider"
	"github.com/zentria/wagate/pkg/hmacsig"
	"github.com/zentria/wagate/pkg/phone"
)

// BrowserAdapter talks to the control API of a self-hosted browser-automation
// worker instance. Every request is HMAC-signed and timestamp-scoped.
// Template management is not available on this provider.
type BrowserAdapter struct {
	instanceURL string
	sessionID   string
	workspaceID string
	apiToken    string
	secret      string
	client      *http.Client
}

func NewBrowserAdapter(instanceURL, sessionID, workspaceID, apiToken, secret string, client *http.Client) *BrowserAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &BrowserAdapter{
		instanceURL: instanceURL,
		sessionID:   sessionID,
		workspaceID: workspaceID,
		apiToken:    apiToken,
		secret:      secret,
		client:      client,
	}
}

func (a *BrowserAdapter) IsAvailable(ctx context.Context) bool {
	info, err := a.GetHealthInfo(ctx)
	return err == nil && info.Connected
}

func (a *BrowserAdapter) SendMessage(ctx context.Context, phoneNumber, body string) (provider.DeliveryResult, error) {
	to, err := phone.Normalize(phoneNumber)
	if err != nil {
		return provider.DeliveryResult{Success: false, Error: fmt.Sprintf("invalid recipient %q", phoneNumber)}, nil
	}

	payload := map[string]any{
		"session_id":   a.sessionID,
		"workspace_id": a.workspaceID,
		"phone_number": to,
		"message":      body,
	}
	return a.post(ctx, fmt.Sprintf("/sessions/%s/messages", a.sessionID), payload)
}

func (a *BrowserAdapter) SendMedia(ctx context.Context, phoneNumber string, media provider.MediaPayload) (provider.DeliveryResult, error) {
	to, err := phone.Normalize(phoneNumber)
	if err != nil {
		return provider.DeliveryResult{Success: false, Error: fmt.Sprintf("invalid recipient %q", phoneNumber)}, nil
	}

	payload := map[string]any{
		"session_id":   a.sessionID,
		"workspace_id": a.workspaceID,
		"phone_number": to,
		"media_url":    media.URL,
		"mime_type":    media.MimeType,
		"caption":      media.Caption,
		"filename":     media.Filename,
	}
	return a.post(ctx, fmt.Sprintf("/sessions/%s/media", a.sessionID), payload)
}

// SendTemplate always fails: the automation worker has no template registry.
// Failing fast keeps callers from mistaking a no-op for a delivery.
func (a *BrowserAdapter) SendTemplate(ctx context.Context, phoneNumber string, tpl provider.TemplatePayload) (provider.DeliveryResult, error) {
	return provider.DeliveryResult{}, provider.ErrTemplatesNotSupported
}

func (a *BrowserAdapter) MarkAsRead(ctx context.Context, messageID string) error {
	payload := map[string]any{
		"session_id":   a.sessionID,
		"workspace_id": a.workspaceID,
		"message_id":   messageID,
	}
	result, err := a.post(ctx, fmt.Sprintf("/sessions/%s/read", a.sessionID), payload)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("mark as read rejected: %s", result.Error)
	}
	return nil
}

func (a *BrowserAdapter) GetMessageStatus(ctx context.Context, messageID string) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := a.get(ctx, fmt.Sprintf("/messages/%s/status", messageID), &out); err != nil {
		return "", err
	}
	if out.Status == "" {
		return "unknown", nil
	}
	return out.Status, nil
}

func (a *BrowserAdapter) GetHealthInfo(ctx context.Context) (provider.HealthInfo, error) {
	var out struct {
		State string `json:"state"`
	}
	if err := a.get(ctx, fmt.Sprintf("/sessions/%s/status", a.sessionID), &out); err != nil {
		return provider.HealthInfo{Connected: false, State: "unreachable", Detail: err.Error()}, nil
	}
	return provider.HealthInfo{
		Connected: out.State == "connected",
		State:     out.State,
	}, nil
}

func (a *BrowserAdapter) post(ctx context.Context, path string, payload any) (provider.DeliveryResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return provider.DeliveryResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.instanceURL+path, bytes.NewReader(data))
	if err != nil {
		return provider.DeliveryResult{}, err
	}
	a.signRequest(req, data)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return provider.DeliveryResult{}, fmt.Errorf("worker instance request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logrus.WithFields(logrus.Fields{
			"status":     resp.StatusCode,
			"session_id": a.sessionID,
			"instance":   a.instanceURL,
		}).Warn("[BROWSER] Send rejected by worker instance")
		return provider.DeliveryResult{Success: false, Error: string(body)}, nil
	}

	var out struct {
		MessageID string `json:"message_id"`
	}
	_ = json.Unmarshal(body, &out)
	return provider.DeliveryResult{Success: true, MessageID: out.MessageID}, nil
}

func (a *BrowserAdapter) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.instanceURL+path, nil)
	if err != nil {
		return err
	}
	a.signRequest(req, nil)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("worker instance request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("worker instance returned %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (a *BrowserAdapter) signRequest(req *http.Request, body []byte) {
	signature, timestamp := hmacsig.SignNow(body, a.secret)
	req.Header.Set("X-Workspace-ID", a.workspaceID)
	req.Header.Set("X-API-Token", a.apiToken)
	req.Header.Set("X-HMAC-Signature", signature)
	req.Header.Set("X-Timestamp", timestamp)
}
