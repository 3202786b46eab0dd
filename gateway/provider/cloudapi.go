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
	"github.com/zentria/wagate/pkg/phone"
)

// CloudAPIAdapter talks to the hosted Business API with workspace-scoped
// credentials. Template operations are fully supported here.
type CloudAPIAdapter struct {
	baseURL       string
	token         string
	phoneNumberID string
	client        *http.Client
}

func NewCloudAPIAdapter(baseURL, token, phoneNumberID string, client *http.Client) *CloudAPIAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &CloudAPIAdapter{
		baseURL:       baseURL,
		token:         token,
		phoneNumberID: phoneNumberID,
		client:        client,
	}
}

type cloudSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func (a *CloudAPIAdapter) IsAvailable(ctx context.Context) bool {
	return a.token != "" && a.phoneNumberID != ""
}

func (a *CloudAPIAdapter) SendMessage(ctx context.Context, phoneNumber, body string) (provider.DeliveryResult, error) {
	to, err := phone.Normalize(phoneNumber)
	if err != nil {
		return provider.DeliveryResult{Success: false, Error: fmt.Sprintf("invalid recipient %q", phoneNumber)}, nil
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": body},
	}
	return a.post(ctx, "/messages", payload)
}

func (a *CloudAPIAdapter) SendMedia(ctx context.Context, phoneNumber string, media provider.MediaPayload) (provider.DeliveryResult, error) {
	to, err := phone.Normalize(phoneNumber)
	if err != nil {
		return provider.DeliveryResult{Success: false, Error: fmt.Sprintf("invalid recipient %q", phoneNumber)}, nil
	}

	kind := mediaKind(media.MimeType)
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              kind,
		kind: map[string]string{
			"link":    media.URL,
			"caption": media.Caption,
		},
	}
	return a.post(ctx, "/messages", payload)
}

func (a *CloudAPIAdapter) SendTemplate(ctx context.Context, phoneNumber string, tpl provider.TemplatePayload) (provider.DeliveryResult, error) {
	to, err := phone.Normalize(phoneNumber)
	if err != nil {
		return provider.DeliveryResult{Success: false, Error: fmt.Sprintf("invalid recipient %q", phoneNumber)}, nil
	}

	components := []map[string]any{}
	if len(tpl.Parameters) > 0 {
		params := make([]map[string]string, 0, len(tpl.Parameters))
		for _, v := range tpl.Parameters {
			params = append(params, map[string]string{"type": "text", "text": v})
		}
		components = append(components, map[string]any{"type": "body", "parameters": params})
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "template",
		"template": map[string]any{
			"name":       tpl.Name,
			"language":   map[string]string{"code": tpl.Language},
			"components": components,
		},
	}
	return a.post(ctx, "/messages", payload)
}

func (a *CloudAPIAdapter) MarkAsRead(ctx context.Context, messageID string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	}
	result, err := a.post(ctx, "/messages", payload)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("mark as read rejected: %s", result.Error)
	}
	return nil
}

func (a *CloudAPIAdapter) GetMessageStatus(ctx context.Context, messageID string) (string, error) {
	url := fmt.Sprintf("%s/%s", a.baseURL, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("cloud api status query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "unknown", nil
	}

	var out struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "unknown", nil
	}
	return out.Status, nil
}

func (a *CloudAPIAdapter) GetHealthInfo(ctx context.Context) (provider.HealthInfo, error) {
	url := fmt.Sprintf("%s/%s", a.baseURL, a.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return provider.HealthInfo{}, err
	}
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.client.Do(req)
	if err != nil {
		return provider.HealthInfo{Connected: false, State: "unreachable", Detail: err.Error()}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return provider.HealthInfo{Connected: false, State: "error", Detail: string(body)}, nil
	}
	return provider.HealthInfo{Connected: true, State: "connected"}, nil
}

// post sends a JSON payload and maps provider-side rejections into the
// DeliveryResult with the error body verbatim for observability.
func (a *CloudAPIAdapter) post(ctx context.Context, path string, payload any) (provider.DeliveryResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return provider.DeliveryResult{}, err
	}

	url := fmt.Sprintf("%s/%s%s", a.baseURL, a.phoneNumberID, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return provider.DeliveryResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return provider.DeliveryResult{}, fmt.Errorf("cloud api request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logrus.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"url":    url,
		}).Warn("[CLOUD_API] Send rejected")
		return provider.DeliveryResult{Success: false, Error: string(body)}, nil
	}

	var out cloudSendResponse
	_ = json.Unmarshal(body, &out)
	result := provider.DeliveryResult{Success: true}
	if len(out.Messages) > 0 {
		result.MessageID = out.Messages[0].ID
	}
	return result, nil
}

func mediaKind(mimeType string) string {
	switch {
	case len(mimeType) >= 5 && mimeType[:5] == "image":
		return "image"
	case len(mimeType) >= 5 && mimeType[:5] == "video":
		return "video"
	case len(mimeType) >= 5 && mimeType[:5] == "audio":
		return "audio"
	default:
		return "document"
	}
}
