// Package notifier delivers gateway-originated events to the tenant
// backend's webhook endpoints, signing every request the same way inbound
// worker traffic is signed.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	pkgError "github.com/zentria/wagate/pkg/error"
	"github.com/zentria/wagate/pkg/hmacsig"
)

// Notifier posts signed JSON events to every configured backend URL.
type Notifier struct {
	urls   []string
	secret string
	client *http.Client
}

func New(urls []string, secret string, client *http.Client) *Notifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &Notifier{urls: urls, secret: secret, client: client}
}

// Notify attempts delivery of the payload to every configured URL. It only
// returns an error when all deliveries fail; partial failures are logged and
// suppressed so successful targets still receive the event.
func (n *Notifier) Notify(ctx context.Context, eventName string, payload any) error {
	total := len(n.urls)
	if total == 0 {
		logrus.WithField("event", eventName).Debug("[NOTIFIER] No backend webhook configured; skipping dispatch")
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"event": eventName,
		"data":  payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventName, err)
	}

	var (
		failed    []string
		successes int
	)
	for _, url := range n.urls {
		if err := n.submit(ctx, url, body); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", url, err))
			logrus.Warnf("[NOTIFIER] Failed forwarding %s to %s: %v", eventName, url, err)
			continue
		}
		successes++
	}

	if len(failed) == total {
		return pkgError.WebhookError(fmt.Sprintf("all backend URLs failed for %s: %s", eventName, strings.Join(failed, "; ")))
	}
	if len(failed) > 0 {
		logrus.Warnf("[NOTIFIER] Some backend URLs failed for %s (succeeded: %d/%d)", eventName, successes, total)
	}
	return nil
}

func (n *Notifier) submit(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	signature, timestamp := hmacsig.SignNow(body, n.secret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-HMAC-Signature", signature)
	req.Header.Set("X-Timestamp", timestamp)

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, string(detail))
	}
	return nil
}
