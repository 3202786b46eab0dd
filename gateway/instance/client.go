// Package instance queries automation worker instances for the live state of
// the sessions the control plane believes they own.
package instance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zentria/wagate/pkg/hmacsig"
)

// StatusReport is the answer of one worker instance about one session.
type StatusReport struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	Connected bool   `json:"-"`
}

// Client polls worker instances over their signed control API.
type Client struct {
	apiToken string
	secret   string
	http     *http.Client
}

func NewClient(apiToken, secret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		apiToken: apiToken,
		secret:   secret,
		http:     &http.Client{Timeout: timeout},
	}
}

// StartSession instructs an instance to begin serving a session. The
// instance answers immediately; progress arrives later through webhooks.
func (c *Client) StartSession(ctx context.Context, instanceURL, sessionID, workspaceID string) error {
	body, err := json.Marshal(map[string]string{
		"session_id":   sessionID,
		"workspace_id": workspaceID,
	})
	if err != nil {
		return err
	}
	return c.post(ctx, instanceURL, fmt.Sprintf("/sessions/%s/start", sessionID), body, false)
}

// StopSession tears down a session's live client on an instance. Missing
// sessions are treated as already stopped; that leniency applies to stop
// only, a 404 on any other call is a real failure.
func (c *Client) StopSession(ctx context.Context, instanceURL, sessionID string) error {
	return c.post(ctx, instanceURL, fmt.Sprintf("/sessions/%s/stop", sessionID), nil, true)
}

func (c *Client) post(ctx context.Context, instanceURL, path string, body []byte, okNotFound bool) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, instanceURL+path, reader)
	if err != nil {
		return err
	}
	c.sign(req, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("instance %s unreachable: %w", instanceURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if okNotFound && resp.StatusCode == http.StatusNotFound {
		return nil
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("instance %s returned %d: %s", instanceURL, resp.StatusCode, string(respBody))
}

func (c *Client) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	c.sign(req, nil)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("instance unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("instance returned %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) sign(req *http.Request, body []byte) {
	signature, timestamp := hmacsig.SignNow(body, c.secret)
	req.Header.Set("X-API-Token", c.apiToken)
	req.Header.Set("X-HMAC-Signature", signature)
	req.Header.Set("X-Timestamp", timestamp)
}

// SessionStatus asks one instance whether it is actively serving the session.
// A non-200 answer or transport failure is returned as an error so callers
// can distinguish "instance says no" from "instance did not answer".
func (c *Client) SessionStatus(ctx context.Context, instanceURL, sessionID string) (StatusReport, error) {
	url := fmt.Sprintf("%s/sessions/%s/status", instanceURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return StatusReport{}, err
	}

	c.sign(req, nil)

	resp, err := c.http.Do(req)
	if err != nil {
		return StatusReport{}, fmt.Errorf("instance %s unreachable: %w", instanceURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return StatusReport{SessionID: sessionID, State: "absent"}, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return StatusReport{}, fmt.Errorf("instance %s returned %d: %s", instanceURL, resp.StatusCode, string(body))
	}

	var report StatusReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return StatusReport{}, fmt.Errorf("instance %s sent malformed status: %w", instanceURL, err)
	}
	if report.SessionID == "" {
		report.SessionID = sessionID
	}
	report.Connected = report.State == "connected"
	return report, nil
}
