// Package chatsync pulls the chat list from a connected automation session
// and delivers it to the tenant backend in rate-limited, retried batches.
// Partial failure is a normal, reportable outcome here, not an error.
package chatsync

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/zentria/wagate/gateway/domain/envelope"
	"github.com/zentria/wagate/gateway/domain/session"
	"github.com/zentria/wagate/gateway/registry"
	"github.com/zentria/wagate/pkg/timeutils"
)

// BatchDeliverer delivers one transformed batch to the tenant backend.
type BatchDeliverer interface {
	DeliverBatch(ctx context.Context, workspaceID, sessionID string, batch []envelope.ChatEnvelope) error
}

// Options tunes one sync run. Zero values fall back to the defaults.
type Options struct {
	BatchSize     int           // default 50
	Concurrency   int           // default 3 simultaneous in-flight batches
	WindowDays    int           // 0 = no cutoff
	MaxChats      int           // default 500, most-recent-first under the cap
	RetryAttempts int           // default 3 per batch
	RetryBase     time.Duration // default 1s, doubled per attempt
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 3
	}
	if o.MaxChats <= 0 {
		o.MaxChats = 500
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 3
	}
	if o.RetryBase <= 0 {
		o.RetryBase = time.Second
	}
	return o
}

// Summary reports the outcome of one sync run.
type Summary struct {
	TotalDiscovered int           `json:"total_discovered"`
	Synced          int           `json:"synced"`
	BatchesOK       int           `json:"batches_ok"`
	BatchesFailed   int           `json:"batches_failed"`
	Duration        time.Duration `json:"duration"`
}

// Handler runs chat synchronization for sessions owned by this process.
type Handler struct {
	registry *registry.Registry
	deliver  BatchDeliverer
}

func NewHandler(reg *registry.Registry, deliver BatchDeliverer) *Handler {
	return &Handler{registry: reg, deliver: deliver}
}

// SyncAllChats fetches, filters, transforms and delivers the session's chat
// list. Batch failures past the retry budget are recorded in the summary
// without aborting sibling batches.
func (h *Handler) SyncAllChats(ctx context.Context, sess *session.Session, opts Options) (Summary, error) {
	opts = opts.withDefaults()
	start := time.Now()

	client, ok := h.registry.Get(sess.ID)
	if !ok {
		return Summary{}, fmt.Errorf("session %s has no live automation client on this worker", sess.ID)
	}

	chats, err := client.GetChats(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to fetch chat list: %w", err)
	}
	total := len(chats)

	chats = h.filterAndCap(chats, opts)
	envelopes := h.transform(ctx, client, sess, chats)
	batches := partition(envelopes, opts.BatchSize)

	delivered, failed := h.deliverAll(ctx, sess, batches, opts)

	summary := Summary{
		TotalDiscovered: total,
		Synced:          len(envelopes),
		BatchesOK:       delivered,
		BatchesFailed:   failed,
		Duration:        time.Since(start),
	}

	logrus.WithFields(logrus.Fields{
		"session_id":     sess.ID,
		"workspace_id":   sess.WorkspaceID,
		"discovered":     summary.TotalDiscovered,
		"synced":         summary.Synced,
		"batches_ok":     summary.BatchesOK,
		"batches_failed": summary.BatchesFailed,
		"duration":       humanize.RelTime(start, time.Now(), "", ""),
	}).Info("[CHATSYNC] Sync run complete")

	return summary, nil
}

// filterAndCap drops chats outside the sync window, then keeps the
// most-recent MaxChats.
func (h *Handler) filterAndCap(chats []registry.RawChat, opts Options) []registry.RawChat {
	if opts.WindowDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -opts.WindowDays)
		kept := chats[:0]
		for _, c := range chats {
			if !c.Timestamp.Before(cutoff) {
				kept = append(kept, c)
			}
		}
		chats = kept
	}

	sort.Slice(chats, func(i, j int) bool {
		return chats[i].Timestamp.After(chats[j].Timestamp)
	})

	if len(chats) > opts.MaxChats {
		chats = chats[:opts.MaxChats]
	}
	return chats
}

// transform maps raw chats into envelopes. A chat that fails transformation
// is logged and dropped; it never fails the batch.
func (h *Handler) transform(ctx context.Context, client registry.AutomationClient, sess *session.Session, chats []registry.RawChat) []envelope.ChatEnvelope {
	envelopes := make([]envelope.ChatEnvelope, 0, len(chats))
	for _, chat := range chats {
		env, err := h.transformOne(ctx, client, sess, chat)
		if err != nil {
			logrus.WithError(err).Warnf("[CHATSYNC] Dropping chat %s: transformation failed", chat.RemoteID)
			continue
		}
		envelopes = append(envelopes, env)
	}
	return envelopes
}

func (h *Handler) transformOne(ctx context.Context, client registry.AutomationClient, sess *session.Session, chat registry.RawChat) (envelope.ChatEnvelope, error) {
	env := envelope.ChatEnvelope{
		WorkspaceID:     sess.WorkspaceID,
		SessionID:       sess.ID,
		RemoteID:        chat.RemoteID,
		LastMessageBody: chat.LastMessageBody,
		LastMessageType: chat.LastMessageType,
		LastMessageAt:   chat.Timestamp,
		UnreadCount:     chat.UnreadCount,
	}

	state, err := client.GetChatState(ctx, chat.RemoteID)
	if err != nil {
		return envelope.ChatEnvelope{}, fmt.Errorf("chat state fetch: %w", err)
	}

	if chat.IsGroup {
		env.Type = envelope.ChatGroup
		name := state.GroupName
		if name == "" {
			name = chat.Name
		}
		env.Group = &envelope.GroupInfo{
			Name:         name,
			Description:  state.GroupDesc,
			Participants: state.Participants,
		}
	} else {
		env.Type = envelope.ChatPrivate
		if state.Contact == nil {
			return envelope.ChatEnvelope{}, fmt.Errorf("private chat %s has no contact descriptor", chat.RemoteID)
		}
		env.Contact = state.Contact
	}
	return env, nil
}

// deliverAll pushes batches under the concurrency limiter with per-batch
// retry. allSettled semantics: every batch runs to completion regardless of
// sibling outcomes.
func (h *Handler) deliverAll(ctx context.Context, sess *session.Session, batches [][]envelope.ChatEnvelope, opts Options) (ok, failed int) {
	sem := make(chan struct{}, opts.Concurrency)
	results := make([]error, len(batches))
	var wg sync.WaitGroup

	for i, batch := range batches {
		wg.Add(1)
		go func(idx int, batch []envelope.ChatEnvelope) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[idx] = h.deliverWithRetry(ctx, sess, idx, batch, opts)
		}(i, batch)
	}
	wg.Wait()

	for _, err := range results {
		if err != nil {
			failed++
		} else {
			ok++
		}
	}
	return ok, failed
}

func (h *Handler) deliverWithRetry(ctx context.Context, sess *session.Session, idx int, batch []envelope.ChatEnvelope, opts Options) error {
	var lastErr error
	for attempt := 1; attempt <= opts.RetryAttempts; attempt++ {
		lastErr = h.deliver.DeliverBatch(ctx, sess.WorkspaceID, sess.ID, batch)
		if lastErr == nil {
			return nil
		}

		logrus.WithError(lastErr).Warnf("[CHATSYNC] Batch %d attempt %d/%d failed", idx, attempt, opts.RetryAttempts)

		if attempt == opts.RetryAttempts {
			break
		}
		delay := timeutils.BackoffDelay(opts.RetryBase, attempt, 0)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("batch %d exhausted %d attempts: %w", idx, opts.RetryAttempts, lastErr)
}

func partition(envs []envelope.ChatEnvelope, size int) [][]envelope.ChatEnvelope {
	if len(envs) == 0 {
		return nil
	}
	batches := make([][]envelope.ChatEnvelope, 0, (len(envs)+size-1)/size)
	for start := 0; start < len(envs); start += size {
		end := start + size
		if end > len(envs) {
			end = len(envs)
		}
		batches = append(batches, envs[start:end])
	}
	return batches
}
