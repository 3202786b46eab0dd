// Package monitor watches connected browser-automation sessions for
// inactivity and drives the bounded restart sequence for stale ones.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zentria/wagate/gateway/domain/session"
	"github.com/zentria/wagate/gateway/registry"
)

// SessionRestarter tears down and re-initializes one live session. The
// monitor owns the attempt bookkeeping; the restarter owns the mechanics.
type SessionRestarter interface {
	RestartSession(ctx context.Context, sessionID string) error
}

// BackendNotifier informs the tenant backend about restart activity.
type BackendNotifier interface {
	Notify(ctx context.Context, eventName string, payload any) error
}

// Options tunes the monitor loop.
type Options struct {
	Interval            time.Duration // default 5m
	InactivityThreshold time.Duration // default 30m
	MaxRestartAttempts  int           // default 3
	Cooldown            time.Duration // default 1h after the attempt cap
	SettleDelay         time.Duration // default 5s between restart and verify
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Minute
	}
	if o.InactivityThreshold <= 0 {
		o.InactivityThreshold = 30 * time.Minute
	}
	if o.MaxRestartAttempts <= 0 {
		o.MaxRestartAttempts = 3
	}
	if o.Cooldown <= 0 {
		o.Cooldown = time.Hour
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = 5 * time.Second
	}
	return o
}

type attemptState struct {
	count         int
	cooldownUntil time.Time
}

// Monitor runs the periodic inactivity sweep over sessions owned by this
// process. Only browser-automation sessions are swept; cloud API sessions
// have no live client to go stale.
type Monitor struct {
	repo      session.Repository
	registry  *registry.Registry
	restarter SessionRestarter
	audit     *RestartAudit
	events    BackendNotifier
	opts      Options

	mu       sync.Mutex
	attempts map[string]*attemptState
}

func New(repo session.Repository, reg *registry.Registry, restarter SessionRestarter, audit *RestartAudit, events BackendNotifier, opts Options) *Monitor {
	return &Monitor{
		repo:      repo,
		registry:  reg,
		restarter: restarter,
		audit:     audit,
		events:    events,
		opts:      opts.withDefaults(),
		attempts:  make(map[string]*attemptState),
	}
}

func (m *Monitor) notify(ctx context.Context, eventName string, payload any) {
	if m.events == nil {
		return
	}
	if err := m.events.Notify(ctx, eventName, payload); err != nil {
		logrus.WithError(err).WithField("event", eventName).Warn("[MONITOR] Backend notification failed")
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval. The first
// sweep happens after one full interval, giving fresh sessions time to
// produce activity.
func (m *Monitor) Run(ctx context.Context) {
	logrus.WithFields(logrus.Fields{
		"interval":  m.opts.Interval,
		"threshold": m.opts.InactivityThreshold,
	}).Info("[MONITOR] Session health monitor started")

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("[MONITOR] Session health monitor stopped")
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep examines every connected automation session once.
func (m *Monitor) Sweep(ctx context.Context) {
	sessions, err := m.repo.ListByStatus(ctx, session.StatusConnected)
	if err != nil {
		logrus.WithError(err).Error("[MONITOR] Failed to list connected sessions")
		return
	}

	now := time.Now()
	for _, sess := range sessions {
		if sess.Provider != session.ProviderBrowserAutomation {
			continue
		}
		if _, owned := m.registry.Get(sess.ID); !owned {
			continue
		}

		idle := m.inactivityFor(sess, now)
		if idle < m.opts.InactivityThreshold {
			m.resetAttempts(sess.ID)
			continue
		}

		logrus.WithFields(logrus.Fields{
			"session_id":   sess.ID,
			"workspace_id": sess.WorkspaceID,
			"idle":         idle.Round(time.Second),
		}).Warn("[MONITOR] Session exceeded inactivity threshold")

		m.restart(ctx, sess)
	}
}

// inactivityFor prefers the in-process activity clock over the persisted
// one; the registry sees inbound traffic before the repository does.
func (m *Monitor) inactivityFor(sess *session.Session, now time.Time) time.Duration {
	if last, ok := m.registry.LastActivity(sess.ID); ok && !last.IsZero() {
		return now.Sub(last)
	}
	return sess.InactivityDuration(now)
}

func (m *Monitor) restart(ctx context.Context, sess *session.Session) {
	m.mu.Lock()
	state, ok := m.attempts[sess.ID]
	if !ok {
		state = &attemptState{}
		m.attempts[sess.ID] = state
	}

	now := time.Now()
	if !state.cooldownUntil.IsZero() {
		if now.Before(state.cooldownUntil) {
			m.mu.Unlock()
			logrus.WithField("session_id", sess.ID).Debug("[MONITOR] Restart suppressed, session in cooldown")
			return
		}
		// Cooldown elapsed, start a fresh attempt cycle.
		state.count = 0
		state.cooldownUntil = time.Time{}
	}

	state.count++
	attempt := state.count
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"attempt":    attempt,
		"max":        m.opts.MaxRestartAttempts,
	}).Info("[MONITOR] Restarting stale session")

	m.notify(ctx, "session.restarting", map[string]any{
		"session_id":   sess.ID,
		"workspace_id": sess.WorkspaceID,
		"attempt":      attempt,
		"max_attempts": m.opts.MaxRestartAttempts,
	})

	err := m.restarter.RestartSession(ctx, sess.ID)
	if err == nil {
		// Give the session room to come up before trusting the verdict.
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.opts.SettleDelay):
		}
		err = m.verify(ctx, sess.ID)
	}

	outcome := "success"
	detail := ""
	if err != nil {
		outcome = "failure"
		detail = err.Error()
	}
	if auditErr := m.audit.Record(ctx, RestartRecord{
		SessionID:   sess.ID,
		WorkspaceID: sess.WorkspaceID,
		Attempt:     attempt,
		Outcome:     outcome,
		Detail:      detail,
	}); auditErr != nil {
		logrus.WithError(auditErr).Warn("[MONITOR] Failed to persist restart attempt")
	}

	if err == nil {
		m.resetAttempts(sess.ID)
		logrus.WithField("session_id", sess.ID).Info("[MONITOR] Session restart succeeded")
		return
	}

	logrus.WithError(err).WithFields(logrus.Fields{
		"session_id": sess.ID,
		"attempt":    attempt,
	}).Error("[MONITOR] Session restart failed")

	if attempt >= m.opts.MaxRestartAttempts {
		m.enterCooldown(ctx, sess)
	}
}

func (m *Monitor) verify(ctx context.Context, sessionID string) error {
	sess, err := m.repo.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status != session.StatusConnected {
		return session.ErrSessionNotActive
	}
	return nil
}

// enterCooldown marks the session failed and parks the attempt counter
// until the cooldown elapses.
func (m *Monitor) enterCooldown(ctx context.Context, sess *session.Session) {
	m.mu.Lock()
	if state, ok := m.attempts[sess.ID]; ok {
		state.cooldownUntil = time.Now().Add(m.opts.Cooldown)
	}
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"cooldown":   m.opts.Cooldown,
	}).Error("[MONITOR] Restart attempt cap reached, marking session failed")

	meta := sess.Metadata
	meta.LastError = "restart attempt cap reached"
	if err := m.repo.UpdateStatus(ctx, sess.ID, session.StatusFailed, meta); err != nil {
		logrus.WithError(err).WithField("session_id", sess.ID).Error("[MONITOR] Failed to mark session as failed")
	}

	m.notify(ctx, "session.failed", map[string]any{
		"session_id":   sess.ID,
		"workspace_id": sess.WorkspaceID,
		"reason":       meta.LastError,
		"cooldown":     m.opts.Cooldown.String(),
	})
}

func (m *Monitor) resetAttempts(sessionID string) {
	m.mu.Lock()
	delete(m.attempts, sessionID)
	m.mu.Unlock()
}
