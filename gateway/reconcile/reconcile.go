// Package reconcile keeps the control plane's view of which worker instance
// owns which browser-automation session aligned with what the instances
// themselves report.
package reconcile

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zentria/wagate/gateway/domain/session"
	"github.com/zentria/wagate/gateway/instance"
	"github.com/zentria/wagate/infrastructure/valkey"
)

// Options tunes the reconciliation loop.
type Options struct {
	Interval     time.Duration // default 5m
	InstanceURLs []string      // full fleet, used when probing for reassignment
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Minute
	}
	return o
}

// Reconciler periodically cross-checks session-to-instance assignments.
type Reconciler struct {
	repo   session.Repository
	client *instance.Client
	cache  *valkey.Client // nil disables cache invalidation
	opts   Options
}

func New(repo session.Repository, client *instance.Client, cache *valkey.Client, opts Options) *Reconciler {
	return &Reconciler{
		repo:   repo,
		client: client,
		cache:  cache,
		opts:   opts.withDefaults(),
	}
}

// Run blocks until ctx is cancelled, reconciling once per interval.
func (r *Reconciler) Run(ctx context.Context) {
	logrus.WithField("interval", r.opts.Interval).Info("[RECONCILE] Instance reconciliation started")

	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("[RECONCILE] Instance reconciliation stopped")
			return
		case <-ticker.C:
			r.Reconcile(ctx)
		}
	}
}

// Reconcile runs one full pass over active browser-automation sessions.
func (r *Reconciler) Reconcile(ctx context.Context) {
	var sessions []*session.Session
	for _, status := range []session.Status{session.StatusConnected, session.StatusAuthenticated} {
		batch, err := r.repo.ListByStatus(ctx, status)
		if err != nil {
			logrus.WithError(err).Errorf("[RECONCILE] Failed to list %s sessions", status)
			return
		}
		sessions = append(sessions, batch...)
	}

	checked, drifted := 0, 0
	for _, sess := range sessions {
		if sess.Provider != session.ProviderBrowserAutomation || sess.Instance.URL == "" {
			continue
		}
		checked++
		if r.reconcileOne(ctx, sess) {
			drifted++
		}
	}

	logrus.WithFields(logrus.Fields{
		"checked": checked,
		"drifted": drifted,
	}).Debug("[RECONCILE] Pass complete")
}

// reconcileOne checks one session's assigned instance and repairs drift.
// Returns true when the assignment changed or the session was flagged.
func (r *Reconciler) reconcileOne(ctx context.Context, sess *session.Session) bool {
	report, err := r.client.SessionStatus(ctx, sess.Instance.URL, sess.ID)
	if err != nil {
		// The instance did not answer. That is an instance problem, not
		// proof the session moved; leave the assignment alone.
		logrus.WithError(err).WithFields(logrus.Fields{
			"session_id": sess.ID,
			"instance":   sess.Instance.URL,
		}).Warn("[RECONCILE] Assigned instance did not answer")
		return false
	}

	if report.State != "absent" {
		if sess.Metadata.Unreachable {
			sess.Metadata.Unreachable = false
			if err := r.repo.Update(ctx, sess); err != nil {
				logrus.WithError(err).WithField("session_id", sess.ID).Error("[RECONCILE] Failed to clear unreachable flag")
			}
			return true
		}
		return false
	}

	// The assigned instance disclaims the session. Probe the rest of the
	// fleet before declaring it lost.
	logrus.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"instance":   sess.Instance.URL,
	}).Warn("[RECONCILE] Assigned instance disclaims session, probing fleet")

	for idx, url := range r.opts.InstanceURLs {
		if url == sess.Instance.URL {
			continue
		}
		probe, err := r.client.SessionStatus(ctx, url, sess.ID)
		if err != nil || probe.State == "absent" {
			continue
		}
		return r.reassign(ctx, sess, session.InstanceRef{URL: url, Index: idx})
	}

	return r.markUnreachable(ctx, sess)
}

func (r *Reconciler) reassign(ctx context.Context, sess *session.Session, ref session.InstanceRef) bool {
	logrus.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"from":       sess.Instance.URL,
		"to":         ref.URL,
	}).Info("[RECONCILE] Reassigning session to its actual instance")

	sess.Instance = ref
	sess.Metadata.Unreachable = false
	if err := r.repo.Update(ctx, sess); err != nil {
		logrus.WithError(err).WithField("session_id", sess.ID).Error("[RECONCILE] Failed to persist reassignment")
		return false
	}
	r.invalidateCache(ctx, sess.ID)
	return true
}

func (r *Reconciler) markUnreachable(ctx context.Context, sess *session.Session) bool {
	logrus.WithField("session_id", sess.ID).Error("[RECONCILE] Session not found on any instance, flagging unreachable")

	sess.Metadata.Unreachable = true
	if err := r.repo.Update(ctx, sess); err != nil {
		logrus.WithError(err).WithField("session_id", sess.ID).Error("[RECONCILE] Failed to flag session unreachable")
		return false
	}
	r.invalidateCache(ctx, sess.ID)
	return true
}

// invalidateCache drops the cached instance assignment so the next lookup
// reads the repaired row instead of stale routing.
func (r *Reconciler) invalidateCache(ctx context.Context, sessionID string) {
	if r.cache == nil {
		return
	}
	key := r.cache.Key("instance_of", sessionID)
	inner := r.cache.Inner()
	if err := inner.Do(ctx, inner.B().Del().Key(key).Build()).Error(); err != nil && !valkey.IsNil(err) {
		logrus.WithError(err).WithField("key", key).Warn("[RECONCILE] Failed to invalidate instance cache")
	}
}
