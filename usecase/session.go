package usecase

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/zentria/wagate/gateway/authstate"
	domainSession "github.com/zentria/wagate/gateway/domain/session"
	"github.com/zentria/wagate/gateway/instance"
	"github.com/zentria/wagate/gateway/registry"
	pkgError "github.com/zentria/wagate/pkg/error"
)

type serviceSession struct {
	repo         domainSession.Repository
	authManager  *authstate.Manager
	instances    *instance.Client
	instanceURLs []string
	registry     *registry.Registry

	rr atomic.Uint64 // round-robin cursor for instance assignment
}

func NewSessionService(
	repo domainSession.Repository,
	authManager *authstate.Manager,
	instances *instance.Client,
	instanceURLs []string,
	reg *registry.Registry,
) domainSession.IUsecase {
	return &serviceSession{
		repo:         repo,
		authManager:  authManager,
		instances:    instances,
		instanceURLs: instanceURLs,
		registry:     reg,
	}
}

func (s *serviceSession) Create(ctx context.Context, request domainSession.CreateRequest) (*domainSession.Session, error) {
	if request.WorkspaceID == "" {
		return nil, pkgError.ValidationError("workspace_id is required")
	}

	switch request.Provider {
	case domainSession.ProviderCloudAPI:
		return s.createCloudAPI(ctx, request)
	case domainSession.ProviderBrowserAutomation:
		return s.createBrowserAutomation(ctx, request)
	default:
		return nil, pkgError.ValidationError(fmt.Sprintf("unknown provider kind: %q", request.Provider))
	}
}

// createCloudAPI sessions have no pairing handshake; they are usable as soon
// as workspace credentials exist, so the record is born connected.
func (s *serviceSession) createCloudAPI(ctx context.Context, request domainSession.CreateRequest) (*domainSession.Session, error) {
	sess := &domainSession.Session{
		ID:          uuid.NewString(),
		WorkspaceID: request.WorkspaceID,
		Provider:    domainSession.ProviderCloudAPI,
		Status:      domainSession.StatusConnected,
		HealthScore: 100,
		IsPrimary:   request.IsPrimary,
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"session_id":   sess.ID,
		"workspace_id": sess.WorkspaceID,
	}).Info("[SESSION] Cloud API session created")
	return sess, nil
}

func (s *serviceSession) createBrowserAutomation(ctx context.Context, request domainSession.CreateRequest) (*domainSession.Session, error) {
	if len(s.instanceURLs) == 0 {
		return nil, pkgError.ValidationError("no worker instances configured")
	}

	idx := int(s.rr.Add(1)-1) % len(s.instanceURLs)
	sess := &domainSession.Session{
		ID:          uuid.NewString(),
		WorkspaceID: request.WorkspaceID,
		Provider:    domainSession.ProviderBrowserAutomation,
		Status:      domainSession.StatusInitializing,
		HealthScore: 100,
		IsPrimary:   request.IsPrimary,
		Instance:    domainSession.InstanceRef{URL: s.instanceURLs[idx], Index: idx},
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, err
	}

	strategy := s.authManager.For(sess.ID)
	if err := strategy.Setup(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare session state: %w", err)
	}
	if err := strategy.BeforeConnect(ctx); err != nil {
		return nil, fmt.Errorf("failed to restore session credentials: %w", err)
	}

	if err := s.instances.StartSession(ctx, sess.Instance.URL, sess.ID, sess.WorkspaceID); err != nil {
		meta := sess.Metadata
		meta.LastError = err.Error()
		if stErr := s.repo.UpdateStatus(ctx, sess.ID, domainSession.StatusFailed, meta); stErr != nil {
			logrus.WithError(stErr).WithField("session_id", sess.ID).Error("[SESSION] Failed to mark session failed")
		}
		return nil, fmt.Errorf("worker instance refused to start session: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"session_id":   sess.ID,
		"workspace_id": sess.WorkspaceID,
		"instance":     sess.Instance.URL,
	}).Info("[SESSION] Browser automation session starting")
	return sess, nil
}

func (s *serviceSession) Get(ctx context.Context, id string) (*domainSession.Session, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *serviceSession) List(ctx context.Context, workspaceID string) ([]*domainSession.Session, error) {
	return s.repo.ListByWorkspace(ctx, workspaceID)
}

func (s *serviceSession) SetPrimary(ctx context.Context, workspaceID, sessionID string) error {
	sess, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.WorkspaceID != workspaceID {
		return domainSession.ErrSessionNotFound
	}
	sess.IsPrimary = true
	return s.repo.Update(ctx, sess)
}

// Disconnect tears down the live client but keeps stored credentials, so the
// session can be restarted without re-pairing.
func (s *serviceSession) Disconnect(ctx context.Context, sessionID, reason string) error {
	lock := s.registry.LockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}

	s.teardown(ctx, sess)
	if sess.Provider == domainSession.ProviderBrowserAutomation {
		if err := s.authManager.For(sessionID).Disconnect(ctx); err != nil {
			logrus.WithError(err).WithField("session_id", sessionID).Warn("[SESSION] Credential backup timer teardown failed")
		}
	}

	meta := sess.Metadata
	meta.DisconnectReason = reason
	return s.repo.UpdateStatus(ctx, sessionID, domainSession.StatusDisconnected, meta)
}

// Logout also discards stored credentials; the next start requires a fresh
// QR pairing.
func (s *serviceSession) Logout(ctx context.Context, sessionID string) error {
	lock := s.registry.LockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}

	s.teardown(ctx, sess)
	if sess.Provider == domainSession.ProviderBrowserAutomation {
		if err := s.authManager.For(sessionID).Logout(ctx); err != nil {
			logrus.WithError(err).WithField("session_id", sessionID).Error("[SESSION] Failed to purge session credentials")
		}
		s.authManager.Forget(sessionID)
	}

	meta := sess.Metadata
	meta.DisconnectReason = "logout"
	return s.repo.UpdateStatus(ctx, sessionID, domainSession.StatusDisconnected, meta)
}

// RestartSession drives the stale-session recovery sequence: stop whatever
// the instance still runs, move the record through disconnected back to
// initializing, restore credentials, and start again.
func (s *serviceSession) RestartSession(ctx context.Context, sessionID string) error {
	// One restart at a time per session; concurrent lifecycle calls for the
	// same identifier wait here instead of interleaving teardown steps.
	lock := s.registry.LockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Provider != domainSession.ProviderBrowserAutomation {
		return pkgError.ValidationError("only browser automation sessions can be restarted")
	}

	s.teardown(ctx, sess)

	if sess.Status != domainSession.StatusDisconnected && sess.Status != domainSession.StatusFailed {
		meta := sess.Metadata
		meta.DisconnectReason = "restart"
		if err := s.repo.UpdateStatus(ctx, sessionID, domainSession.StatusDisconnected, meta); err != nil {
			return err
		}
	}
	if err := s.repo.UpdateStatus(ctx, sessionID, domainSession.StatusInitializing, sess.Metadata); err != nil {
		return err
	}

	strategy := s.authManager.For(sessionID)
	if err := strategy.BeforeConnect(ctx); err != nil {
		return fmt.Errorf("failed to restore session credentials: %w", err)
	}
	if err := s.instances.StartSession(ctx, sess.Instance.URL, sessionID, sess.WorkspaceID); err != nil {
		return fmt.Errorf("worker instance refused to restart session: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"instance":   sess.Instance.URL,
	}).Info("[SESSION] Session restarting")
	return nil
}

// teardown removes the local live client and tells the instance to stop.
// Both are best effort; persisted state is the source of truth.
func (s *serviceSession) teardown(ctx context.Context, sess *domainSession.Session) {
	if sess.Provider != domainSession.ProviderBrowserAutomation {
		return
	}
	if client, ok := s.registry.Get(sess.ID); ok {
		if err := client.Destroy(ctx); err != nil {
			logrus.WithError(err).WithField("session_id", sess.ID).Warn("[SESSION] Live client destroy failed")
		}
		s.registry.Remove(sess.ID)
	}
	if sess.Instance.URL != "" {
		if err := s.instances.StopSession(ctx, sess.Instance.URL, sess.ID); err != nil {
			logrus.WithError(err).WithField("session_id", sess.ID).Warn("[SESSION] Instance stop call failed")
		}
	}
}
