// Package authstate drives credential persistence through the automation
// client's lifecycle. The callback hooks of the original client are modeled
// as an explicit state machine with named transition methods, each
// synchronous-to-completion from the session supervisor's point of view.
package authstate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zentria/wagate/gateway/credstore"
)

// Phase is the lifecycle position of the strategy.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseReady        Phase = "ready"
	PhaseConnecting   Phase = "connecting"
	PhaseConnected    Phase = "connected"
	PhaseDisconnected Phase = "disconnected"
	PhaseDestroyed    Phase = "destroyed"
)

// DefaultBackupInterval is the period of the live-session backup timer.
const DefaultBackupInterval = 60 * time.Second

// Strategy persists one session's browser-automation state across process
// restarts and worker handoffs. All transition methods are safe for
// concurrent use; the backup timer and logout/destroy serialize on the
// strategy's own mutex plus the store's per-session lock.
type Strategy struct {
	sessionID      string
	stateDir       string
	store          credstore.Store
	backupInterval time.Duration

	mu       sync.Mutex
	phase    Phase
	stopCh   chan struct{}
	stopOnce *sync.Once
}

func NewStrategy(sessionID, stateDir string, store credstore.Store, backupInterval time.Duration) *Strategy {
	if backupInterval <= 0 {
		backupInterval = DefaultBackupInterval
	}
	return &Strategy{
		sessionID:      sessionID,
		stateDir:       stateDir,
		store:          store,
		backupInterval: backupInterval,
		phase:          PhaseIdle,
	}
}

// Phase returns the current lifecycle phase.
func (s *Strategy) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Setup prepares the strategy. Must be called before any other transition.
func (s *Strategy) Setup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseIdle {
		return fmt.Errorf("setup called in phase %s", s.phase)
	}
	s.phase = PhaseReady
	return nil
}

// BeforeConnect materializes persisted credentials into the local state
// directory so the automation client finds them where it expects. A missing
// blob is not an error; the client will go through QR authentication.
func (s *Strategy) BeforeConnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseReady && s.phase != PhaseDisconnected {
		return fmt.Errorf("before-connect called in phase %s", s.phase)
	}

	exists, err := s.store.Exists(ctx, s.sessionID)
	if err != nil {
		return fmt.Errorf("failed to check persisted credentials: %w", err)
	}
	if exists {
		blob, err := s.store.Extract(ctx, s.sessionID)
		if err != nil {
			return fmt.Errorf("failed to extract credentials: %w", err)
		}
		if blob != nil {
			if err := restoreDir(s.stateDir, blob); err != nil {
				// A corrupt blob means fresh authentication, not a hard
				// failure.
				logrus.Warnf("[AUTHSTATE] Could not restore session %s from store, starting fresh: %v", s.sessionID, err)
			} else {
				logrus.Infof("[AUTHSTATE] Session %s restored from credential store", s.sessionID)
			}
		}
	}

	s.phase = PhaseConnecting
	return nil
}

// AfterAuth marks the client as authenticated and takes an immediate backup
// so a crash between auth and connect does not lose the fresh credentials.
func (s *Strategy) AfterAuth(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseConnecting {
		return fmt.Errorf("after-auth called in phase %s", s.phase)
	}
	return s.backupLocked(ctx)
}

// AfterConnect starts the periodic backup timer.
func (s *Strategy) AfterConnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseConnecting {
		return fmt.Errorf("after-connect called in phase %s", s.phase)
	}
	s.phase = PhaseConnected

	s.stopCh = make(chan struct{})
	s.stopOnce = &sync.Once{}
	go s.backupLoop(s.stopCh)

	logrus.Infof("[AUTHSTATE] Backup timer started for session %s (interval: %s)", s.sessionID, s.backupInterval)
	return nil
}

// Disconnect stops the backup timer but keeps the persisted blob so the
// session can be restored.
func (s *Strategy) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.phase = PhaseDisconnected
	return nil
}

// Logout stops the backup timer and deletes the persisted blob; the user
// explicitly severed the link, so restoring it later would be wrong.
func (s *Strategy) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.phase = PhaseDisconnected

	if err := s.store.Delete(ctx, s.sessionID); err != nil {
		return fmt.Errorf("failed to delete persisted credentials: %w", err)
	}
	logrus.Infof("[AUTHSTATE] Credentials deleted for session %s (logout)", s.sessionID)
	return nil
}

// Destroy stops the backup timer and takes a final backup. The blob is kept:
// destroy tears down the client, not the authentication.
func (s *Strategy) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()

	if s.phase == PhaseConnected {
		if err := s.backupLocked(ctx); err != nil {
			logrus.Warnf("[AUTHSTATE] Final backup failed for session %s: %v", s.sessionID, err)
		}
	}
	s.phase = PhaseDestroyed
	return nil
}

func (s *Strategy) stopTimerLocked() {
	if s.stopCh != nil && s.stopOnce != nil {
		ch := s.stopCh
		s.stopOnce.Do(func() { close(ch) })
		s.stopCh = nil
	}
}

func (s *Strategy) backupLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(s.backupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			s.mu.Lock()
			if s.phase == PhaseConnected {
				if err := s.backupLocked(ctx); err != nil {
					logrus.Warnf("[AUTHSTATE] Periodic backup failed for session %s: %v", s.sessionID, err)
				}
			}
			s.mu.Unlock()
			cancel()
		}
	}
}

// backupLocked serializes the on-disk session directory into the store.
// Caller holds s.mu.
func (s *Strategy) backupLocked(ctx context.Context) error {
	blob, err := archiveDir(s.stateDir)
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, s.sessionID, blob); err != nil {
		return err
	}
	logrus.Debugf("[AUTHSTATE] Session %s backed up", s.sessionID)
	return nil
}
