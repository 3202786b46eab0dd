package authstate

import (
	"sync"
	"time"

	"github.com/zentria/wagate/gateway/credstore"
	"github.com/zentria/wagate/pkg/utils"
)

// Manager hands out one Strategy per session, created lazily and shared by
// everything that reacts to that session's lifecycle.
type Manager struct {
	baseDir        string
	store          credstore.Store
	backupInterval time.Duration

	mu         sync.Mutex
	strategies map[string]*Strategy
}

func NewManager(baseDir string, store credstore.Store, backupInterval time.Duration) *Manager {
	if backupInterval <= 0 {
		backupInterval = DefaultBackupInterval
	}
	return &Manager{
		baseDir:        baseDir,
		store:          store,
		backupInterval: backupInterval,
		strategies:     make(map[string]*Strategy),
	}
}

// For returns the session's strategy, creating it on first use.
func (m *Manager) For(sessionID string) *Strategy {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.strategies[sessionID]; ok {
		return s
	}
	s := NewStrategy(sessionID, utils.GetSessionStatePath(m.baseDir, sessionID), m.store, m.backupInterval)
	m.strategies[sessionID] = s
	return s
}

// Forget drops the cached strategy after a session is fully torn down.
func (m *Manager) Forget(sessionID string) {
	m.mu.Lock()
	delete(m.strategies, sessionID)
	m.mu.Unlock()
}
