// Package registry tracks the live automation clients owned by this worker
// process. It is an explicit, injectable object created by the composition
// root and passed to the health monitor and sync handler; nothing in the
// codebase reaches it through package globals.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/zentria/wagate/gateway/domain/envelope"
)

// RawChat is one conversation as reported by an automation client, before
// transformation into the normalized envelope shape.
type RawChat struct {
	RemoteID        string
	IsGroup         bool
	Name            string
	LastMessageBody string
	LastMessageType string
	Timestamp       time.Time
	UnreadCount     int
}

// RawChatState is the detail view of a single chat: the counterpart contact
// for private chats, the roster for groups.
type RawChatState struct {
	Contact      *envelope.Contact
	GroupName    string
	GroupDesc    string
	Participants []envelope.Participant
}

// AutomationClient is the opaque capability surface of one live
// browser-automation session. The protocol behind it is out of scope; the
// gateway only fetches chats, fetches chat state, sends, and destroys.
type AutomationClient interface {
	GetChats(ctx context.Context) ([]RawChat, error)
	GetChatState(ctx context.Context, remoteID string) (RawChatState, error)
	SendMessage(ctx context.Context, phoneNumber, body string) (string, error)
	Destroy(ctx context.Context) error
}

type entry struct {
	client       AutomationClient
	lastActivity time.Time
}

// Registry is the live client table for this process. Only one worker owns
// a given live session at a time; cross-worker handoff happens through the
// reconciliation job, never concurrent ownership.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func New() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Put registers (or replaces) the live client for a session.
func (r *Registry) Put(sessionID string, client AutomationClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[sessionID] = &entry{client: client}
}

// Get returns the live client for a session, if this process owns one.
func (r *Registry) Get(sessionID string) (AutomationClient, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[sessionID]
	if !ok {
		return nil, false
	}
	return e.client, true
}

// Remove drops the live client for a session.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, sessionID)
}

// TouchActivity records inbound activity for a session. Outbound sends by
// the gateway itself deliberately do not call this; only inbound receipt
// counts as activity for the health monitor.
func (r *Registry) TouchActivity(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[sessionID]; ok {
		e.lastActivity = time.Now()
	}
}

// LastActivity returns the in-process activity timestamp for a session.
func (r *Registry) LastActivity(sessionID string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[sessionID]
	if !ok || e.lastActivity.IsZero() {
		return time.Time{}, false
	}
	return e.lastActivity, true
}

// SessionIDs returns the sessions this process currently owns.
func (r *Registry) SessionIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}

// LockFor returns the per-session mutex used to serialize restart sequences
// against concurrent sends and backups for the same session.
func (r *Registry) LockFor(sessionID string) *sync.Mutex {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	l, ok := r.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[sessionID] = l
	}
	return l
}
