package credstore

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/zentria/wagate/infrastructure/valkey"
	"github.com/zentria/wagate/pkg/crypto"
)

// fastTier is the cache side of the two-tier store. It holds sealed blobs
// keyed by session identifier; entries may expire or vanish at any time.
type fastTier interface {
	get(ctx context.Context, sessionID string) (sealed []byte, ok bool, err error)
	set(ctx context.Context, sessionID string, sealed []byte) error
	refresh(ctx context.Context, sessionID string) error
	delete(ctx context.Context, sessionID string) error
	exists(ctx context.Context, sessionID string) (bool, error)
}

// valkeyTier stores base64-encoded sealed blobs under namespaced keys with a
// sliding TTL.
type valkeyTier struct {
	client *valkey.Client
	ttl    time.Duration
}

func (t *valkeyTier) key(sessionID string) string {
	return t.client.Key("session", sessionID)
}

func (t *valkeyTier) get(ctx context.Context, sessionID string) ([]byte, bool, error) {
	cmd := t.client.Inner().B().Get().Key(t.key(sessionID)).Build()
	encoded, err := t.client.Inner().Do(ctx, cmd).ToString()
	if err != nil {
		if valkey.IsNil(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, false, fmt.Errorf("corrupt cache entry: %w", err)
	}
	return sealed, true, nil
}

func (t *valkeyTier) set(ctx context.Context, sessionID string, sealed []byte) error {
	cmd := t.client.Inner().B().Set().
		Key(t.key(sessionID)).
		Value(base64.StdEncoding.EncodeToString(sealed)).
		Ex(t.ttl).
		Build()
	return t.client.Inner().Do(ctx, cmd).Error()
}

func (t *valkeyTier) refresh(ctx context.Context, sessionID string) error {
	cmd := t.client.Inner().B().Expire().
		Key(t.key(sessionID)).
		Seconds(int64(t.ttl.Seconds())).
		Build()
	return t.client.Inner().Do(ctx, cmd).Error()
}

func (t *valkeyTier) delete(ctx context.Context, sessionID string) error {
	cmd := t.client.Inner().B().Del().Key(t.key(sessionID)).Build()
	return t.client.Inner().Do(ctx, cmd).Error()
}

func (t *valkeyTier) exists(ctx context.Context, sessionID string) (bool, error) {
	cmd := t.client.Inner().B().Exists().Key(t.key(sessionID)).Build()
	count, err := t.client.Inner().Do(ctx, cmd).AsInt64()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ValkeyStore implements Store with Valkey as the fast tier and a
// FileBackup as the durable tier. Blobs are AES-GCM encrypted before they
// touch either tier.
type ValkeyStore struct {
	fast   fastTier
	backup *FileBackup

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewValkeyStore creates the two-tier store. client may be nil, in which
// case only the file backup is used (single-node deployments without
// Valkey).
func NewValkeyStore(client *valkey.Client, backup *FileBackup, ttl time.Duration) *ValkeyStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &ValkeyStore{
		backup: backup,
		locks:  make(map[string]*sync.Mutex),
	}
	if client != nil {
		s.fast = &valkeyTier{client: client, ttl: ttl}
	}
	return s
}

// lockFor serializes operations per session identifier so a backup-timer
// fire and a concurrent logout never interleave destructively.
func (s *ValkeyStore) lockFor(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	return l
}

func (s *ValkeyStore) Save(ctx context.Context, sessionID string, blob []byte) error {
	l := s.lockFor(sessionID)
	l.Lock()
	defer l.Unlock()

	sealed, err := crypto.Encrypt(blob)
	if err != nil {
		return fmt.Errorf("failed to encrypt credential blob: %w", err)
	}

	var fastErr error
	if s.fast != nil {
		fastErr = s.fast.set(ctx, sessionID, sealed)
		if fastErr != nil {
			logrus.Warnf("[CREDSTORE] Fast-store write failed for %s, relying on file backup: %v", sessionID, fastErr)
		}
	}

	// The fast store is a cache; the file backup is the source of truth.
	if err := s.backup.Write(sessionID, sealed); err != nil {
		if fastErr == nil && s.fast != nil {
			// Fast tier took it, so the save is not lost entirely.
			logrus.Errorf("[CREDSTORE] File backup failed for %s: %v", sessionID, err)
			return nil
		}
		return fmt.Errorf("failed to persist credential blob: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"size":       humanize.Bytes(uint64(len(sealed))),
	}).Debug("[CREDSTORE] Credential blob saved")
	return nil
}

func (s *ValkeyStore) Extract(ctx context.Context, sessionID string) ([]byte, error) {
	l := s.lockFor(sessionID)
	l.Lock()
	defer l.Unlock()

	if s.fast != nil {
		sealed, ok, err := s.fast.get(ctx, sessionID)
		if err != nil {
			logrus.Warnf("[CREDSTORE] Fast-store read failed for %s, falling back to file: %v", sessionID, err)
		} else if ok {
			// Refresh TTL on every successful read.
			if refErr := s.fast.refresh(ctx, sessionID); refErr != nil {
				logrus.Warnf("[CREDSTORE] TTL refresh failed for %s: %v", sessionID, refErr)
			}
			return crypto.Decrypt(sealed)
		}
	}

	sealed, err := s.backup.Read(sessionID)
	if err != nil {
		return nil, err
	}
	if sealed == nil {
		return nil, nil
	}

	// Read-repair: a cold fast store is re-populated from the backup.
	if s.fast != nil {
		if repErr := s.fast.set(ctx, sessionID, sealed); repErr != nil {
			logrus.Warnf("[CREDSTORE] Read-repair failed for %s: %v", sessionID, repErr)
		}
	}

	return crypto.Decrypt(sealed)
}

func (s *ValkeyStore) Delete(ctx context.Context, sessionID string) error {
	l := s.lockFor(sessionID)
	l.Lock()
	defer l.Unlock()

	if s.fast != nil {
		if err := s.fast.delete(ctx, sessionID); err != nil {
			logrus.Warnf("[CREDSTORE] Fast-store delete failed for %s: %v", sessionID, err)
		}
	}
	return s.backup.Delete(sessionID)
}

func (s *ValkeyStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	if s.fast != nil {
		hit, err := s.fast.exists(ctx, sessionID)
		if err == nil && hit {
			return true, nil
		}
	}
	return s.backup.Exists(sessionID), nil
}

func (s *ValkeyStore) ListAll(ctx context.Context) ([]string, error) {
	// The file backup is authoritative for enumeration; fast-store entries
	// may have expired.
	return s.backup.List()
}
