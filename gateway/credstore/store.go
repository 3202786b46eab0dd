// Package credstore persists opaque browser-session credential blobs. The
// Valkey fast store is a TTL'd cache in front of a durable one-file-per-
// session backup directory; losing the fast store never loses credentials
// as long as the backup survives.
package credstore

import (
	"context"
	"time"
)

// DefaultTTL is applied when a store is built with a zero TTL.
const DefaultTTL = 7 * 24 * time.Hour

// Store is the session credential persistence contract.
type Store interface {
	// Save writes the blob to the fast store with the configured TTL, then
	// to the file backup. A fast-store failure is tolerated as long as the
	// file write succeeds.
	Save(ctx context.Context, sessionID string, blob []byte) error

	// Extract returns the blob, refreshing the fast-store TTL on hit. On a
	// fast-store miss it falls back to the file backup and re-populates the
	// fast store (read-repair). Returns (nil, nil) when nothing is stored.
	Extract(ctx context.Context, sessionID string) ([]byte, error)

	// Delete removes the blob from both tiers.
	Delete(ctx context.Context, sessionID string) error

	// Exists reports whether a blob is stored in either tier.
	Exists(ctx context.Context, sessionID string) (bool, error)

	// ListAll returns the IDs of every persisted session.
	ListAll(ctx context.Context) ([]string, error)
}
