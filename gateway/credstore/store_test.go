package credstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Tests run against the file-only configuration (nil Valkey client); the
// tier interplay is the same code path minus the cache.

func newFileOnlyStore(t *testing.T) *ValkeyStore {
	t.Helper()
	backup, err := NewFileBackup(t.TempDir())
	require.NoError(t, err)
	return NewValkeyStore(nil, backup, time.Hour)
}

func TestSaveExtractRoundTrip(t *testing.T) {
	store := newFileOnlyStore(t)
	ctx := context.Background()

	blob := []byte(`{"device_keys":"opaque-state"}`)
	require.NoError(t, store.Save(ctx, "sess-1", blob))

	got, err := store.Extract(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, blob, got)
}

func TestExtractMissingSession(t *testing.T) {
	store := newFileOnlyStore(t)

	got, err := store.Extract(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got, "a missing blob is not an error, it means fresh auth")
}

func TestSaveOverwrites(t *testing.T) {
	store := newFileOnlyStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "sess-1", []byte("v1")))
	require.NoError(t, store.Save(ctx, "sess-1", []byte("v2")))

	got, err := store.Extract(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestDelete(t *testing.T) {
	store := newFileOnlyStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "sess-1", []byte("blob")))

	exists, err := store.Exists(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.Delete(ctx, "sess-1"))

	exists, err = store.Exists(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, exists)

	got, err := store.Extract(ctx, "sess-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteMissingIsIdempotent(t *testing.T) {
	store := newFileOnlyStore(t)
	assert.NoError(t, store.Delete(context.Background(), "never-existed"))
}

func TestListAll(t *testing.T) {
	store := newFileOnlyStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "sess-a", []byte("a")))
	require.NoError(t, store.Save(ctx, "sess-b", []byte("b")))

	ids, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sess-a", "sess-b"}, ids)
}

func TestBlobsAreSealedAtRest(t *testing.T) {
	dir := t.TempDir()
	backup, err := NewFileBackup(dir)
	require.NoError(t, err)
	store := NewValkeyStore(nil, backup, time.Hour)
	ctx := context.Background()

	plain := []byte("super-secret-device-keys")
	require.NoError(t, store.Save(ctx, "sess-1", plain))

	raw, err := backup.Read("sess-1")
	require.NoError(t, err)
	require.NotNil(t, raw)
	// Without an encryption key configured the store passes blobs through;
	// either way the raw file must round-trip through Extract, and with a
	// key set it must differ from the plaintext. Here we only assert the
	// round trip, since key setup is process-global.
	got, err := store.Extract(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}
