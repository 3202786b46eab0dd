package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zentria/wagate/pkg/crypto"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestWorkspaceRepo(t *testing.T) (*WorkspaceGormRepository, *gorm.DB) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "workspaces_test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	repo := NewWorkspaceGormRepository(db)
	require.NoError(t, repo.Init(context.Background()))
	return repo, db
}

func TestWorkspaceCredentialsRoundTrip(t *testing.T) {
	require.NoError(t, crypto.SetEncryptionKey("workspace-test-key"))
	repo, _ := newTestWorkspaceRepo(t)
	ctx := context.Background()

	saved := WorkspaceCredentials{
		WorkspaceID:   "ws-1",
		CloudAPIToken: "EAAG-live-token",
		PhoneNumberID: "5511999990000",
		Enabled:       true,
	}
	require.NoError(t, repo.SaveCredentials(ctx, saved))

	got, err := repo.GetCredentials(ctx, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, saved, got)
}

func TestWorkspaceTokenIsSealedAtRest(t *testing.T) {
	require.NoError(t, crypto.SetEncryptionKey("workspace-test-key"))
	repo, db := newTestWorkspaceRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveCredentials(ctx, WorkspaceCredentials{
		WorkspaceID:   "ws-1",
		CloudAPIToken: "EAAG-live-token",
		Enabled:       true,
	}))

	var raw string
	require.NoError(t, db.WithContext(ctx).
		Raw("SELECT cloud_api_token FROM workspaces WHERE id = ?", "ws-1").
		Scan(&raw).Error)
	assert.NotEmpty(t, raw)
	assert.NotContains(t, raw, "EAAG-live-token")
}

func TestSaveCredentialsUpsertsExistingWorkspace(t *testing.T) {
	require.NoError(t, crypto.SetEncryptionKey("workspace-test-key"))
	repo, _ := newTestWorkspaceRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveCredentials(ctx, WorkspaceCredentials{
		WorkspaceID:   "ws-1",
		CloudAPIToken: "token-v1",
		Enabled:       true,
	}))
	require.NoError(t, repo.SaveCredentials(ctx, WorkspaceCredentials{
		WorkspaceID:   "ws-1",
		CloudAPIToken: "token-v2",
		Enabled:       false,
	}))

	got, err := repo.GetCredentials(ctx, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, "token-v2", got.CloudAPIToken)
	assert.False(t, got.Enabled)
}

func TestGetCredentialsUnknownWorkspace(t *testing.T) {
	repo, _ := newTestWorkspaceRepo(t)

	_, err := repo.GetCredentials(context.Background(), "ws-missing")
	assert.ErrorIs(t, err, ErrWorkspaceNotFound)
}
