package repository_test

import (
	"context"
	"io/fs"
	"path/filepath"
	"testing"

	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsAreEmbedded(t *testing.T) {
	migrations, err := repository.MigrationsFS()
	require.NoError(t, err)

	ups, err := fs.Glob(migrations, "*.up.sql")
	require.NoError(t, err)
	assert.Len(t, ups, 2)

	downs, err := fs.Glob(migrations, "*.down.sql")
	require.NoError(t, err)
	assert.Len(t, downs, len(ups))
}

func TestOpenMigratesSchema(t *testing.T) {
	ctx := context.Background()

	manager, db, err := repository.Open(ctx, repository.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	scope := identity.Scope{TenantID: 1, Domain: "PRIMARY"}
	stored, err := manager.IdentityStates().Store(ctx, &identity.IdentityState{
		Username:        "alice",
		TenantID:        scope.TenantID,
		UserStoreDomain: scope.Domain,
		RecoveryClaims:  map[string]string{"http://wso2.org/claims/email": "alice@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)

	loaded, err := manager.IdentityStates().Load(ctx, "alice", scope)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, loaded.ID)
	assert.Equal(t, "alice@example.com", loaded.RecoveryClaims["http://wso2.org/claims/email"])
}

func TestOpenIsIdempotentOnExistingDatabase(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "identity.db")

	_, first, err := repository.Open(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	manager, second, err := repository.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	_, err = manager.RecoveryData().Load(ctx, "alice", 1)
	assert.NoError(t, err)
}

func TestSchemaEnforcesUniqueScope(t *testing.T) {
	ctx := context.Background()

	_, db, err := repository.Open(ctx, repository.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.NewInsert().Model(&identity.IdentityState{
		Username: "alice", TenantID: 1, UserStoreDomain: "PRIMARY",
	}).Value("id", "?", "a").Exec(ctx)
	require.NoError(t, err)

	_, err = db.NewInsert().Model(&identity.IdentityState{
		Username: "alice", TenantID: 1, UserStoreDomain: "PRIMARY",
	}).Value("id", "?", "b").Exec(ctx)
	assert.Error(t, err)
}
