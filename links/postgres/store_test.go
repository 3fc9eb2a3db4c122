package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/links"
)

var _ links.UsedStore = (*Store)(nil)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("DISKFS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DISKFS_TEST_POSTGRES_DSN not set")
	}

	store, err := NewStore(dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMarkUsedOnce(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id := uuid.NewString()
	expires := time.Now().Add(time.Hour)

	first, err := store.MarkUsed(ctx, id, expires, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, first)

	first, err = store.MarkUsed(ctx, id, expires, "10.0.0.2")
	require.NoError(t, err)
	assert.False(t, first)
}

func TestMigrationsIdempotent(t *testing.T) {
	newTestStore(t)
	assert.NoError(t, RunMigrations(os.Getenv("DISKFS_TEST_POSTGRES_DSN")))
}

func TestPurgeExpired(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	expired := uuid.NewString()
	live := uuid.NewString()
	_, err := store.MarkUsed(ctx, expired, time.Now().Add(-time.Minute), "")
	require.NoError(t, err)
	_, err = store.MarkUsed(ctx, live, time.Now().Add(time.Hour), "")
	require.NoError(t, err)

	count, err := store.Purge(ctx, time.Now())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 1)

	first, err := store.MarkUsed(ctx, expired, time.Now().Add(time.Hour), "")
	require.NoError(t, err)
	assert.True(t, first, "purged IDs are forgotten")

	first, err = store.MarkUsed(ctx, live, time.Now().Add(time.Hour), "")
	require.NoError(t, err)
	assert.False(t, first)
}
