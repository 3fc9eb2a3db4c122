package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/links"
)

var _ links.UsedStore = (*Store)(nil)

func TestMarkUsedOnce(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(filepath.Join(t.TempDir(), "links.db"), zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	expires := time.Now().Add(time.Hour)

	first, err := store.MarkUsed(ctx, "id-1", expires, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, first)

	first, err = store.MarkUsed(ctx, "id-1", expires, "10.0.0.2")
	require.NoError(t, err)
	assert.False(t, first)

	first, err = store.MarkUsed(ctx, "id-2", expires, "")
	require.NoError(t, err)
	assert.True(t, first)
}

func TestUsedLinksSurviveReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "links.db")

	store, err := NewStore(dbPath, zap.NewNop())
	require.NoError(t, err)
	_, err = store.MarkUsed(ctx, "id-1", time.Now().Add(time.Hour), "")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = NewStore(dbPath, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	first, err := store.MarkUsed(ctx, "id-1", time.Now().Add(time.Hour), "")
	require.NoError(t, err)
	assert.False(t, first)
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(filepath.Join(t.TempDir(), "links.db"), zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	_, err = store.MarkUsed(ctx, "short", now.Add(5*time.Second), "")
	require.NoError(t, err)
	_, err = store.MarkUsed(ctx, "long", now.Add(time.Hour), "")
	require.NoError(t, err)

	count, err := store.Purge(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	count, err = store.Purge(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	first, err := store.MarkUsed(ctx, "long", now.Add(time.Hour), "")
	require.NoError(t, err)
	assert.False(t, first)
}

func TestLinkManagerWithStore(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "links.db"), zap.NewNop())
	require.NoError(t, err)

	lm, err := links.NewLinkManager("secret", time.Minute, zap.NewNop(), links.WithUsedStore(store))
	require.NoError(t, err)
	defer lm.Close()

	token, _, err := lm.GenerateLink("docs/a.txt", 0)
	require.NoError(t, err)

	path, err := lm.ValidateAndInvalidateLink(context.Background(), token, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "docs/a.txt", path)

	_, err = lm.ValidateAndInvalidateLink(context.Background(), token, "10.0.0.1")
	assert.ErrorIs(t, err, links.ErrLinkUsed)
}
