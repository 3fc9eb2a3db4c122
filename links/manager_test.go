package links

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T) (*LinkManager, *time.Time) {
	t.Helper()
	lm, err := NewLinkManager("secret", time.Minute, zap.NewNop())
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	lm.now = func() time.Time { return now }
	return lm, &now
}

func TestNewLinkManagerValidation(t *testing.T) {
	_, err := NewLinkManager("", time.Minute, zap.NewNop())
	assert.Error(t, err)
	_, err = NewLinkManager("s", 0, zap.NewNop())
	assert.Error(t, err)
	_, err = NewLinkManager("s", time.Minute, nil)
	assert.Error(t, err)
}

func TestLinkSingleUse(t *testing.T) {
	lm, _ := newTestManager(t)

	token, expires, err := lm.GenerateLink("docs/a.txt", 0)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 1, 0, 0, time.UTC), expires)

	path, err := lm.ValidateAndInvalidateLink(context.Background(), token, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "docs/a.txt", path)

	_, err = lm.ValidateAndInvalidateLink(context.Background(), token, "10.0.0.1")
	assert.ErrorIs(t, err, ErrLinkUsed)
}

func TestLinkExpiry(t *testing.T) {
	lm, now := newTestManager(t)

	token, _, err := lm.GenerateLink("docs/a.txt", 10*time.Second)
	require.NoError(t, err)

	*now = now.Add(11 * time.Second)
	_, err = lm.ValidateAndInvalidateLink(context.Background(), token, "")
	assert.ErrorIs(t, err, ErrLinkExpired)
}

func TestLinkTampering(t *testing.T) {
	lm, _ := newTestManager(t)
	token, _, err := lm.GenerateLink("docs/a.txt", 0)
	require.NoError(t, err)

	other, err := NewLinkManager("other-secret", time.Minute, zap.NewNop())
	require.NoError(t, err)
	_, err = other.ValidateAndInvalidateLink(context.Background(), token, "")
	assert.ErrorIs(t, err, ErrLinkInvalid)

	encoded, signature, _ := strings.Cut(token, ".")
	for _, bad := range []string{"", "nodot", "." + signature, encoded + ".AAAA", "e30." + signature} {
		_, err := lm.ValidateAndInvalidateLink(context.Background(), bad, "")
		assert.ErrorIs(t, err, ErrLinkInvalid, bad)
	}

	// still usable after the failed attempts
	_, err = lm.ValidateAndInvalidateLink(context.Background(), token, "")
	assert.NoError(t, err)
}

func TestLinkConcurrentConsumption(t *testing.T) {
	lm, _ := newTestManager(t)
	token, _, err := lm.GenerateLink("docs/a.txt", 0)
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := lm.ValidateAndInvalidateLink(context.Background(), token, ""); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestPurge(t *testing.T) {
	lm, now := newTestManager(t)

	short, _, err := lm.GenerateLink("a", 5*time.Second)
	require.NoError(t, err)
	long, _, err := lm.GenerateLink("b", time.Hour)
	require.NoError(t, err)
	_, err = lm.ValidateAndInvalidateLink(context.Background(), short, "")
	require.NoError(t, err)
	_, err = lm.ValidateAndInvalidateLink(context.Background(), long, "")
	require.NoError(t, err)

	count, err := lm.Purge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	*now = now.Add(time.Minute)
	count, err = lm.Purge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// the long-lived token is still remembered as used
	_, err = lm.ValidateAndInvalidateLink(context.Background(), long, "")
	assert.ErrorIs(t, err, ErrLinkUsed)
}

type failingStore struct{ MemoryStore }

func (*failingStore) MarkUsed(context.Context, string, time.Time, string) (bool, error) {
	return false, errors.New("store unavailable")
}

func TestLinkStoreFailure(t *testing.T) {
	lm, err := NewLinkManager("secret", time.Minute, zap.NewNop(), WithUsedStore(&failingStore{}))
	require.NoError(t, err)

	token, _, err := lm.GenerateLink("docs/a.txt", 0)
	require.NoError(t, err)

	_, err = lm.ValidateAndInvalidateLink(context.Background(), token, "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLinkUsed)
	assert.NoError(t, lm.Close())
}

func TestCleanupWorkerStops(t *testing.T) {
	lm, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	StartCleanupWorker(ctx, lm, time.Millisecond, zap.NewNop())
	time.Sleep(5 * time.Millisecond)
	cancel()

	StartCleanupWorker(context.Background(), nil, time.Second, zap.NewNop())
}

func TestTruncateToken(t *testing.T) {
	assert.Equal(t, "short", TruncateToken("short"))
	assert.Equal(t, "abcdefgh...", TruncateToken("abcdefghijk"))
}
