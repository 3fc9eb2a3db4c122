package locks

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryLockConflicts(t *testing.T) {
	ctx := context.Background()
	m := NewLocalManager()

	release, err := m.TryLock(ctx, "docs/sub")
	require.NoError(t, err)

	tests := []struct {
		key      string
		conflict bool
	}{
		{"docs/sub", true},
		{"docs", true},
		{"docs/sub/a.txt", true},
		{"", true},
		{"docs/subway", false},
		{"other", false},
	}
	for _, tt := range tests {
		r, err := m.TryLock(ctx, tt.key)
		if tt.conflict {
			assert.ErrorIs(t, err, ErrLocked, tt.key)
			continue
		}
		require.NoError(t, err, tt.key)
		r()
	}

	release()
	release()
	assert.Zero(t, m.Held())

	r, err := m.TryLock(ctx, "docs")
	require.NoError(t, err)
	r()
}

func TestTryLockAllOrNothing(t *testing.T) {
	ctx := context.Background()
	m := NewLocalManager()

	hold, err := m.TryLock(ctx, "b")
	require.NoError(t, err)

	_, err = m.TryLock(ctx, "a", "b")
	require.ErrorIs(t, err, ErrLocked)
	assert.Equal(t, 1, m.Held(), "a must not stay locked")

	hold()
	release, err := m.TryLock(ctx, "a", "b", "a")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Held())
	release()
}

func TestTryLockContextAndClose(t *testing.T) {
	m := NewLocalManager()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.TryLock(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, m.Close())
	_, err = m.TryLock(context.Background(), "a")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestTryLockConcurrent(t *testing.T) {
	ctx := context.Background()
	m := NewLocalManager()

	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0
	releases := make([]func(), 0)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r, err := m.TryLock(ctx, "same/key"); err == nil {
				mu.Lock()
				acquired++
				releases = append(releases, r)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, acquired)
	for _, r := range releases {
		r()
	}
	assert.Zero(t, m.Held())
}
