package locks

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// LocalManager provides in-process path locks for a single gateway instance.
type LocalManager struct {
	mu     sync.Mutex
	held   map[string]int // key -> number of holders
	closed bool
}

// NewLocalManager creates a new in-memory lock manager.
func NewLocalManager() *LocalManager {
	return &LocalManager{
		held: make(map[string]int),
	}
}

// TryLock implements Manager.
func (m *LocalManager) TryLock(ctx context.Context, keys ...string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keys = slices.Compact(slices.Sorted(slices.Values(keys)))

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	for _, key := range keys {
		for heldKey := range m.held {
			if overlaps(key, heldKey) {
				return nil, fmt.Errorf("%w: %q overlaps %q", ErrLocked, key, heldKey)
			}
		}
	}

	for _, key := range keys {
		m.held[key]++
	}

	var once sync.Once
	return func() {
		once.Do(func() { m.release(keys) })
	}, nil
}

func (m *LocalManager) release(keys []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		if m.held[key] <= 1 {
			delete(m.held, key)
			continue
		}
		m.held[key]--
	}
}

// Held returns the number of locked keys
func (m *LocalManager) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.held)
}

// Close clears all local locks.
func (m *LocalManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held = make(map[string]int)
	m.closed = true
	return nil
}

// overlaps reports whether a and b are the same path or one contains the other
func overlaps(a, b string) bool {
	if a == b || a == "" || b == "" {
		return true
	}
	return strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}
