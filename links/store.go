package links

import (
	"context"
	"sync"
	"time"
)

// UsedStore remembers consumed token IDs until their links expire.
type UsedStore interface {
	// MarkUsed records id and reports whether this call was the first to do so.
	MarkUsed(ctx context.Context, id string, expires time.Time, usedBy string) (bool, error)
	// Purge forgets the IDs whose links expired before now.
	Purge(ctx context.Context, now time.Time) (int, error)
	Close() error
}

// MemoryStore keeps consumed IDs in process memory. Links consumed before a
// restart become usable again until they expire.
type MemoryStore struct {
	mu   sync.Mutex
	used map[string]time.Time // token ID -> expiry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{used: make(map[string]time.Time)}
}

func (s *MemoryStore) MarkUsed(_ context.Context, id string, expires time.Time, _ string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.used[id]; seen {
		return false, nil
	}
	s.used[id] = expires
	return true, nil
}

func (s *MemoryStore) Purge(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, expires := range s.used {
		if now.After(expires) {
			delete(s.used, id)
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) Close() error { return nil }
