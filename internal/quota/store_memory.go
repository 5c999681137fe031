package quota

import (
	"context"
	"sync"
	"time"
)

type memoryCounter struct {
	windowStart time.Time
	used        int64
}

// MemoryStore counts requests in process memory. Single-instance only;
// deployments with more than one replica should use the database or
// redis store.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]*memoryCounter)}
}

func (s *MemoryStore) Take(ctx context.Context, userID, endpoint string, windowStart time.Time, limit int64) (int64, bool, error) {
	_ = ctx
	key := userID + ":" + endpoint

	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.counters[key]
	if !ok || !counter.windowStart.Equal(windowStart) {
		counter = &memoryCounter{windowStart: windowStart}
		s.counters[key] = counter
	}
	if counter.used >= limit {
		return counter.used, false, nil
	}
	counter.used++
	return counter.used, true, nil
}
