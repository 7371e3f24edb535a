package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	count   int
	resetAt time.Time
}

// MemoryStore keeps counters in a map guarded by a mutex. Expired buckets
// are swept every sweepEvery checks.
type MemoryStore struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	now        func() time.Time
	checks     int
	sweepEvery int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets:    make(map[string]*bucket),
		now:        time.Now,
		sweepEvery: 1000,
	}
}

func (m *MemoryStore) Check(_ context.Context, key string, limit int, window time.Duration) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.checks++
	if m.checks%m.sweepEvery == 0 {
		for k, b := range m.buckets {
			if !now.Before(b.resetAt) {
				delete(m.buckets, k)
			}
		}
	}

	b, ok := m.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		_, end := windowBounds(now, window)
		b = &bucket{resetAt: end}
		m.buckets[key] = b
	}
	b.count++
	return result(b.count, limit, b.resetAt), nil
}

func (m *MemoryStore) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}
