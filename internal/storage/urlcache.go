package storage

import (
	"context"
	"sync"
	"time"
)

// URLCache remembers signed URLs by object key.
type URLCache interface {
	Get(key string) (string, bool)
	Set(key, url string, ttl time.Duration)
	Delete(key string)
}

type cachedURL struct {
	url       string
	expiresAt time.Time
}

// MemoryURLCache is a process-local URLCache. Entries are dropped lazily on
// read and when the map grows past maxEntries.
type MemoryURLCache struct {
	mu         sync.Mutex
	entries    map[string]cachedURL
	now        func() time.Time
	maxEntries int
}

func NewMemoryURLCache() *MemoryURLCache {
	return &MemoryURLCache{entries: make(map[string]cachedURL), now: time.Now, maxEntries: 10000}
}

func (c *MemoryURLCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return "", false
	}
	return entry.url, true
}

func (c *MemoryURLCache) Set(key, url string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if len(c.entries) >= c.maxEntries {
		for k, e := range c.entries {
			if !now.Before(e.expiresAt) {
				delete(c.entries, k)
			}
		}
	}
	c.entries[key] = cachedURL{url: url, expiresAt: now.Add(ttl)}
}

func (c *MemoryURLCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Signer presigns object URLs through a cache. Cached entries live for half
// the URL lifetime so a served URL is always valid for at least ttl/2.
type Signer struct {
	objects ObjectStore
	cache   URLCache
	ttl     time.Duration
}

func NewSigner(objects ObjectStore, cache URLCache, ttl time.Duration) *Signer {
	return &Signer{objects: objects, cache: cache, ttl: ttl}
}

func (s *Signer) URL(ctx context.Context, key string) (string, error) {
	if url, ok := s.cache.Get(key); ok {
		return url, nil
	}
	url, err := s.objects.PresignGet(ctx, key, s.ttl)
	if err != nil {
		return "", err
	}
	s.cache.Set(key, url, s.ttl/2)
	return url, nil
}

// Forget drops a cached URL, used when the object is replaced or removed.
func (s *Signer) Forget(key string) {
	s.cache.Delete(key)
}
