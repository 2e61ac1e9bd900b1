package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/seo401b/new-Allert/internal/domain"
)

const (
	defaultSweepInterval = 10 * time.Minute
	defaultMaxEntries    = 1024
)

// Options controls sweeping and the entry bound
type Options struct {
	SweepInterval time.Duration // Non-positive uses ten minutes
	MaxEntries    int           // Non-positive uses 1024
}

// entry is one cached payload with its expiry
type entry struct {
	value     []byte
	expiresAt time.Time
	seq       uint64 // Insertion order, used to pick eviction victims
}

func (e entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// MemoryCache is a thread-safe in-memory byte cache with TTL support.
// Values are copied in and out so callers can't mutate cached payloads.
// Once MaxEntries is reached, storing a new key evicts expired entries first
// and then the oldest stored one.
type MemoryCache struct {
	data       map[string]entry
	mutex      sync.RWMutex
	now        func() time.Time
	maxEntries int
	nextSeq    uint64

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryCache creates a new in-memory cache and starts its sweeper
func NewMemoryCache(opts Options) *MemoryCache {
	sweepInterval := opts.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}

	c := &MemoryCache{
		data:       make(map[string]entry),
		now:        time.Now,
		maxEntries: maxEntries,
		stop:       make(chan struct{}),
	}
	go c.sweep(sweepInterval)

	return c
}

// Get retrieves a value from the cache
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	e, ok := c.data[key]
	if !ok || e.expired(c.now()) {
		return nil, domain.ErrCacheMiss
	}

	return slices.Clone(e.value), nil
}

// Set stores a value in the cache with TTL
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, exists := c.data[key]; !exists && len(c.data) >= c.maxEntries {
		c.makeRoomLocked()
	}

	c.nextSeq++
	c.data[key] = entry{
		value:     slices.Clone(value),
		expiresAt: c.now().Add(ttl),
		seq:       c.nextSeq,
	}

	return nil
}

// makeRoomLocked drops expired entries, or the oldest one if none expired
func (c *MemoryCache) makeRoomLocked() {
	c.removeExpiredLocked()
	if len(c.data) < c.maxEntries {
		return
	}

	var oldestKey string
	var oldestSeq uint64
	first := true
	for key, e := range c.data {
		if first || e.seq < oldestSeq {
			oldestKey, oldestSeq, first = key, e.seq, false
		}
	}
	delete(c.data, oldestKey)
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.data, key)
	return nil
}

// Exists checks if a key exists in the cache and is not expired
func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	e, ok := c.data[key]
	return ok && !e.expired(c.now()), nil
}

// Size returns the number of stored entries, expired ones included until swept
func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.data)
}

// Close stops the sweeper. It is safe to call more than once.
func (c *MemoryCache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

func (c *MemoryCache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *MemoryCache) removeExpired() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.removeExpiredLocked()
}

func (c *MemoryCache) removeExpiredLocked() {
	now := c.now()
	for key, e := range c.data {
		if e.expired(now) {
			delete(c.data, key)
		}
	}
}
