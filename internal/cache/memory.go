package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	count     int
	expiresAt time.Time
}

// Memory is an in-process cache used in tests and as a degraded fallback when
// redis is unreachable. Worst case after losing its state is a duplicate
// message or a bypassed timing gate, which the contest ledger tolerates.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{value: value, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.live(key)
	if !ok {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (c *Memory) Has(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.live(key)
	return ok, nil
}

func (c *Memory) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *Memory) CheckRateLimit(ctx context.Context, key string, maxRequests int, window time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.live(key)
	if !ok {
		// Counter creation is the only place the TTL is set (fixed window).
		c.entries[key] = memoryEntry{count: 1, expiresAt: c.now().Add(window)}
		return maxRequests >= 1, nil
	}

	entry.count++
	c.entries[key] = entry
	return entry.count <= maxRequests, nil
}

// live returns the entry under key if present and not expired, dropping it
// lazily otherwise. Callers must hold the lock.
func (c *Memory) live(key string) (memoryEntry, bool) {
	entry, ok := c.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return memoryEntry{}, false
	}
	return entry, true
}

var _ Cache = (*Memory)(nil)
