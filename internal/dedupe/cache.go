// ABOUTME: Thread-safe TTL cache over seen platform message IDs.
// ABOUTME: Bounded by size with oldest-first eviction via a linked list.

package dedupe

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

const cleanupInterval = time.Minute

// Key builds the cache key for a platform message identifier.
func Key(platform, messageID string) string {
	return fmt.Sprintf("%s:%s", platform, messageID)
}

type entry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache tracks recently seen message keys. Entries expire after the TTL and
// the oldest entry is evicted once the cache reaches its size limit, so a
// chatty platform cannot grow it without bound.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // keys in insertion order, oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache and starts its background expiry sweep.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

// CheckAndMark atomically reports whether the key was already seen within
// the TTL, marking it seen if not. Adapters call this once per inbound
// platform update before any routing happens.
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.seen[key]; ok && time.Since(e.seenAt) < c.ttl {
		return true
	}
	c.mark(key)
	return false
}

// Seen reports whether the key is currently marked, without marking it.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.seen[key]
	return ok && time.Since(e.seenAt) < c.ttl
}

// Len returns the number of tracked keys, expired entries included until
// the next sweep.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// mark records the key, refreshing it if present. Must hold mu.
func (c *Cache) mark(key string) {
	if e, ok := c.seen[key]; ok {
		e.seenAt = time.Now()
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			oldest, _ := front.Value.(string)
			c.order.Remove(front)
			delete(c.seen, oldest)
		}
	}

	c.seen[key] = &entry{
		seenAt:  time.Now(),
		element: c.order.PushBack(key),
	}
}

func (c *Cache) sweep() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.expire()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) expire() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.seen {
		if now.Sub(e.seenAt) > c.ttl {
			c.order.Remove(e.element)
			delete(c.seen, key)
		}
	}
}

// Close stops the background sweep. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
