// ABOUTME: Tests for the message-ID dedupe cache.
// ABOUTME: Covers TTL expiry, size-bounded eviction, and concurrent marking.

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_FirstSightIsNotDuplicate(t *testing.T) {
	c := New(time.Minute, 100)
	defer c.Close()

	assert.False(t, c.CheckAndMark(Key("telegram", "42")))
	assert.True(t, c.CheckAndMark(Key("telegram", "42")))
}

func TestCache_PlatformsAreNamespaced(t *testing.T) {
	c := New(time.Minute, 100)
	defer c.Close()

	assert.False(t, c.CheckAndMark(Key("telegram", "42")))
	assert.False(t, c.CheckAndMark(Key("whatsapp", "42")))
}

func TestCache_ExpiredKeyIsNewAgain(t *testing.T) {
	c := New(10*time.Millisecond, 100)
	defer c.Close()

	assert.False(t, c.CheckAndMark("telegram:1"))
	time.Sleep(25 * time.Millisecond)
	assert.False(t, c.Seen("telegram:1"))
	assert.False(t, c.CheckAndMark("telegram:1"))
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	c := New(time.Minute, 3)
	defer c.Close()

	for i := 0; i < 3; i++ {
		c.CheckAndMark(fmt.Sprintf("telegram:%d", i))
	}
	assert.Equal(t, 3, c.Len())

	c.CheckAndMark("telegram:3")
	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Seen("telegram:0"), "oldest entry evicted")
	assert.True(t, c.Seen("telegram:3"))
}

func TestCache_RemarkRefreshesInsertionOrder(t *testing.T) {
	c := New(time.Minute, 2)
	defer c.Close()

	c.CheckAndMark("telegram:a")
	c.CheckAndMark("telegram:b")
	c.CheckAndMark("telegram:a") // refresh a; b is now oldest
	c.CheckAndMark("telegram:c")

	assert.True(t, c.Seen("telegram:a"))
	assert.False(t, c.Seen("telegram:b"))
}

func TestCache_ConcurrentCheckAndMark(t *testing.T) {
	c := New(time.Minute, 1000)
	defer c.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	duplicates := 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.CheckAndMark("telegram:shared") {
				mu.Lock()
				duplicates++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 19, duplicates, "exactly one goroutine wins the first sight")
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	c.Close()
}
