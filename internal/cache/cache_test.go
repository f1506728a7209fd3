package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newClockedCache(maxSize int, ttl time.Duration) (*LRUCache[int], *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[int](maxSize, ttl)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestLRUEviction(t *testing.T) {
	c, _ := newClockedCache(2, time.Hour)
	c.Set("coupon", 1)
	c.Set("custody fee", 3)

	_, ok := c.Get("coupon")
	assert.True(t, ok)

	c.Set("wire transfer", 5)
	_, ok = c.Get("custody fee")
	assert.False(t, ok, "least recently used entry evicted")

	v, ok := c.Get("coupon")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Size())
	assert.Equal(t, Stats{Hits: 2, Misses: 1, Evictions: 1}, c.Stats())
}

func TestLRUOverwrite(t *testing.T) {
	c, _ := newClockedCache(2, time.Hour)
	c.Set("fx spot", 4)
	c.Set("fx spot", 0)
	v, ok := c.Get("fx spot")
	assert.True(t, ok)
	assert.Equal(t, 0, v)
	assert.Equal(t, 1, c.Size())

	c.Delete("fx spot")
	c.Delete("missing")
	assert.Equal(t, 0, c.Size())
}

func TestLRUExpiry(t *testing.T) {
	c, now := newClockedCache(10, time.Minute)
	c.Set("a", 1)
	*now = now.Add(30 * time.Second)
	c.Set("b", 2)
	*now = now.Add(45 * time.Second)

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Size())

	*now = now.Add(time.Minute)
	assert.Equal(t, 1, c.CleanExpired())
	assert.Equal(t, 0, c.Size())
	assert.Equal(t, int64(2), c.Stats().Expired)
}

func TestMinimumSize(t *testing.T) {
	c := NewLRUCache[string](0, time.Minute)
	c.Set("a", "x")
	c.Set("b", "y")
	assert.Equal(t, 1, c.Size())
}

func TestManager(t *testing.T) {
	c, now := newClockedCache(10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	m := NewManager(nil)
	m.Register("clusters", c)
	assert.Equal(t, 0, m.CleanAll())

	*now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, m.CleanAll())

	m.StartCleanup(time.Hour)
	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()
}

func TestManagerStopWithoutStart(t *testing.T) {
	m := NewManager(nil)
	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a manager that never started")
	}
}
