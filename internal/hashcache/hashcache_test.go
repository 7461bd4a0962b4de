package hashcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestContentHashDeterministic(t *testing.T) {
	node := map[string]interface{}{
		"id":      int64(42),
		"name":    "firefox",
		"focus":   true, // volatile, excluded
		"percent": 0.5,  // volatile, excluded
	}

	a := ContentHash(node)
	b := ContentHash(node)
	assert.Equal(t, a, b)

	without := map[string]interface{}{
		"id":   int64(42),
		"name": "firefox",
	}
	assert.Equal(t, a, ContentHash(without), "volatile fields must not affect the content hash")
}

func TestContentHashDiffersOnRealChange(t *testing.T) {
	a := ContentHash(map[string]interface{}{"id": int64(1), "name": "a"})
	b := ContentHash(map[string]interface{}{"id": int64(1), "name": "b"})
	assert.NotEqual(t, a, b)
}

func TestSubtreeHashOrderSensitive(t *testing.T) {
	content := ContentHash(map[string]interface{}{"id": int64(1)})
	ab := SubtreeHash(content, []uint64{1, 2}, nil)
	ba := SubtreeHash(content, []uint64{2, 1}, nil)
	assert.NotEqual(t, ab, ba, "child order participates in the subtree hash")
}

func TestCacheGetSetInvalidate(t *testing.T) {
	c := New(60*time.Second, 10*time.Second)

	_, ok := c.Get(1)
	assert.False(t, ok)

	c.Update(1, 100, 200)
	fp, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, uint64(100), fp.ContentHash)
	assert.Equal(t, uint64(200), fp.SubtreeHash)

	c.Invalidate(1)
	_, ok = c.Get(1)
	assert.False(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	c := New(10*time.Millisecond, time.Hour)
	c.Update(1, 1, 1)
	time.Sleep(30 * time.Millisecond)
	_, ok := c.Get(1)
	assert.False(t, ok, "entry older than TTL must be treated as absent")
}

func TestCleanupExpiredReportsCount(t *testing.T) {
	c := New(5*time.Millisecond, time.Hour)
	c.Update(1, 1, 1)
	c.Update(2, 2, 2)
	time.Sleep(20 * time.Millisecond)
	removed := c.CleanupExpired()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, c.Stats().ItemCount)
}
