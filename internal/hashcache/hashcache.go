// Package hashcache implements C2, a TTL map from node identity to
// (content-hash, subtree-hash) pairs enabling Merkle pruning in C3.
//
// It is single-threaded by design: C3 and the sweeper both run on the
// same event loop, so no mutex guards the underlying map; callers from
// outside that loop must not share a Cache.
package hashcache

import (
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	cache "github.com/patrickmn/go-cache"
)

// VolatileFields are excluded from the content hash: layout percentages
// and focus order churn on nearly every event without reflecting a change
// worth diffing, so hashing them would defeat the unchanged-root fast path.
var VolatileFields = map[string]struct{}{
	"last_split_layout": {},
	"focus":             {},
	"percent":           {},
}

// Stats reports the cache's current entry count.
type Stats struct {
	ItemCount int
}

// Cache is C2's fingerprint store.
type Cache struct {
	ttl                     time.Duration
	opportunisticInterval   time.Duration
	lastSweep               time.Time
	store                   *cache.Cache
}

// Fingerprint is a single cache entry, returned by Get.
type Fingerprint struct {
	NodeID      int64
	ContentHash uint64
	SubtreeHash uint64
	TS          time.Time
}

// New builds a Cache with the given TTL and opportunistic-cleanup interval.
func New(ttl, opportunisticInterval time.Duration) *Cache {
	return &Cache{
		ttl:                   ttl,
		opportunisticInterval: opportunisticInterval,
		store:                 cache.New(ttl, 0),
	}
}

// Get returns the fingerprint for nodeID, or ok=false if absent/expired.
func (c *Cache) Get(nodeID int64) (Fingerprint, bool) {
	c.maybeCleanup()
	v, ok := c.store.Get(keyOf(nodeID))
	if !ok {
		return Fingerprint{}, false
	}
	return v.(Fingerprint), true
}

// Update stores a fingerprint for nodeID, refreshing its TTL.
func (c *Cache) Update(nodeID int64, contentHash, subtreeHash uint64) {
	c.store.Set(keyOf(nodeID), Fingerprint{
		NodeID:      nodeID,
		ContentHash: contentHash,
		SubtreeHash: subtreeHash,
		TS:          time.Now(),
	}, c.ttl)
}

// UpdateBatch stores fingerprints for every (nodeID -> pair) in the map.
func (c *Cache) UpdateBatch(pairs map[int64][2]uint64) {
	for id, hashes := range pairs {
		c.Update(id, hashes[0], hashes[1])
	}
}

// Invalidate removes a single node's fingerprint.
func (c *Cache) Invalidate(nodeID int64) {
	c.store.Delete(keyOf(nodeID))
}

// CleanupExpired runs an explicit sweep and returns the number of entries
// removed. Called by C14's maintenance loop on a 60s tick.
func (c *Cache) CleanupExpired() int {
	before := c.store.ItemCount()
	c.store.DeleteExpired()
	c.lastSweep = time.Now()
	after := c.store.ItemCount()
	return before - after
}

// maybeCleanup runs the opportunistic sweep if the configured interval has
// elapsed since the last sweep (explicit or opportunistic).
func (c *Cache) maybeCleanup() {
	if time.Since(c.lastSweep) >= c.opportunisticInterval {
		c.CleanupExpired()
	}
}

// Stats returns the cache's current entry count.
func (c *Cache) Stats() Stats {
	return Stats{ItemCount: c.store.ItemCount()}
}

func keyOf(nodeID int64) string {
	// go-cache keys on string; node ids are small positive integers so a
	// decimal encoding is cheap and avoids strconv import churn elsewhere.
	return itoa(nodeID)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// ContentHash hashes a flattened node field map, excluding children and the
// volatile field set, with deterministic key ordering.
func ContentHash(fields map[string]interface{}) uint64 {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if _, volatile := VolatileFields[k]; volatile {
			continue
		}
		if k == "nodes" || k == "floating_nodes" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := xxhash.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		writeValue(h, fields[k])
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// SubtreeHash combines a node's content hash with its ordered child subtree
// hashes (regular children followed by floating children).
func SubtreeHash(contentHash uint64, childHashes, floatingChildHashes []uint64) uint64 {
	h := xxhash.New()
	var buf [8]byte
	putUint64(buf[:], contentHash)
	h.Write(buf[:])
	for _, c := range childHashes {
		putUint64(buf[:], c)
		h.Write(buf[:])
	}
	for _, c := range floatingChildHashes {
		putUint64(buf[:], c)
		h.Write(buf[:])
	}
	return h.Sum64()
}

func putUint64(buf []byte, v uint64) {
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
}

type hashWriter interface {
	Write(p []byte) (int, error)
}

func writeValue(h hashWriter, v interface{}) {
	switch t := v.(type) {
	case string:
		h.Write([]byte(t))
	case bool:
		if t {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	case int:
		h.Write([]byte(itoa(int64(t))))
	case int64:
		h.Write([]byte(itoa(t)))
	case float64:
		h.Write([]byte(itoa(int64(t * 1000))))
	case nil:
		h.Write([]byte("nil"))
	default:
		h.Write([]byte("?"))
	}
}
