// Package eventring implements C4: a fixed-capacity FIFO of domain events
// with monotonic IDs and filtered queries. event_id is a strictly
// monotonic integer (`previous.event_id + 1`) rather than a random or UUID
// id, so clients can resume a query from a since_id cursor without gaps.
package eventring

import (
	"strings"
	"sync"

	"github.com/i3pm/eventcore/internal/model"
)

// BroadcastFunc is invoked after an entry is accepted into the ring, once
// per insertion, so C13 can fan it out to subscribers.
type BroadcastFunc func(model.RingEntry)

// Ring is C4's bounded event buffer. It is single-writer (C14); reads take
// a copy under a read lock so concurrent RPC queries never block the
// writer for long.
type Ring struct {
	mu          sync.RWMutex
	entries     []model.RingEntry
	maxSize     int
	nextID      int64
	totalEvents int64
	onBroadcast BroadcastFunc
}

// New returns a Ring with the given fixed capacity.
func New(maxSize int, onBroadcast BroadcastFunc) *Ring {
	if maxSize <= 0 {
		maxSize = 500
	}
	return &Ring{
		maxSize:     maxSize,
		nextID:      1,
		onBroadcast: onBroadcast,
	}
}

// Add assigns the next monotonic event_id, appends the entry, evicts the
// oldest entry if over capacity, then invokes the broadcast callback.
func (r *Ring) Add(entry model.RingEntry) model.RingEntry {
	r.mu.Lock()
	entry.EventID = r.nextID
	r.nextID++
	r.totalEvents++
	r.entries = append(r.entries, entry)
	if len(r.entries) > r.maxSize {
		r.entries = r.entries[len(r.entries)-r.maxSize:]
	}
	r.mu.Unlock()

	if r.onBroadcast != nil {
		r.onBroadcast(entry)
	}
	return entry
}

// Query returns entries most-recent-first, optionally filtered by
// event-type prefix and/or a since_id lower bound, capped at limit (0 means
// no cap).
func (r *Ring) Query(limit int, eventTypePrefix string, sinceID int64) []model.RingEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.RingEntry
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if e.EventID <= sinceID {
			continue
		}
		if eventTypePrefix != "" && !strings.HasPrefix(e.EventType, eventTypePrefix) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Stats reports the ring's current occupancy and lifetime event count.
type Stats struct {
	TotalEvents int64
	BufferSize  int
	MaxSize     int
}

func (r *Ring) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		TotalEvents: r.totalEvents,
		BufferSize:  len(r.entries),
		MaxSize:     r.maxSize,
	}
}
