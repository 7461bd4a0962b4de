package eventring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i3pm/eventcore/internal/model"
)

func TestAddAssignsMonotonicIDs(t *testing.T) {
	r := New(500, nil)
	a := r.Add(model.RingEntry{EventType: "window::new"})
	b := r.Add(model.RingEntry{EventType: "window::close"})
	assert.Equal(t, int64(1), a.EventID)
	assert.Equal(t, int64(2), b.EventID)
}

func TestRingEvictsOldestAtCapacity(t *testing.T) {
	r := New(3, nil)
	for i := 0; i < 4; i++ {
		r.Add(model.RingEntry{EventType: "tick"})
	}
	stats := r.Stats()
	assert.Equal(t, 3, stats.BufferSize)
	assert.Equal(t, int64(4), stats.TotalEvents)

	all := r.Query(0, "", 0)
	require.Len(t, all, 3)
	// most-recent-first; oldest surviving entry has event_id 2
	assert.Equal(t, int64(4), all[0].EventID)
	assert.Equal(t, int64(2), all[2].EventID)
}

func TestRingAtExactly500EvictsExactlyOldest(t *testing.T) {
	r := New(500, nil)
	for i := 0; i < 500; i++ {
		r.Add(model.RingEntry{EventType: "tick"})
	}
	r.Add(model.RingEntry{EventType: "tick"})

	stats := r.Stats()
	assert.Equal(t, 500, stats.BufferSize)

	all := r.Query(0, "", 0)
	assert.Equal(t, int64(2), all[len(all)-1].EventID, "the oldest surviving entry should be event_id 2")
	assert.Equal(t, int64(501), all[0].EventID)
}

func TestQueryFiltersByPrefixAndSinceID(t *testing.T) {
	r := New(500, nil)
	r.Add(model.RingEntry{EventType: "window::new"})
	r.Add(model.RingEntry{EventType: "workspace::focus"})
	r.Add(model.RingEntry{EventType: "window::close"})

	windowOnly := r.Query(0, "window::", 0)
	require.Len(t, windowOnly, 2)

	afterFirst := r.Query(0, "", 1)
	require.Len(t, afterFirst, 2)
	for _, e := range afterFirst {
		assert.Greater(t, e.EventID, int64(1))
	}
}

func TestBroadcastCallbackFiresOncePerInsert(t *testing.T) {
	var got []model.RingEntry
	r := New(500, func(e model.RingEntry) { got = append(got, e) })

	r.Add(model.RingEntry{EventType: "a"})
	r.Add(model.RingEntry{EventType: "b"})

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].EventType)
}
