package treediff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i3pm/eventcore/internal/hashcache"
	"github.com/i3pm/eventcore/internal/model"
)

func snapshot(id string, tree map[string]interface{}) model.TreeSnapshot {
	return model.TreeSnapshot{SnapshotID: id, TreeData: tree}
}

func TestDiffUnchangedRootIsEmpty(t *testing.T) {
	tree := map[string]interface{}{
		"id": float64(1), "type": "root", "name": "root",
		"nodes": []interface{}{
			map[string]interface{}{"id": float64(2), "type": "con", "name": "win"},
		},
	}

	d := New(hashcache.New(60*time.Second, 10*time.Second))
	diff := d.Diff(snapshot("s1", tree), snapshot("s2", tree))

	assert.Empty(t, diff.NodeChanges)
}

func TestDiffDetectsAddedNode(t *testing.T) {
	before := map[string]interface{}{
		"id": float64(1), "type": "root", "name": "root",
		"nodes": []interface{}{},
	}
	after := map[string]interface{}{
		"id": float64(1), "type": "root", "name": "root",
		"nodes": []interface{}{
			map[string]interface{}{"id": float64(2), "type": "con", "name": "new-window"},
		},
	}

	d := New(hashcache.New(60*time.Second, 10*time.Second))
	diff := d.Diff(snapshot("s1", before), snapshot("s2", after))

	require.Len(t, diff.NodeChanges, 1)
	assert.Equal(t, model.ChangeAdded, diff.NodeChanges[0].ChangeType)
	assert.Equal(t, int64(2), diff.NodeChanges[0].NodeID)
}

func TestDiffDetectsModifiedFieldWithSignificance(t *testing.T) {
	before := map[string]interface{}{
		"id": float64(1), "type": "root", "name": "root",
		"nodes": []interface{}{
			map[string]interface{}{"id": float64(2), "type": "con", "name": "win", "focused": false},
		},
	}
	after := map[string]interface{}{
		"id": float64(1), "type": "root", "name": "root",
		"nodes": []interface{}{
			map[string]interface{}{"id": float64(2), "type": "con", "name": "win", "focused": true},
		},
	}

	d := New(hashcache.New(60*time.Second, 10*time.Second))
	diff := d.Diff(snapshot("s1", before), snapshot("s2", after))

	require.Len(t, diff.NodeChanges, 1)
	nc := diff.NodeChanges[0]
	assert.Equal(t, model.ChangeModified, nc.ChangeType)
	require.Len(t, nc.FieldChanges, 1)
	assert.Equal(t, "focused", nc.FieldChanges[0].FieldPath)
	assert.Equal(t, 1.0, nc.FieldChanges[0].Significance)
	assert.Equal(t, 1.0, diff.Significance())
}

func TestDiffGeometrySmallDeltaLowSignificance(t *testing.T) {
	before := map[string]interface{}{
		"id": float64(1), "type": "root", "name": "root",
		"nodes": []interface{}{
			map[string]interface{}{"id": float64(2), "type": "con", "name": "win", "x": float64(100)},
		},
	}
	after := map[string]interface{}{
		"id": float64(1), "type": "root", "name": "root",
		"nodes": []interface{}{
			map[string]interface{}{"id": float64(2), "type": "con", "name": "win", "x": float64(102)},
		},
	}

	d := New(hashcache.New(60*time.Second, 10*time.Second))
	diff := d.Diff(snapshot("s1", before), snapshot("s2", after))

	require.Len(t, diff.NodeChanges, 1)
	require.Len(t, diff.NodeChanges[0].FieldChanges, 1)
	assert.Equal(t, 0.1, diff.NodeChanges[0].FieldChanges[0].Significance)
}

func TestDiffMerklePruningSkipsUnchangedSubtree(t *testing.T) {
	child := map[string]interface{}{"id": float64(3), "type": "con", "name": "stable"}
	before := map[string]interface{}{
		"id": float64(1), "type": "root", "name": "root",
		"nodes": []interface{}{
			map[string]interface{}{"id": float64(2), "type": "con", "name": "a", "nodes": []interface{}{child}},
		},
	}
	after := map[string]interface{}{
		"id": float64(1), "type": "root", "name": "root",
		"nodes": []interface{}{
			map[string]interface{}{"id": float64(2), "type": "con", "name": "a", "nodes": []interface{}{child}},
		},
	}

	cache := hashcache.New(60*time.Second, 10*time.Second)
	d := New(cache)
	// Both Diff calls compare identical trees and return at the root-hash
	// check, before any per-node diffing.
	d.Diff(snapshot("s0", before), snapshot("s1", before))
	diff := d.Diff(snapshot("s1", before), snapshot("s2", after))

	assert.Empty(t, diff.NodeChanges, "identical subtree must be pruned, not re-diffed")
}
