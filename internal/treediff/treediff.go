// Package treediff implements C3: given two tree snapshots and C2's hash
// cache, produces a structured diff of added/removed/modified nodes with
// per-field change records and significance scoring.
package treediff

import (
	"time"

	"github.com/google/uuid"

	"github.com/i3pm/eventcore/internal/hashcache"
	"github.com/i3pm/eventcore/internal/model"
)

// node is the minimal shape the differ needs from a raw tree node.
type node struct {
	id             int64
	nodeType       string
	fields         map[string]interface{}
	children       []node
	floatingNodes  []node
}

// Differ computes structural diffs using a shared hash cache.
type Differ struct {
	cache *hashcache.Cache
}

// New returns a Differ backed by the given hash cache.
func New(cache *hashcache.Cache) *Differ {
	return &Differ{cache: cache}
}

// Diff compares two tree snapshots and returns a TreeDiff. If the root
// subtree hashes match, it returns with no node changes and skips the
// pairwise child diff; computing those two root hashes still walks both
// trees in full.
func (d *Differ) Diff(before, after model.TreeSnapshot) model.TreeDiff {
	start := time.Now()

	oldRoot := parseNode(before.TreeData)
	newRoot := parseNode(after.TreeData)

	oldRootHash := d.subtreeHash(oldRoot)
	newRootHash := d.subtreeHash(newRoot)

	diff := model.TreeDiff{
		DiffID:           uuid.NewString(),
		BeforeSnapshotID: before.SnapshotID,
		AfterSnapshotID:  after.SnapshotID,
	}

	if oldRootHash == newRootHash {
		diff.ComputationTimeMS = float64(time.Since(start).Microseconds()) / 1000
		return diff
	}

	diff.NodeChanges = d.diffNode(oldRoot, newRoot, "")
	diff.ComputationTimeMS = float64(time.Since(start).Microseconds()) / 1000
	return diff
}

// diffNode compares paired nodes (by id), recursing into children and
// floating children independently since i3/sway track tiled and floating
// containers as separate lists.
func (d *Differ) diffNode(old, new_ node, path string) []model.NodeChange {
	var changes []model.NodeChange

	added, removed, paired := pairChildren(old.children, new_.children)
	for _, n := range added {
		changes = append(changes, addedChange(n, path))
	}
	for _, n := range removed {
		changes = append(changes, removedChange(n, path))
	}
	for _, pair := range paired {
		changes = append(changes, d.diffPaired(pair.old, pair.new_, path)...)
	}

	fAdded, fRemoved, fPaired := pairChildren(old.floatingNodes, new_.floatingNodes)
	for _, n := range fAdded {
		changes = append(changes, addedChange(n, path))
	}
	for _, n := range fRemoved {
		changes = append(changes, removedChange(n, path))
	}
	for _, pair := range fPaired {
		changes = append(changes, d.diffPaired(pair.old, pair.new_, path)...)
	}

	return changes
}

func (d *Differ) diffPaired(old, new_ node, path string) []model.NodeChange {
	cachedOldHash, haveCached := uint64(0), false
	if fp, ok := d.cache.Get(old.id); ok {
		cachedOldHash = fp.SubtreeHash
		haveCached = true
	}
	newHash := d.subtreeHash(new_)

	if haveCached && cachedOldHash == newHash {
		// Merkle pruning: unchanged subtree, skip entirely.
		return nil
	}

	var changes []model.NodeChange
	fieldChanges := diffFields(old.fields, new_.fields)
	if len(fieldChanges) > 0 {
		changes = append(changes, model.NodeChange{
			NodeID:       new_.id,
			NodeType:     new_.nodeType,
			ChangeType:   model.ChangeModified,
			FieldChanges: fieldChanges,
			NodePath:     path,
		})
	}

	newContentHash := hashcache.ContentHash(new_.fields)
	d.cache.Update(new_.id, newContentHash, newHash)

	changes = append(changes, d.diffNode(old, new_, path)...)
	return changes
}

func (d *Differ) subtreeHash(n node) uint64 {
	content := hashcache.ContentHash(n.fields)
	childHashes := make([]uint64, 0, len(n.children))
	for _, c := range n.children {
		childHashes = append(childHashes, d.subtreeHash(c))
	}
	floatHashes := make([]uint64, 0, len(n.floatingNodes))
	for _, c := range n.floatingNodes {
		floatHashes = append(floatHashes, d.subtreeHash(c))
	}
	return hashcache.SubtreeHash(content, childHashes, floatHashes)
}

type childPair struct {
	old, new_ node
}

// pairChildren matches old/new child lists by id, preserving the order of
// the new list for paired/added results.
func pairChildren(old, new_ []node) (added, removed []node, paired []childPair) {
	oldByID := make(map[int64]node, len(old))
	for _, n := range old {
		oldByID[n.id] = n
	}
	seen := make(map[int64]struct{}, len(new_))

	for _, n := range new_ {
		seen[n.id] = struct{}{}
		if o, ok := oldByID[n.id]; ok {
			paired = append(paired, childPair{old: o, new_: n})
		} else {
			added = append(added, n)
		}
	}
	for _, n := range old {
		if _, ok := seen[n.id]; !ok {
			removed = append(removed, n)
		}
	}
	return added, removed, paired
}

func addedChange(n node, path string) model.NodeChange {
	return model.NodeChange{NodeID: n.id, NodeType: n.nodeType, ChangeType: model.ChangeAdded, NodePath: path}
}

func removedChange(n node, path string) model.NodeChange {
	return model.NodeChange{NodeID: n.id, NodeType: n.nodeType, ChangeType: model.ChangeRemoved, NodePath: path}
}

// diffFields compares non-child fields (volatile set already excluded by
// the caller's hash computation, but field-level diffing re-checks here so
// the emitted change records never include volatile fields either).
func diffFields(old, new_ map[string]interface{}) []model.FieldChange {
	var changes []model.FieldChange
	seen := make(map[string]struct{})

	for k, nv := range new_ {
		if skipField(k) {
			continue
		}
		seen[k] = struct{}{}
		ov, existed := old[k]
		if !existed {
			changes = append(changes, model.FieldChange{
				FieldPath: k, NewValue: nv, ChangeType: model.ChangeAdded, Significance: significance(k, ov, nv),
			})
			continue
		}
		if !equalValue(ov, nv) {
			changes = append(changes, model.FieldChange{
				FieldPath: k, OldValue: ov, NewValue: nv, ChangeType: model.ChangeModified, Significance: significance(k, ov, nv),
			})
		}
	}
	for k, ov := range old {
		if skipField(k) {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		changes = append(changes, model.FieldChange{
			FieldPath: k, OldValue: ov, ChangeType: model.ChangeRemoved, Significance: significance(k, ov, nil),
		})
	}
	return changes
}

func skipField(k string) bool {
	switch k {
	case "nodes", "floating_nodes", "last_split_layout", "focus", "percent":
		return true
	}
	return false
}

// significance scores how much a changed field matters: focus/urgency/
// window/title changes are fully significant, visual state changes are
// moderate, and raw geometry is the least significant signal.
func significance(field string, old, new_ interface{}) float64 {
	switch field {
	case "focused", "urgent", "window", "name":
		return 1.0
	case "floating", "fullscreen", "visible", "layout":
		return 0.5
	case "x", "y", "width", "height":
		of, ok1 := toFloat(old)
		nf, ok2 := toFloat(new_)
		if ok1 && ok2 {
			delta := of - nf
			if delta < 0 {
				delta = -delta
			}
			if delta < 5 {
				return 0.1
			}
		}
		return 0.5
	default:
		return 0.2
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

func equalValue(a, b interface{}) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

// parseNode converts a raw WM tree_data map into the differ's internal node
// shape. Unknown/missing fields degrade gracefully rather than panicking,
// since tree_data originates from an external process.
func parseNode(raw map[string]interface{}) node {
	n := node{fields: raw}
	if id, ok := toFloat(raw["id"]); ok {
		n.id = int64(id)
	}
	if t, ok := raw["type"].(string); ok {
		n.nodeType = t
	}
	if children, ok := raw["nodes"].([]interface{}); ok {
		for _, c := range children {
			if cm, ok := c.(map[string]interface{}); ok {
				n.children = append(n.children, parseNode(cm))
			}
		}
	}
	if floating, ok := raw["floating_nodes"].([]interface{}); ok {
		for _, c := range floating {
			if cm, ok := c.(map[string]interface{}); ok {
				n.floatingNodes = append(n.floatingNodes, parseNode(cm))
			}
		}
	}
	return n
}
