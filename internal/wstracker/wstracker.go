// Package wstracker implements C6: a durable per-window record of last
// known workspace/geometry/floating/scratchpad-origin, persisted atomically
// to disk and used to restore hidden windows.
//
// Persistence follows the tmp-file + rename pattern used throughout this
// codebase (internal/terminal/store.go, internal/cases/store.go), with an
// added fsync before rename: the tracking file is the only record of where
// hidden windows belong, so a crash between write and rename must never
// leave it truncated or missing.
package wstracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/i3pm/eventcore/internal/model"
)

const currentSchemaVersion = "1.1"

// onDiskEntry is the versioned on-disk JSON schema for a single tracked
// window.
type onDiskEntry struct {
	WorkspaceNumber    int               `json:"workspace_number"`
	Floating           bool              `json:"floating"`
	Project            string            `json:"project"`
	App                string            `json:"app"`
	Class              string            `json:"class"`
	LastSeenTS         int64             `json:"last_seen_ts"`
	Geometry           *model.Geometry   `json:"geometry,omitempty"`
	OriginalScratchpad bool              `json:"original_scratchpad"`
}

type onDiskDocument struct {
	SchemaVersion string                 `json:"schema_version"`
	Windows       map[string]onDiskEntry `json:"windows"`
}

// Tracker owns the tracking map and its on-disk file, guarded by its own
// mutex independent of C5's: C6 runs its batch hide/restore work off the
// router's goroutine, so it needs its own lock over the tracking map.
type Tracker struct {
	mu      sync.Mutex
	path    string
	records map[int64]model.TrackingRecord
}

// New constructs a Tracker bound to the given file path. It does not load
// from disk; call Load for that.
func New(path string) *Tracker {
	return &Tracker{
		path:    path,
		records: make(map[int64]model.TrackingRecord),
	}
}

// Load reads the on-disk document. A missing file yields an empty tracker.
// A syntactically invalid file is renamed with a .bak suffix and the
// tracker reinitializes empty rather than failing startup over a corrupt
// cache file.
func (t *Tracker) Load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := os.ReadFile(t.path)
	if os.IsNotExist(err) {
		t.records = make(map[int64]model.TrackingRecord)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read tracking file: %w", err)
	}

	var doc onDiskDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		bak := t.path + ".bak"
		_ = os.Rename(t.path, bak)
		t.records = make(map[int64]model.TrackingRecord)
		return nil
	}

	records := make(map[int64]model.TrackingRecord, len(doc.Windows))
	for key, e := range doc.Windows {
		conID, parseErr := parseConID(key)
		if parseErr != nil {
			continue
		}
		rec := model.TrackingRecord{
			ConID:              conID,
			WorkspaceNumber:    e.WorkspaceNumber,
			Floating:           e.Floating,
			Project:            e.Project,
			App:                e.App,
			Class:              e.Class,
			LastSeenTS:         e.LastSeenTS,
			Geometry:           e.Geometry,
			OriginalScratchpad: e.OriginalScratchpad,
		}
		if doc.SchemaVersion == "1.0" || doc.SchemaVersion == "" {
			rec.Geometry = nil
			rec.OriginalScratchpad = false
		}
		records[conID] = rec
	}
	t.records = records
	return nil
}

// Save atomically writes the tracking map: serialize into a temporary file
// in the same directory, fsync, then rename over the target.
func (t *Tracker) Save() error {
	t.mu.Lock()
	doc := onDiskDocument{
		SchemaVersion: currentSchemaVersion,
		Windows:       make(map[string]onDiskEntry, len(t.records)),
	}
	for id, rec := range t.records {
		doc.Windows[formatConID(id)] = onDiskEntry{
			WorkspaceNumber:    rec.WorkspaceNumber,
			Floating:           rec.Floating,
			Project:            rec.Project,
			App:                rec.App,
			Class:              rec.Class,
			LastSeenTS:         rec.LastSeenTS,
			Geometry:           rec.Geometry,
			OriginalScratchpad: rec.OriginalScratchpad,
		}
	}
	t.mu.Unlock()

	return writeAtomic(t.path, doc)
}

func writeAtomic(path string, doc onDiskDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tracking file: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open tmp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write tmp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("fsync tmp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close tmp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename tmp to tracking file: %w", err)
	}
	return nil
}

// Get returns a copy of the tracking record for conID.
func (t *Tracker) Get(conID int64) (model.TrackingRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[conID]
	return r, ok
}

// Put inserts or overwrites a tracking record; does not write to disk.
func (t *Tracker) Put(rec model.TrackingRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[rec.ConID] = rec
}

// CleanupStaleEntries removes entries whose con_id no longer exists in
// liveConIDs or whose last-seen is older than maxAgeDays.
func (t *Tracker) CleanupStaleEntries(liveConIDs map[int64]struct{}, maxAgeDays int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour).Unix()
	removed := 0
	for id, rec := range t.records {
		_, live := liveConIDs[id]
		if !live || rec.LastSeenTS < cutoff {
			delete(t.records, id)
			removed++
		}
	}
	return removed
}

func parseConID(s string) (int64, error) {
	var n int64
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func formatConID(id int64) string {
	return fmt.Sprintf("%d", id)
}
