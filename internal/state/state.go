// Package state implements C5: the thread-safe map of known windows
// (indexed by container ID), workspace index, active-project pointer,
// focus memory, and classification sets. A single mutex guards every
// mutating operation; the lock is never held across I/O.
package state

import (
	"sync"

	"github.com/i3pm/eventcore/internal/model"
)

// Stats mirrors the counters exposed by get_stats / get_status.
type Stats struct {
	WindowCount    int
	WorkspaceCount int
	EventCount     int64
	ErrorCount     int64
}

// Store is C5's single authoritative in-memory state.
type Store struct {
	mu sync.Mutex

	windows    map[int64]model.WindowRecord
	workspaces map[string]struct{}

	activeProject   string
	previousProject string

	focusedWorkspaceByProject map[string]string
	focusedWindowByWorkspace  map[string]int64

	classification model.Classification

	eventCount int64
	errorCount int64
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		windows:                   make(map[int64]model.WindowRecord),
		workspaces:                make(map[string]struct{}),
		focusedWorkspaceByProject: make(map[string]string),
		focusedWindowByWorkspace:  make(map[string]int64),
	}
}

// AddWindow inserts or overwrites a window record keyed on con_id.
func (s *Store) AddWindow(w model.WindowRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows[w.ConID] = w
}

// RemoveWindow deletes a window record; no-op if absent.
func (s *Store) RemoveWindow(conID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, conID)
}

// UpdateFunc mutates a window record in place; returning false leaves the
// record untouched (used when a caller wants to no-op on missing windows).
type UpdateFunc func(w *model.WindowRecord) bool

// UpdateWindow applies fn to the record for conID under the lock. Returns
// false if no record exists for conID.
func (s *Store) UpdateWindow(conID int64, fn UpdateFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[conID]
	if !ok {
		return false
	}
	if !fn(&w) {
		return false
	}
	s.windows[conID] = w
	return true
}

// GetWindow returns a copy of the record for conID.
func (s *Store) GetWindow(conID int64) (model.WindowRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[conID]
	return w, ok
}

// GetWindowsByProject returns copies of every live window belonging to
// project (empty string selects global windows).
func (s *Store) GetWindowsByProject(project string) []model.WindowRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.WindowRecord
	for _, w := range s.windows {
		if w.Project == project {
			out = append(out, w)
		}
	}
	return out
}

// AllWindows returns a copy of every live window record.
func (s *Store) AllWindows() []model.WindowRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.WindowRecord, 0, len(s.windows))
	for _, w := range s.windows {
		out = append(out, w)
	}
	return out
}

// SetActiveProject updates the active-project pointer, sliding the
// previous value. Returns (old, new).
func (s *Store) SetActiveProject(project string) (old, new_ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old = s.activeProject
	s.previousProject = old
	s.activeProject = project
	return old, project
}

// ActiveProject returns the current and previous project pointers.
func (s *Store) ActiveProject() (current, previous string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeProject, s.previousProject
}

// AddWorkspace records a known workspace name.
func (s *Store) AddWorkspace(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workspaces[name] = struct{}{}
}

// RemoveWorkspace removes a workspace name.
func (s *Store) RemoveWorkspace(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workspaces, name)
}

// SetClassification atomically swaps the classification state consulted by
// C7 when no I3PM environment is present.
func (s *Store) SetClassification(c model.Classification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classification = c
}

// Classification returns a copy of the current classification state.
func (s *Store) Classification() model.Classification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classification
}

// RebuildFromMarks clears the window map and repopulates it with the
// supplied windows (typically parsed from a fresh WM tree on reconnect). It
// keeps every supplied window; no filtering by mark happens here.
func (s *Store) RebuildFromMarks(windows []model.WindowRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows = make(map[int64]model.WindowRecord, len(windows))
	for _, w := range windows {
		s.windows[w.ConID] = w
	}
}

// IncrementEventCount bumps the processed-event counter (get_status'
// event_count).
func (s *Store) IncrementEventCount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventCount++
}

// IncrementErrorCount bumps the error tally C14 maintains when a handler
// fails: errors are logged and counted rather than propagated, since one
// bad event must not take down the router's main loop.
func (s *Store) IncrementErrorCount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorCount++
}

// GetStats returns a consistent snapshot of the counters get_status needs.
func (s *Store) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		WindowCount:    len(s.windows),
		WorkspaceCount: len(s.workspaces),
		EventCount:     s.eventCount,
		ErrorCount:     s.errorCount,
	}
}

// GetFocusedWorkspace returns the last-focused workspace recorded for a
// project (empty string selects global).
func (s *Store) GetFocusedWorkspace(project string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.focusedWorkspaceByProject[project]
	return ws, ok
}

// SetFocusedWorkspace records the last-focused workspace for a project.
func (s *Store) SetFocusedWorkspace(project, workspace string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.focusedWorkspaceByProject[project] = workspace
}

// GetFocusedWindow returns the last-focused window con_id for a workspace.
func (s *Store) GetFocusedWindow(workspace string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.focusedWindowByWorkspace[workspace]
	return id, ok
}

// SetFocusedWindow records the last-focused window con_id for a workspace.
func (s *Store) SetFocusedWindow(workspace string, conID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.focusedWindowByWorkspace[workspace] = conID
}
