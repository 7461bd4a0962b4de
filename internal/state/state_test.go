package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i3pm/eventcore/internal/model"
)

func TestAddGetRemoveWindow(t *testing.T) {
	s := New()
	s.AddWindow(model.WindowRecord{ConID: 42, Class: "Code", Project: "proj-a"})

	w, ok := s.GetWindow(42)
	require.True(t, ok)
	assert.Equal(t, "Code", w.Class)

	s.RemoveWindow(42)
	_, ok = s.GetWindow(42)
	assert.False(t, ok)
}

func TestUpdateWindowMissingReturnsFalse(t *testing.T) {
	s := New()
	ok := s.UpdateWindow(1, func(w *model.WindowRecord) bool { return true })
	assert.False(t, ok)
}

func TestUpdateWindowMutatesInPlace(t *testing.T) {
	s := New()
	s.AddWindow(model.WindowRecord{ConID: 1, Title: "old"})
	ok := s.UpdateWindow(1, func(w *model.WindowRecord) bool {
		w.Title = "new"
		return true
	})
	require.True(t, ok)
	w, _ := s.GetWindow(1)
	assert.Equal(t, "new", w.Title)
}

func TestGetWindowsByProject(t *testing.T) {
	s := New()
	s.AddWindow(model.WindowRecord{ConID: 1, Project: "a"})
	s.AddWindow(model.WindowRecord{ConID: 2, Project: "a"})
	s.AddWindow(model.WindowRecord{ConID: 3, Project: "b"})

	a := s.GetWindowsByProject("a")
	assert.Len(t, a, 2)
}

func TestSetActiveProjectTracksPrevious(t *testing.T) {
	s := New()
	old, new_ := s.SetActiveProject("A")
	assert.Equal(t, "", old)
	assert.Equal(t, "A", new_)

	old, new_ = s.SetActiveProject("B")
	assert.Equal(t, "A", old)
	assert.Equal(t, "B", new_)

	cur, prev := s.ActiveProject()
	assert.Equal(t, "B", cur)
	assert.Equal(t, "A", prev)
}

func TestRebuildFromMarksReplacesWindowMap(t *testing.T) {
	s := New()
	s.AddWindow(model.WindowRecord{ConID: 1})
	s.RebuildFromMarks([]model.WindowRecord{{ConID: 2}, {ConID: 3}})

	_, ok := s.GetWindow(1)
	assert.False(t, ok)
	assert.Equal(t, 2, s.GetStats().WindowCount)
}

func TestFocusMemory(t *testing.T) {
	s := New()
	s.SetFocusedWorkspace("proj-a", "3")
	ws, ok := s.GetFocusedWorkspace("proj-a")
	require.True(t, ok)
	assert.Equal(t, "3", ws)

	s.SetFocusedWindow("3", 42)
	id, ok := s.GetFocusedWindow("3")
	require.True(t, ok)
	assert.Equal(t, int64(42), id)
}
