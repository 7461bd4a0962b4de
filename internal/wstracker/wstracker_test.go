package wstracker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i3pm/eventcore/internal/model"
)

func TestSaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "window-workspace-map.json")

	tr := New(path)
	tr.Put(model.TrackingRecord{ConID: 42, WorkspaceNumber: 3, Project: "proj-a", Class: "Code"})
	require.NoError(t, tr.Save())

	loaded := New(path)
	require.NoError(t, loaded.Load())

	rec, ok := loaded.Get(42)
	require.True(t, ok)
	assert.Equal(t, 3, rec.WorkspaceNumber)
	assert.Equal(t, "proj-a", rec.Project)
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	tr := New(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, tr.Load())
	_, ok := tr.Get(1)
	assert.False(t, ok)
}

func TestLoadCorruptFileRenamesAndReinitializes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "window-workspace-map.json")
	require.NoError(t, os.WriteFile(path, []byte("{not valid json"), 0o644))

	tr := New(path)
	require.NoError(t, tr.Load())

	_, err := os.Stat(path + ".bak")
	assert.NoError(t, err, "corrupt file should be renamed with .bak suffix")
	_, ok := tr.Get(1)
	assert.False(t, ok)
}

func TestLoadLegacySchemaAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "window-workspace-map.json")
	legacy := `{"schema_version":"1.0","windows":{"7":{"workspace_number":2,"floating":true,"project":"a","app":"x","class":"X","last_seen_ts":100}}}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	tr := New(path)
	require.NoError(t, tr.Load())

	rec, ok := tr.Get(7)
	require.True(t, ok)
	assert.Nil(t, rec.Geometry)
	assert.False(t, rec.OriginalScratchpad)
}

type fakeConn struct {
	attrs map[int64]WindowAttrs
}

func (f *fakeConn) Command(cmdline string) (CommandResult, error) {
	return CommandResult{Success: true}, nil
}

func (f *fakeConn) WindowSnapshot(conID int64) (WindowAttrs, bool) {
	a, ok := f.attrs[conID]
	return a, ok
}

func TestHideBatchRecordsTracking(t *testing.T) {
	tr := New(filepath.Join(t.TempDir(), "map.json"))
	conn := &fakeConn{attrs: map[int64]WindowAttrs{
		42: {WorkspaceNumber: 3, Floating: false, Project: "a", App: "vscode", Class: "Code"},
	}}

	res := tr.HideBatch(conn, []int64{42})
	assert.Equal(t, []int64{42}, res.HiddenConIDs)
	assert.Empty(t, res.Errors)

	rec, ok := tr.Get(42)
	require.True(t, ok)
	assert.Equal(t, 3, rec.WorkspaceNumber)
}

func TestRestoreBatchFallsBackWhenWorkspaceGone(t *testing.T) {
	tr := New(filepath.Join(t.TempDir(), "map.json"))
	tr.Put(model.TrackingRecord{ConID: 42, WorkspaceNumber: 9, Floating: false})
	conn := &fakeConn{}

	res := tr.RestoreBatch(conn, []int64{42}, 1, map[int]struct{}{1: {}})
	assert.Equal(t, []int64{42}, res.RestoredConIDs)
	assert.Contains(t, res.FallbackWarnings, int64(42))
}

func TestRestoreBatchNoTrackingUsesFallback(t *testing.T) {
	tr := New(filepath.Join(t.TempDir(), "map.json"))
	conn := &fakeConn{}

	res := tr.RestoreBatch(conn, []int64{99}, 1, map[int]struct{}{1: {}})
	assert.Equal(t, []int64{99}, res.RestoredConIDs)
	assert.Contains(t, res.FallbackWarnings, int64(99))
}
