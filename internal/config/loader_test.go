package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderLoadWithDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "i3pm-eventd.hjson")
	require.NoError(t, os.WriteFile(path, []byte(`{
		ring: { capacity: 250 }
		launch: { max_pending: 10 }
	}`), 0o644))

	cfg, err := NewLoader().LoadWithDefaults(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.Ring.Capacity)
	assert.Equal(t, 10, cfg.Launch.MaxPending)
	// Defaults still apply to untouched fields.
	assert.Equal(t, 60, cfg.HashCache.TTLSeconds)
	assert.Equal(t, 500, cfg.Action.CorrelationWindowMS, "default action correlation window is 500ms")
	assert.Equal(t, 10, cfg.Shutdown.OverallBudgetSeconds)
}

func TestLoaderLoadMissingFile(t *testing.T) {
	_, err := NewLoader().Load(context.Background(), "/nonexistent/path.hjson")
	assert.Error(t, err)
}

func TestFindConfigNotFound(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	defer os.Chdir(cwd)
	require.NoError(t, os.Chdir(dir))

	_, err = NewLoader().FindConfig()
	assert.Error(t, err)
}
