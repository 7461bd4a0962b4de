package wmconn

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverSocketPrefersNewestMtime(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "sway-ipc.1.old.sock")
	newer := filepath.Join(dir, "sway-ipc.2.new.sock")
	require.NoError(t, os.WriteFile(old, nil, 0o644))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(newer, nil, 0o644))

	c := New(Options{RuntimeDirOverride: dir}, nil)
	path, err := c.discoverSocket()
	require.NoError(t, err)
	assert.Equal(t, newer, path)
}

func TestDiscoverSocketPrefersEnvVar(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "custom.sock")
	require.NoError(t, os.WriteFile(envPath, nil, 0o644))
	t.Setenv("SWAYSOCK", envPath)

	c := New(Options{SocketEnvVars: []string{"SWAYSOCK"}, RuntimeDirOverride: dir}, nil)
	path, err := c.discoverSocket()
	require.NoError(t, err)
	assert.Equal(t, envPath, path)
}

func TestSortForStartupMarkDefersRaceClasses(t *testing.T) {
	classOf := map[int64]string{1: "firefox", 2: "Code", 3: "Slack"}
	order := sortForStartupMark([]int64{2, 1, 3}, classOf, raceClassSet([]string{"Code"}))

	// Code must be last; others keep ascending con_id order.
	require.Len(t, order, 3)
	assert.Equal(t, int64(2), order[len(order)-1])
	assert.Equal(t, int64(1), order[0])
	assert.Equal(t, int64(3), order[1])
}
