package projectswitch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i3pm/eventcore/internal/model"
	"github.com/i3pm/eventcore/internal/state"
	"github.com/i3pm/eventcore/internal/wstracker"
)

type fakeConn struct {
	mu       sync.Mutex
	commands []string
}

func (f *fakeConn) Command(cmdline string) (wstracker.CommandResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmdline)
	return wstracker.CommandResult{Success: true}, nil
}

func (f *fakeConn) WindowSnapshot(conID int64) (wstracker.WindowAttrs, bool) {
	return wstracker.WindowAttrs{WorkspaceNumber: 1}, true
}

type fakeLauncher struct {
	mu      sync.Mutex
	seen    []model.LaunchSpec
	envs    []map[string]string
	failCmd string
}

func (f *fakeLauncher) Launch(ctx context.Context, spec model.LaunchSpec, env map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, spec)
	f.envs = append(f.envs, env)
	if spec.Command == f.failCmd {
		return assertError{}
	}
	return nil
}

type assertError struct{}

func (assertError) Error() string { return "launch failed" }

func TestSwitchHidesAndRestoresWindows(t *testing.T) {
	store := state.New()
	store.AddWindow(model.WindowRecord{ConID: 1, Project: "proj-a"})
	store.AddWindow(model.WindowRecord{ConID: 2, Project: "proj-b"})
	store.SetActiveProject("proj-a")

	tracker := wstracker.New(t.TempDir() + "/tracking.json")
	conn := &fakeConn{}

	c := New(store, tracker, conn, &fakeLauncher{}, nil, nil)
	result, err := c.Switch(context.Background(), "proj-b")

	require.NoError(t, err)
	assert.Equal(t, "proj-a", result.FromProject)
	assert.Equal(t, "proj-b", result.ToProject)
	assert.Contains(t, result.Hidden, int64(1))
	assert.Contains(t, result.Restored, int64(2))

	current, previous := store.ActiveProject()
	assert.Equal(t, "proj-b", current)
	assert.Equal(t, "proj-a", previous)
}

func TestSwitchToSameProjectIsNoop(t *testing.T) {
	store := state.New()
	store.SetActiveProject("proj-a")
	tracker := wstracker.New(t.TempDir() + "/tracking.json")
	c := New(store, tracker, &fakeConn{}, &fakeLauncher{}, nil, nil)

	result, err := c.Switch(context.Background(), "proj-a")
	require.NoError(t, err)
	assert.Empty(t, result.Hidden)
	assert.Empty(t, result.Restored)
}

func TestSwitchRunsAutoLaunchWithAugmentedEnv(t *testing.T) {
	store := state.New()
	tracker := wstracker.New(t.TempDir() + "/tracking.json")
	launcher := &fakeLauncher{}
	projects := func(name string) (model.ProjectConfig, bool) {
		if name != "proj-b" {
			return model.ProjectConfig{}, false
		}
		return model.ProjectConfig{
			Name:      "proj-b",
			Directory: "/home/u/proj-b",
			AutoLaunch: []model.LaunchSpec{
				{Command: "code ."},
			},
		}, true
	}
	c := New(store, tracker, &fakeConn{}, launcher, projects, nil)

	result, err := c.Switch(context.Background(), "proj-b")
	require.NoError(t, err)
	assert.Equal(t, []string{"code ."}, result.Launched)
	require.Len(t, launcher.seen, 1)
	require.Len(t, launcher.envs, 1)
	assert.Equal(t, "proj-b", launcher.envs[0]["I3PM_PROJECT_NAME"])
	assert.Equal(t, "proj-b", launcher.envs[0]["PROJECT_NAME"])
	assert.Equal(t, "/home/u/proj-b", launcher.envs[0]["PROJECT_DIR"])
}

func TestSwitchReportsAutoLaunchFailureAsWarning(t *testing.T) {
	store := state.New()
	tracker := wstracker.New(t.TempDir() + "/tracking.json")
	launcher := &fakeLauncher{failCmd: "bad-cmd"}
	projects := func(name string) (model.ProjectConfig, bool) {
		return model.ProjectConfig{Name: name, AutoLaunch: []model.LaunchSpec{{Command: "bad-cmd"}}}, true
	}
	c := New(store, tracker, &fakeConn{}, launcher, projects, nil)

	result, err := c.Switch(context.Background(), "proj-c")
	require.NoError(t, err)
	assert.Empty(t, result.Launched)
	require.Len(t, result.Warnings, 1)
}

func TestConcurrentSwitchesSerialize(t *testing.T) {
	store := state.New()
	tracker := wstracker.New(t.TempDir() + "/tracking.json")
	c := New(store, tracker, &fakeConn{}, &fakeLauncher{}, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _ = c.Switch(context.Background(), "proj-x")
		}(i)
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("switches did not complete, possible deadlock")
	}
}
