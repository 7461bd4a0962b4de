// Package projectswitch implements C9: serializes project-activation
// requests so that at most one switch is in flight, hiding the outgoing
// project's windows, restoring/launching the incoming project's, and
// updating the active-project pointer. Waiting requests are not ordered by
// arrival: they contend for a plain sync.Mutex. The switchMu serialization
// mirrors the teacher codebase's worktree manager's activateMu pattern
// (internal/worktree/manager.go Activate).
package projectswitch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/i3pm/eventcore/internal/logx"
	"github.com/i3pm/eventcore/internal/model"
	"github.com/i3pm/eventcore/internal/state"
	"github.com/i3pm/eventcore/internal/wstracker"
)

// Launcher starts an external command for an auto-launch entry.
type Launcher interface {
	Launch(ctx context.Context, spec model.LaunchSpec, env map[string]string) error
}

// Conn is the subset of wmconn.Conn the coordinator needs.
type Conn interface {
	Command(cmdline string) (wstracker.CommandResult, error)
	WindowSnapshot(conID int64) (wstracker.WindowAttrs, bool)
}

// Result reports the outcome of one switch.
type Result struct {
	FromProject string
	ToProject   string
	Hidden      []int64
	Restored    []int64
	Launched    []string
	Warnings    []string
	Duration    time.Duration
}

// Coordinator serializes project-switch requests.
type Coordinator struct {
	switchMu sync.Mutex // serializes Switch operations end to end

	store    *state.Store
	tracker  *wstracker.Tracker
	conn     Conn
	launcher Launcher
	log      *logx.Logger

	projects func(name string) (model.ProjectConfig, bool)
}

// New builds a Coordinator.
func New(store *state.Store, tracker *wstracker.Tracker, conn Conn, launcher Launcher, projects func(string) (model.ProjectConfig, bool), log *logx.Logger) *Coordinator {
	if log == nil {
		log = logx.New("projectswitch")
	}
	return &Coordinator{store: store, tracker: tracker, conn: conn, launcher: launcher, projects: projects, log: log}
}

// Switch activates targetProject, hiding the current project's scoped
// windows and restoring/launching the target's. Only one switch runs at a
// time; concurrent callers block on switchMu, which does not admit them in
// arrival order.
func (c *Coordinator) Switch(ctx context.Context, targetProject string) (Result, error) {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	start := time.Now()
	fromProject, _ := c.store.ActiveProject()
	result := Result{FromProject: fromProject, ToProject: targetProject}

	if fromProject == targetProject {
		result.Duration = time.Since(start)
		return result, nil
	}

	var toHide []model.WindowRecord
	if fromProject != "" {
		toHide = c.store.GetWindowsByProject(fromProject)
	}
	hideIDs := make([]int64, 0, len(toHide))
	for _, w := range toHide {
		hideIDs = append(hideIDs, w.ConID)
	}
	if len(hideIDs) > 0 {
		hideRes := c.tracker.HideBatch(c.conn, hideIDs)
		result.Hidden = hideRes.HiddenConIDs
		for id, msg := range hideRes.Errors {
			result.Warnings = append(result.Warnings, fmt.Sprintf("hide con_id=%d: %s", id, msg))
		}
	}

	c.store.SetActiveProject(targetProject)

	var toRestore []model.WindowRecord
	if targetProject != "" {
		toRestore = c.store.GetWindowsByProject(targetProject)
	}
	restoreIDs := make([]int64, 0, len(toRestore))
	for _, w := range toRestore {
		restoreIDs = append(restoreIDs, w.ConID)
	}
	if len(restoreIDs) > 0 {
		active := map[int]struct{}{}
		if wc, ok := c.conn.(interface{ ActiveWorkspaces() map[int]struct{} }); ok {
			active = wc.ActiveWorkspaces()
		}
		restoreRes := c.tracker.RestoreBatch(c.conn, restoreIDs, 1, active)
		result.Restored = restoreRes.RestoredConIDs
		for id, msg := range restoreRes.Errors {
			result.Warnings = append(result.Warnings, fmt.Sprintf("restore con_id=%d: %s", id, msg))
		}
		for id, msg := range restoreRes.FallbackWarnings {
			result.Warnings = append(result.Warnings, fmt.Sprintf("restore con_id=%d: %s", id, msg))
		}
	}

	if c.projects != nil && targetProject != "" {
		if cfg, ok := c.projects(targetProject); ok {
			launched, warnings := c.runAutoLaunch(ctx, cfg)
			result.Launched = launched
			result.Warnings = append(result.Warnings, warnings...)
		}
	}

	result.Duration = time.Since(start)
	c.log.Printf("switched %q -> %q in %s (hidden=%d restored=%d launched=%d)",
		fromProject, targetProject, result.Duration, len(result.Hidden), len(result.Restored), len(result.Launched))
	return result, nil
}

func (c *Coordinator) runAutoLaunch(ctx context.Context, cfg model.ProjectConfig) ([]string, []string) {
	var launched []string
	var warnings []string

	for _, spec := range cfg.AutoLaunch {
		env := map[string]string{
			"I3PM_PROJECT_NAME": cfg.Name,
			"PROJECT_NAME":      cfg.Name,
			"PROJECT_DIR":       cfg.Directory,
		}
		for k, v := range spec.Env {
			env[k] = v
		}

		if spec.LaunchDelay > 0 {
			select {
			case <-time.After(spec.LaunchDelay):
			case <-ctx.Done():
				warnings = append(warnings, fmt.Sprintf("auto_launch %q cancelled: %v", spec.Command, ctx.Err()))
				continue
			}
		}

		if err := c.launcher.Launch(ctx, spec, env); err != nil {
			warnings = append(warnings, fmt.Sprintf("auto_launch %q failed: %v", spec.Command, err))
			c.log.Printf("auto_launch %q failed: %v", spec.Command, err)
			continue
		}
		launched = append(launched, spec.Command)
	}
	return launched, warnings
}
