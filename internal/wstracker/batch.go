package wstracker

import (
	"fmt"
	"strings"
	"time"

	"github.com/i3pm/eventcore/internal/model"
)

// Commander is the subset of C1 needed to issue combined WM commands and
// read a window's live attributes before hiding it. Kept minimal so
// wstracker does not import wmconn directly.
type Commander interface {
	Command(cmdline string) (CommandResult, error)
	WindowSnapshot(conID int64) (WindowAttrs, bool)
}

// WindowAttrs are the live attributes read before a hide.
type WindowAttrs struct {
	WorkspaceNumber int
	Floating        bool
	Project         string
	App             string
	Class           string
}

// CommandResult is a per-sub-command outcome from a combined WM command.
type CommandResult struct {
	Success bool
	Error   string
}

// HideResult is the outcome of HideBatch.
type HideResult struct {
	HiddenConIDs []int64
	Errors       map[int64]string
}

// HideBatch records each window's current workspace/floating/class (and
// project/app if readable), then issues one combined "move scratchpad"
// command and parses per-id success.
func (t *Tracker) HideBatch(conn Commander, conIDs []int64) HideResult {
	result := HideResult{Errors: make(map[int64]string)}
	if len(conIDs) == 0 {
		return result
	}

	var parts []string
	now := time.Now().Unix()
	for _, id := range conIDs {
		attrs, ok := conn.WindowSnapshot(id)
		if !ok {
			result.Errors[id] = "window not found"
			continue
		}
		t.Put(model.TrackingRecord{
			ConID:           id,
			WorkspaceNumber: attrs.WorkspaceNumber,
			Floating:        attrs.Floating,
			Project:         attrs.Project,
			App:             attrs.App,
			Class:           attrs.Class,
			LastSeenTS:      now,
		})
		parts = append(parts, fmt.Sprintf("[con_id=%d] move scratchpad", id))
	}
	if len(parts) == 0 {
		return result
	}

	cmd := strings.Join(parts, "; ")
	res, err := conn.Command(cmd)
	if err != nil {
		for _, id := range conIDs {
			if _, alreadyErr := result.Errors[id]; !alreadyErr {
				result.Errors[id] = err.Error()
			}
		}
		return result
	}
	if res.Success {
		for _, id := range conIDs {
			if _, errored := result.Errors[id]; !errored {
				result.HiddenConIDs = append(result.HiddenConIDs, id)
			}
		}
	} else {
		for _, id := range conIDs {
			if _, errored := result.Errors[id]; !errored {
				result.Errors[id] = res.Error
			}
		}
	}
	return result
}

// RestoreResult is the outcome of RestoreBatch.
type RestoreResult struct {
	RestoredConIDs   []int64
	Errors           map[int64]string
	FallbackWarnings map[int64]string
}

// RestoreBatch looks up each id's tracked record (or uses fallback if
// absent or the tracked workspace no longer exists) and issues one combined
// "scratchpad show, move workspace, floating" command.
func (t *Tracker) RestoreBatch(conn Commander, conIDs []int64, fallbackWorkspace int, activeWorkspaces map[int]struct{}) RestoreResult {
	result := RestoreResult{Errors: make(map[int64]string), FallbackWarnings: make(map[int64]string)}
	if len(conIDs) == 0 {
		return result
	}

	var parts []string
	targets := make(map[int64]struct {
		workspace int
		floating  bool
	}, len(conIDs))

	for _, id := range conIDs {
		rec, ok := t.Get(id)
		workspace := fallbackWorkspace
		floating := false
		if ok && rec.WorkspaceNumber > 0 {
			if _, active := activeWorkspaces[rec.WorkspaceNumber]; active {
				workspace = rec.WorkspaceNumber
				floating = rec.Floating
			} else {
				result.FallbackWarnings[id] = fmt.Sprintf("tracked workspace %d no longer exists, using fallback %d", rec.WorkspaceNumber, fallbackWorkspace)
			}
		} else {
			result.FallbackWarnings[id] = "no tracking record, using fallback workspace"
		}
		targets[id] = struct {
			workspace int
			floating  bool
		}{workspace, floating}

		floatCmd := "floating disable"
		if floating {
			floatCmd = "floating enable"
		}
		parts = append(parts, fmt.Sprintf("[con_id=%d] scratchpad show, move workspace number %d, %s", id, workspace, floatCmd))
	}

	cmd := strings.Join(parts, "; ")
	res, err := conn.Command(cmd)
	if err != nil {
		for _, id := range conIDs {
			result.Errors[id] = err.Error()
		}
		return result
	}
	if res.Success {
		result.RestoredConIDs = conIDs
	} else {
		for _, id := range conIDs {
			result.Errors[id] = res.Error
		}
	}
	return result
}
