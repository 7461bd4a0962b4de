package projectswitch

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/i3pm/eventcore/internal/logx"
	"github.com/i3pm/eventcore/internal/model"
	"github.com/i3pm/eventcore/internal/wstracker"
)

// MarkChecker reports whether a window carrying mark currently exists,
// used to observe a launch spec's best-effort wait_for_mark.
type MarkChecker interface {
	Command(cmdline string) (wstracker.CommandResult, error)
}

// CommandLauncher spawns auto-launch entries via the shell, the same
// os/exec pattern the teacher's workflow runner uses for step commands:
// inherited environment plus overrides, detached from the daemon's own
// lifecycle so a long-running GUI app outlives the launch call.
type CommandLauncher struct {
	marks MarkChecker
	log   *logx.Logger
}

// NewCommandLauncher builds a CommandLauncher. marks may be nil, in which
// case wait_for_mark is skipped entirely rather than polling.
func NewCommandLauncher(marks MarkChecker, log *logx.Logger) *CommandLauncher {
	if log == nil {
		log = logx.New("projectswitch.launcher")
	}
	return &CommandLauncher{marks: marks, log: log}
}

// Launch runs spec.Command in the project's directory with env applied on
// top of the daemon's own environment, then best-effort waits for
// wait_for_mark within wait_timeout. A missing mark after the timeout is
// logged, not returned as an error: the sequence continues regardless.
func (l *CommandLauncher) Launch(ctx context.Context, spec model.LaunchSpec, env map[string]string) error {
	cmd := exec.Command("sh", "-c", spec.Command)
	cmd.Dir = envDirOrEmpty(env)
	cmd.Env = append(os.Environ(), mapToEnvSlice(env)...)
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			l.log.Printf("auto_launch %q exited: %v", spec.Command, err)
		}
	}()

	if spec.WaitForMark == "" || l.marks == nil {
		return nil
	}

	timeout := spec.WaitTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if res, err := l.marks.Command(`[con_mark="` + spec.WaitForMark + `"] focus`); err == nil && res.Success {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(100 * time.Millisecond):
		}
	}
	l.log.Printf("auto_launch %q: mark %q not observed within %s", spec.Command, spec.WaitForMark, timeout)
	return nil
}

func envDirOrEmpty(env map[string]string) string {
	return env["PROJECT_DIR"]
}

func mapToEnvSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
