// Package procenv provides the PID-acquisition and environment-reading
// capability identity resolution needs: preferring the PID the WM exposes
// on a container, falling back to an xprop query, and reading
// /proc/<pid>/environ for I3PM_* keys. The xprop invocation lives behind
// the Prober interface so environments without it (or sandboxes without
// X) degrade gracefully to class-based identity instead of failing.
package procenv

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	ps "github.com/mitchellh/go-ps"
)

// Prober resolves a surface id to a PID via an external query (xprop).
type Prober interface {
	ProbePID(ctx context.Context, surfaceID int64) (int64, bool)
}

// XpropProber shells out to `xprop -id <surface_id> _NET_WM_PID`.
type XpropProber struct{}

// ProbePID runs xprop with a 1s timeout, treating absence or failure as
// "no PID".
func (XpropProber) ProbePID(ctx context.Context, surfaceID int64) (int64, bool) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "xprop", "-id", strconv.FormatInt(surfaceID, 10), "_NET_WM_PID")
	out, err := cmd.Output()
	if err != nil {
		return 0, false
	}
	// Expected form: "_NET_WM_PID(CARDINAL) = 12345"
	parts := strings.Split(string(out), "=")
	if len(parts) != 2 {
		return 0, false
	}
	pid, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return 0, false
	}
	return pid, true
}

// ResolvePID prefers a WM-exposed PID; if absent (wmPID <= 0), falls back
// to prober.ProbePID. Returns (pid, false) if no PID could be determined.
func ResolvePID(ctx context.Context, wmPID int64, surfaceID int64, prober Prober) (int64, bool) {
	if wmPID > 0 {
		return wmPID, true
	}
	if prober == nil {
		return 0, false
	}
	return prober.ProbePID(ctx, surfaceID)
}

// IsAlive reports whether pid currently refers to a live process, guarding
// against a stale PID read race between probing and reading /proc.
func IsAlive(pid int64) bool {
	proc, err := ps.FindProcess(int(pid))
	return err == nil && proc != nil
}

// ReadEnviron opens /proc/<pid>/environ, parses NUL-separated KEY=VALUE
// pairs, and returns any keys prefixed I3PM_. Permission errors,
// process-gone errors, and decoding errors all degrade to an empty map:
// a window without a readable environment just falls back to class-based
// identity instead of blocking the event pipeline on a probe failure.
func ReadEnviron(pid int64) map[string]string {
	if !IsAlive(pid) {
		return nil
	}

	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/environ", pid))
	if err != nil {
		return nil
	}

	out := make(map[string]string)
	for _, raw := range bytes.Split(data, []byte{0}) {
		if len(raw) == 0 {
			continue
		}
		eq := bytes.IndexByte(raw, '=')
		if eq < 0 {
			continue
		}
		key := string(raw[:eq])
		if !strings.HasPrefix(key, "I3PM_") {
			continue
		}
		out[key] = string(raw[eq+1:])
	}
	return out
}
