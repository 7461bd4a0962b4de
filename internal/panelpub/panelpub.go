// Package panelpub implements C15: an optional, best-effort subscriber
// that mirrors window/workspace state to an external status-panel command
// (eww, waybar, or similar) after every relevant event. It is pure
// observability — nothing here ever feeds back into a correctness
// invariant, and a failed publish is logged, never surfaced as an error.
package panelpub

import (
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/i3pm/eventcore/internal/logx"
	"github.com/i3pm/eventcore/internal/model"
	"github.com/i3pm/eventcore/internal/state"
	"github.com/i3pm/eventcore/internal/watcher"
)

// OutputLister supplies the monitor names the snapshot groups windows by.
type OutputLister interface {
	ActiveOutputs() []string
}

// WindowPanel is one window entry in the published panel state.
type WindowPanel struct {
	AppName  string `json:"app_name"`
	Title    string `json:"title"`
	Project  string `json:"project"`
	Scope    string `json:"scope"`
	Floating bool   `json:"floating"`
	Hidden   bool   `json:"hidden"`
	Focused  bool   `json:"focused"`
}

// WorkspacePanel groups windows under a workspace.
type WorkspacePanel struct {
	Name        string        `json:"name"`
	WindowCount int           `json:"window_count"`
	Windows     []WindowPanel `json:"windows"`
}

// MonitorPanel groups workspaces under an output name.
type MonitorPanel struct {
	Name       string           `json:"name"`
	Workspaces []WorkspacePanel `json:"workspaces"`
}

// State is the full JSON document handed to the publish command.
type State struct {
	Status         string         `json:"status"`
	Monitors       []MonitorPanel `json:"monitors"`
	MonitorCount   int            `json:"monitor_count"`
	WorkspaceCount int            `json:"workspace_count"`
	WindowCount    int            `json:"window_count"`
	TimestampMS    int64          `json:"timestamp_ms"`
}

const maxTitleRunes = 50

// scratchpadWorkspace is i3/sway's reserved workspace name for windows
// parked out of view, the same name wstracker's HideBatch moves windows to.
const scratchpadWorkspace = "__i3_scratch"

// Publisher debounces window/workspace ring activity and shells out to a
// configured command with a transformed JSON snapshot.
type Publisher struct {
	store   *state.Store
	outputs OutputLister
	command []string
	timeout time.Duration

	debouncer *watcher.Debouncer
	debounce  time.Duration
	trigger   chan struct{}
	closeCh   chan struct{}
	wg        sync.WaitGroup
	log       *logx.Logger
}

// New builds a Publisher. command is split on whitespace; a literal "{}"
// argument is replaced with the JSON snapshot at publish time, the same
// templating the teacher's workflow runner uses for {{.Worktree.Root}}-style
// substitution but resolved once per publish rather than at config load.
func New(store *state.Store, outputs OutputLister, command string, debounce, timeout time.Duration, log *logx.Logger) *Publisher {
	if log == nil {
		log = logx.New("panelpub")
	}
	if debounce <= 0 {
		debounce = 50 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Publisher{
		store:     store,
		outputs:   outputs,
		command:   strings.Fields(command),
		timeout:   timeout,
		debouncer: watcher.NewDebouncer(debounce),
		debounce:  debounce,
		trigger:   make(chan struct{}, 1),
		closeCh:   make(chan struct{}),
		log:       log,
	}
}

// Start launches the publish worker goroutine. Call Close to stop it.
func (p *Publisher) Start() {
	p.wg.Add(1)
	go p.loop()
}

func (p *Publisher) loop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.closeCh:
			return
		case <-p.trigger:
			p.publish(p.snapshot())
		}
	}
}

// OnRingEntry is the event router's broadcast callback. Entries outside
// window::*/workspace::* are ignored; matching ones debounce a publish so a
// burst of events yields exactly one snapshot.
func (p *Publisher) OnRingEntry(entry model.RingEntry) {
	if !strings.HasPrefix(entry.EventType, "window::") && !strings.HasPrefix(entry.EventType, "workspace::") {
		return
	}
	p.debouncer.Debounce("publish", p.requestPublish)
}

// requestPublish enqueues a publish, dropping the request if one is already
// pending: a request that arrives while a publish is in flight queues one
// follow-up publish, and further requests are dropped until the worker takes
// that one.
func (p *Publisher) requestPublish() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Close stops the worker goroutine and any pending debounce timer.
func (p *Publisher) Close() {
	p.debouncer.Stop()
	close(p.closeCh)
	p.wg.Wait()
}

func (p *Publisher) snapshot() State {
	windows := p.store.AllWindows()
	byOutput := make(map[string]map[string][]WindowPanel)

	for _, w := range windows {
		output := w.Output
		if output == "" {
			output = "unknown"
		}
		if byOutput[output] == nil {
			byOutput[output] = make(map[string][]WindowPanel)
		}
		focusedConID, _ := p.store.GetFocusedWindow(w.Workspace)
		byOutput[output][w.Workspace] = append(byOutput[output][w.Workspace], transformWindow(w, focusedConID))
	}

	outputs := p.outputs.ActiveOutputs()
	if len(outputs) == 0 {
		for name := range byOutput {
			outputs = append(outputs, name)
		}
	}

	var monitors []MonitorPanel
	workspaceCount, windowCount := 0, 0
	for _, name := range outputs {
		workspaces := byOutput[name]
		mp := MonitorPanel{Name: name}
		for wsName, wins := range workspaces {
			mp.Workspaces = append(mp.Workspaces, WorkspacePanel{
				Name:        wsName,
				WindowCount: len(wins),
				Windows:     wins,
			})
			workspaceCount++
			windowCount += len(wins)
		}
		monitors = append(monitors, mp)
	}

	return State{
		Status:         "ok",
		Monitors:       monitors,
		MonitorCount:   len(monitors),
		WorkspaceCount: workspaceCount,
		WindowCount:    windowCount,
		TimestampMS:    time.Now().UnixMilli(),
	}
}

func transformWindow(w model.WindowRecord, focusedConID int64) WindowPanel {
	title := w.Title
	if runes := []rune(title); len(runes) > maxTitleRunes {
		title = string(runes[:maxTitleRunes])
	}
	return WindowPanel{
		AppName:  w.Class,
		Title:    title,
		Project:  w.Project,
		Scope:    string(w.Scope),
		Floating: w.Floating,
		Hidden:   w.Workspace == scratchpadWorkspace,
		Focused:  w.ConID == focusedConID,
	}
}

func (p *Publisher) publish(st State) {
	if len(p.command) == 0 {
		return
	}
	payload, err := json.Marshal(st)
	if err != nil {
		p.log.Printf("marshal panel state: %v", err)
		return
	}

	args := make([]string, len(p.command)-1)
	for i, a := range p.command[1:] {
		if a == "{}" {
			a = string(payload)
		} else {
			a = strings.ReplaceAll(a, "{}", string(payload))
		}
		args[i] = a
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.command[0], args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		p.log.Printf("panel publish command failed: %v (output: %s)", err, strings.TrimSpace(string(out)))
	}
}
