// Package rules implements C8: pattern-matched window-new rules producing
// ordered actions (move to workspace, set floating, set layout, add mark)
// against the window manager. Rules are loaded from an external JSON file
// and hot-reloaded on change; the hot-reload watcher is adapted from the
// teacher codebase's internal/watcher.Debouncer + fsnotify pairing
// (internal/watcher/binary.go), swapped from watching binaries to watching
// a single rules file.
package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/i3pm/eventcore/internal/logx"
	"github.com/i3pm/eventcore/internal/model"
	"github.com/i3pm/eventcore/internal/watcher"
	"github.com/i3pm/eventcore/internal/wstracker"
)

// WindowRef is the minimal window shape rules are evaluated against.
type WindowRef struct {
	ConID     int64
	SurfaceID int64
	Class     string
	Instance  string
	Title     string
	Marks     []string
}

// ActionResult records a single action's outcome for the caller.
type ActionResult struct {
	Action  model.RuleAction
	Success bool
	Error   string
}

// Commander issues WM commands on behalf of rule actions.
type Commander interface {
	Command(cmdline string) (wstracker.CommandResult, error)
	ActiveWorkspaces() map[int]struct{}
}

// Engine holds the current rule set and evaluates it against new windows.
type Engine struct {
	mu    sync.RWMutex
	rules []model.Rule
	log   *logx.Logger
}

// New builds an empty Engine.
func New(log *logx.Logger) *Engine {
	if log == nil {
		log = logx.New("rules")
	}
	return &Engine{log: log}
}

// SetRules atomically swaps the in-memory rule list.
func (e *Engine) SetRules(rules []model.Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = rules
}

// Rules returns a copy of the current rule list.
func (e *Engine) Rules() []model.Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate runs every rule in declared order against w, executing the
// first match's actions in declared order. A failing action does not abort
// subsequent actions (fail-safe); every failure is reported.
func (e *Engine) Evaluate(conn Commander, w WindowRef) []ActionResult {
	rules := e.Rules()
	for _, rule := range rules {
		if !matches(rule.Match, w) {
			continue
		}
		return e.executeActions(conn, w, rule.Actions)
	}
	return nil
}

func matches(m model.MatchCriteria, w WindowRef) bool {
	if m.Class != "" && m.Class != w.Class {
		return false
	}
	if m.Instance != "" && m.Instance != w.Instance {
		return false
	}
	if m.TitleRegex != "" {
		re, err := regexp.Compile(m.TitleRegex)
		if err != nil || !re.MatchString(w.Title) {
			return false
		}
	}
	if m.MarkPresent != "" && !containsMark(w.Marks, m.MarkPresent) {
		return false
	}
	if m.MarkAbsent != "" && containsMark(w.Marks, m.MarkAbsent) {
		return false
	}
	return true
}

func containsMark(marks []string, want string) bool {
	for _, m := range marks {
		if m == want {
			return true
		}
	}
	return false
}

func (e *Engine) executeActions(conn Commander, w WindowRef, actions []model.RuleAction) []ActionResult {
	results := make([]ActionResult, 0, len(actions))
	for _, action := range actions {
		start := time.Now()
		res := e.executeOne(conn, w, action)
		if elapsed := time.Since(start); elapsed > 25*time.Millisecond {
			e.log.Printf("action %v exceeded 25ms budget: took %s", action.Kind, elapsed)
		}
		results = append(results, res)
	}
	return results
}

func (e *Engine) executeOne(conn Commander, w WindowRef, action model.RuleAction) ActionResult {
	switch action.Kind {
	case model.ActionWorkspace:
		active := conn.ActiveWorkspaces()
		if _, ok := active[action.Target]; !ok {
			return ActionResult{Action: action, Success: false, Error: fmt.Sprintf("workspace %d is not on an active output", action.Target)}
		}
		cmd := fmt.Sprintf("[con_id=%d] move container to workspace number %d", w.ConID, action.Target)
		res, err := conn.Command(cmd)
		return toResult(action, res, err)

	case model.ActionMark:
		cmd := fmt.Sprintf(`[id=%d] mark --add "%s"`, w.SurfaceID, action.Value)
		res, err := conn.Command(cmd)
		return toResult(action, res, err)

	case model.ActionFloat:
		verb := "disable"
		if action.Enable {
			verb = "enable"
		}
		cmd := fmt.Sprintf("[con_id=%d] floating %s", w.ConID, verb)
		res, err := conn.Command(cmd)
		return toResult(action, res, err)

	case model.ActionLayout:
		switch action.LayoutMode {
		case "tabbed", "stacked", "splitv", "splith":
		default:
			return ActionResult{Action: action, Success: false, Error: fmt.Sprintf("invalid layout mode %q", action.LayoutMode)}
		}
		cmd := fmt.Sprintf("[con_id=%d] layout %s", w.ConID, action.LayoutMode)
		res, err := conn.Command(cmd)
		return toResult(action, res, err)

	default:
		return ActionResult{Action: action, Success: false, Error: "unknown action kind"}
	}
}

func toResult(action model.RuleAction, res wstracker.CommandResult, err error) ActionResult {
	if err != nil {
		return ActionResult{Action: action, Success: false, Error: err.Error()}
	}
	return ActionResult{Action: action, Success: res.Success, Error: res.Error}
}

// Watcher hot-reloads the rules file on change, debounced, and swaps the
// engine's rule list atomically.
type Watcher struct {
	engine    *Engine
	path      string
	fsWatcher *fsnotify.Watcher
	debouncer *watcher.Debouncer
	log       *logx.Logger
	closeCh   chan struct{}
	wg        sync.WaitGroup
}

// NewWatcher starts watching path for changes, applying them to engine
// after the given debounce duration (default 100ms).
func NewWatcher(engine *Engine, path string, debounce time.Duration, log *logx.Logger) (*Watcher, error) {
	if log == nil {
		log = logx.New("rules.watcher")
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsWatcher.Add(path); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("watch rules file: %w", err)
	}

	w := &Watcher{
		engine:    engine,
		path:      path,
		fsWatcher: fsWatcher,
		debouncer: watcher.NewDebouncer(debounce),
		log:       log,
		closeCh:   make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.closeCh:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.debouncer.Debounce("rules", w.reload)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Printf("watch error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	rules, err := LoadFile(w.path)
	if err != nil {
		w.log.Printf("reload rules failed: %v", err)
		return
	}
	w.engine.SetRules(rules)
	w.log.Printf("reloaded %d rules", len(rules))
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.closeCh)
	w.debouncer.Stop()
	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}

// LoadFile reads and parses window-rules.json into an ordered Rule list.
func LoadFile(path string) ([]model.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var raw []ruleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	rules := make([]model.Rule, 0, len(raw))
	for _, r := range raw {
		rules = append(rules, r.toModel())
	}
	return rules, nil
}

type ruleJSON struct {
	Match struct {
		Class       string `json:"class"`
		Instance    string `json:"instance"`
		TitleRegex  string `json:"title_regex"`
		MarkPresent string `json:"mark_present"`
		MarkAbsent  string `json:"mark_absent"`
	} `json:"match"`
	Actions  []actionJSON `json:"actions"`
	Priority int          `json:"priority"`
}

type actionJSON struct {
	Type       string `json:"type"`
	Target     int    `json:"target"`
	Value      string `json:"value"`
	Enable     bool   `json:"enable"`
	LayoutMode string `json:"mode"`
}

func (r ruleJSON) toModel() model.Rule {
	actions := make([]model.RuleAction, 0, len(r.Actions))
	for _, a := range r.Actions {
		switch a.Type {
		case "workspace":
			actions = append(actions, model.RuleAction{Kind: model.ActionWorkspace, Target: a.Target})
		case "mark":
			actions = append(actions, model.RuleAction{Kind: model.ActionMark, Value: a.Value})
		case "float":
			actions = append(actions, model.RuleAction{Kind: model.ActionFloat, Enable: a.Enable})
		case "layout":
			actions = append(actions, model.RuleAction{Kind: model.ActionLayout, LayoutMode: a.LayoutMode})
		}
	}
	return model.Rule{
		Match: model.MatchCriteria{
			Class:       r.Match.Class,
			Instance:    r.Match.Instance,
			TitleRegex:  r.Match.TitleRegex,
			MarkPresent: r.Match.MarkPresent,
			MarkAbsent:  r.Match.MarkAbsent,
		},
		Actions:  actions,
		Priority: r.Priority,
	}
}
