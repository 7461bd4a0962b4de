// Package router implements C14: the single-consumer dispatcher that owns
// the main loop once C1 connects and subscribes, translating raw WM events
// into domain events and invoking C5/C7/C8/C9/C10/C11/C12/C13 in a fixed
// order: for a new window, identity resolution, then launch matching, state
// update, mark application and rule evaluation, followed by the ring append
// and subscriber notification.
package router

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/i3pm/eventcore/internal/eventring"
	"github.com/i3pm/eventcore/internal/hashcache"
	"github.com/i3pm/eventcore/internal/identity"
	"github.com/i3pm/eventcore/internal/logx"
	"github.com/i3pm/eventcore/internal/modemgr"
	"github.com/i3pm/eventcore/internal/model"
	"github.com/i3pm/eventcore/internal/procenv"
	"github.com/i3pm/eventcore/internal/rules"
	"github.com/i3pm/eventcore/internal/state"
	"github.com/i3pm/eventcore/internal/wmconn"
	"github.com/i3pm/eventcore/internal/wstracker"
)

// Notifier pushes a notification to subscribed RPC clients.
type Notifier interface {
	Broadcast(method string, params interface{})
}

// LaunchMatcher is C10's find_match, invoked for every new window.
type LaunchMatcher interface {
	FindMatch(w LaunchWindow) (LaunchMatch, bool)
}

// LaunchWindow and LaunchMatch mirror launchcorr's types, redeclared here to
// avoid importing launchcorr purely for its struct shapes in router's
// public surface.
type LaunchWindow struct {
	Class     string
	Workspace int
	Timestamp time.Time
}

type LaunchMatch struct {
	LaunchID   string
	Project    string
	Confidence float64
}

// ConfigReloadFunc reloads classification/rules on a tick sync signal.
type ConfigReloadFunc func() error

// ModeManager is C12's mode-state machine, as driven by WM-level mode
// events rather than RPC-issued keystrokes: when the user backs out of a
// mode with the WM's own Escape binding, the only signal the daemon sees is
// this event, so the router forwards it to keep C12's state in sync.
type ModeManager interface {
	State() model.ModeState
	Cancel() modemgr.Event
}

// ActionCorrelator is C11's RecordAction, invoked for every binding event
// so a later window/workspace change can be attributed to the keypress
// that caused it.
type ActionCorrelator interface {
	RecordAction(actionType model.ActionType, symbol, command string, tsMS int64) model.UserAction
}

// WMConn is the subset of C1's Conn the router drives directly: issuing
// commands (also satisfying rules.Commander) and reconnecting after a WM
// restart. Kept as an interface so router_test.go can exercise dispatch
// logic against a fake WM session.
type WMConn interface {
	Command(cmdline string) (wstracker.CommandResult, error)
	ActiveWorkspaces() map[int]struct{}
	ConnectWithRetry(maxAttempts int) error
}

// Router wires C1 events into the rest of the daemon.
type Router struct {
	conn      WMConn
	store     *state.Store
	resolver  *identity.Resolver
	ruleEng   *rules.Engine
	ring      *eventring.Ring
	hashCache *hashcache.Cache
	tracker   *wstracker.Tracker
	launch    LaunchMatcher
	notifier  Notifier
	reload    ConfigReloadFunc
	modeMgr   ModeManager
	actionCor ActionCorrelator
	log       *logx.Logger

	projectExists func(string) bool
	classification func() model.Classification
}

// Deps bundles Router's collaborators.
type Deps struct {
	Conn           WMConn
	Store          *state.Store
	Resolver       *identity.Resolver
	Rules          *rules.Engine
	Ring           *eventring.Ring
	HashCache      *hashcache.Cache
	Tracker        *wstracker.Tracker
	Launch         LaunchMatcher
	Notifier       Notifier
	Reload         ConfigReloadFunc
	ModeManager    ModeManager
	ActionCorr     ActionCorrelator
	ProjectExists  func(string) bool
	Classification func() model.Classification
	Log            *logx.Logger
}

// New builds a Router from its dependencies.
func New(d Deps) *Router {
	log := d.Log
	if log == nil {
		log = logx.New("router")
	}
	return &Router{
		conn: d.Conn, store: d.Store, resolver: d.Resolver, ruleEng: d.Rules,
		ring: d.Ring, hashCache: d.HashCache, tracker: d.Tracker, launch: d.Launch,
		notifier: d.Notifier, reload: d.Reload, log: log,
		modeMgr: d.ModeManager, actionCor: d.ActionCorr,
		projectExists: d.ProjectExists, classification: d.Classification,
	}
}

// Handle is the wmconn.EventHandler invoked on C1's single read-loop
// goroutine. Running every event on that one goroutine, rather than
// fanning out, is what keeps per-window event ordering intact.
func (rt *Router) Handle(ev wmconn.RawEvent) {
	switch ev.Class {
	case wmconn.ClassWindow:
		rt.handleWindow(ev)
	case wmconn.ClassWorkspace:
		rt.handleWorkspace(ev)
	case wmconn.ClassOutput:
		rt.handleOutput(ev)
	case wmconn.ClassMode:
		rt.handleMode(ev)
	case wmconn.ClassTick:
		rt.handleTick(ev)
	case wmconn.ClassBinding:
		rt.handleBinding(ev)
	case wmconn.ClassShutdown:
		rt.handleShutdown(ev)
	}
}

func (rt *Router) appendRing(eventType string, source model.EventSource, fields map[string]interface{}) model.RingEntry {
	entry := rt.ring.Add(model.RingEntry{
		Timestamp: time.Now(),
		EventType: eventType,
		Source:    source,
		Fields:    fields,
	})
	rt.notifier.Broadcast("event_notification", entry)
	return entry
}

func (rt *Router) handleWindow(ev wmconn.RawEvent) {
	container, _ := ev.Payload["container"].(map[string]interface{})
	conID := asInt64(container["id"])

	switch ev.Change {
	case "new":
		rt.onWindowNew(conID, container)
	case "mark":
		rt.onWindowMark(conID, container)
	case "close":
		rt.store.RemoveWindow(conID)
		rt.appendRing("window::close", model.SourceWM, map[string]interface{}{"con_id": conID})
	case "focus":
		ws, _ := container["workspace"].(string)
		rt.store.SetFocusedWindow(ws, conID)
		rt.appendRing("window::focus", model.SourceWM, map[string]interface{}{"con_id": conID})
	case "move", "floating", "fullscreen_mode", "title":
		rt.onWindowFieldChange(ev.Change, conID, container)
	}
}

func (rt *Router) onWindowNew(conID int64, container map[string]interface{}) {
	class, _ := container["window_properties"].(map[string]interface{})["class"].(string)
	title, _ := container["name"].(string)
	wmPID := asInt64(container["pid"])

	env := procenv.ReadEnviron(wmPID)
	result := rt.resolver.Resolve(
		identity.WindowAttrs{ConID: conID, Class: class, Title: title, WMPID: wmPID},
		env,
		rt.projectExists,
		rt.classification(),
	)

	window := model.WindowRecord{
		ConID:         conID,
		Class:         class,
		Title:         title,
		Project:       result.Project,
		AppIdentifier: result.App,
		Scope:         result.Scope,
		Marks:         []string{result.Mark},
		CreatedAt:     time.Now(),
	}

	if rt.launch != nil {
		if m, ok := rt.launch.FindMatch(LaunchWindow{Class: class, Timestamp: time.Now()}); ok {
			window.Project = m.Project
			window.Correlation = &model.LaunchCorrelation{LaunchID: m.LaunchID, Confidence: m.Confidence}
		}
	}

	rt.store.AddWindow(window)

	marks := append([]string{result.Mark}, result.ExtraMarks...)
	for _, m := range marks {
		_, _ = rt.conn.Command(fmt.Sprintf(`[con_id=%d] mark --add "%s"`, conID, m))
	}

	if rt.ruleEng != nil {
		rt.ruleEng.Evaluate(rt.conn, rules.WindowRef{ConID: conID, Class: class, Title: title, Marks: marks})
	}

	rt.appendRing("window::new", model.SourceWM, map[string]interface{}{
		"con_id": conID, "class": class, "project": result.Project,
	})
}

func (rt *Router) onWindowMark(conID int64, container map[string]interface{}) {
	marks, _ := container["marks"].([]interface{})
	strMarks := make([]string, 0, len(marks))
	for _, m := range marks {
		if s, ok := m.(string); ok {
			strMarks = append(strMarks, s)
		}
	}
	rt.store.UpdateWindow(conID, func(w *model.WindowRecord) bool { w.Marks = strMarks; return true })
	rt.hashCache.Invalidate(conID)
	rt.appendRing("window::mark", model.SourceWM, map[string]interface{}{"con_id": conID, "marks": strMarks})
}

func (rt *Router) onWindowFieldChange(change string, conID int64, container map[string]interface{}) {
	rt.store.UpdateWindow(conID, func(w *model.WindowRecord) bool {
		switch change {
		case "title":
			if t, ok := container["name"].(string); ok {
				w.Title = t
			}
		case "floating":
			if f, ok := container["floating"].(string); ok {
				w.Floating = f == "user_on" || f == "auto_on"
			}
		case "fullscreen_mode":
			// fullscreen state is observable via container["fullscreen_mode"]
			// but WindowRecord does not track it separately; re-evaluated
			// from the WM tree on demand, so nothing to update here.
		}
		return true
	})
	rt.hashCache.Invalidate(conID)
	rt.appendRing("window::"+change, model.SourceWM, map[string]interface{}{"con_id": conID})

	if change == "title" && rt.ruleEng != nil {
		if w, ok := rt.store.GetWindow(conID); ok {
			rt.ruleEng.Evaluate(rt.conn, rules.WindowRef{ConID: conID, Class: w.Class, Title: w.Title})
		}
	}
}

func (rt *Router) handleWorkspace(ev wmconn.RawEvent) {
	name, _ := ev.Payload["current"].(map[string]interface{})["name"].(string)
	switch ev.Change {
	case "init":
		rt.store.AddWorkspace(name)
	case "empty":
		rt.store.RemoveWorkspace(name)
	case "focus":
		current, _ := rt.store.ActiveProject()
		rt.store.SetFocusedWorkspace(current, name)
	}
	rt.appendRing("workspace::"+ev.Change, model.SourceWM, map[string]interface{}{"name": name})
}

func (rt *Router) handleOutput(ev wmconn.RawEvent) {
	rt.appendRing("output::"+ev.Change, model.SourceWM, nil)
}

func (rt *Router) handleMode(ev wmconn.RawEvent) {
	name, _ := ev.Payload["change"].(string)
	if rt.modeMgr != nil && name == "default" {
		// The WM's own Escape binding can exit a mode without ever going
		// through the RPC/keybinding path Cancel is normally called from;
		// forwarding keeps C12's tracked mode from going stale.
		if rt.modeMgr.State().Mode != model.ModeInactive {
			rt.modeMgr.Cancel()
		}
	}
	rt.appendRing("mode::"+ev.Change, model.SourceWM, ev.Payload)
}

func (rt *Router) handleTick(ev wmconn.RawEvent) {
	payload, _ := ev.Payload["payload"].(string)
	if payload == "i3pm:reload-config" && rt.reload != nil {
		if err := rt.reload(); err != nil {
			rt.log.Printf("config reload failed: %v", err)
		}
	}
	rt.appendRing("tick", model.SourceWM, map[string]interface{}{"payload": payload})
}

func (rt *Router) handleBinding(ev wmconn.RawEvent) {
	if rt.actionCor != nil {
		binding, _ := ev.Payload["binding"].(map[string]interface{})
		command, _ := binding["command"].(string)
		symbol, _ := binding["symbol"].(string)
		rt.actionCor.RecordAction(model.ActionBinding, symbol, command, time.Now().UnixMilli())
	}
	rt.appendRing("binding", model.SourceWM, ev.Payload)
}

func (rt *Router) handleShutdown(ev wmconn.RawEvent) {
	rt.appendRing("shutdown::"+ev.Change, model.SourceWM, nil)
	if ev.Change == "restart" {
		go func() {
			if err := rt.conn.ConnectWithRetry(0); err != nil {
				rt.log.Printf("reconnect after restart failed: %v", err)
			}
		}()
	}
}

// RunMaintenance runs C14's two background upkeep tasks until ctx is
// cancelled: a 60s sweep of expired C2 entries and a 5-minute
// memory-introspection log. Both are low-priority and safe to skip under
// load, so callers should run this on its own goroutine.
func (rt *Router) RunMaintenance(ctx context.Context) {
	sweepTicker := time.NewTicker(60 * time.Second)
	defer sweepTicker.Stop()
	memTicker := time.NewTicker(5 * time.Minute)
	defer memTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweepTicker.C:
			if rt.hashCache != nil {
				removed := rt.hashCache.CleanupExpired()
				if removed > 0 {
					rt.log.Printf("hash cache sweep: removed %d expired entries", removed)
				}
			}
		case <-memTicker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			rt.log.Printf("memory: alloc=%dKB sys=%dKB goroutines=%d", m.Alloc/1024, m.Sys/1024, runtime.NumGoroutine())
		}
	}
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}
