// Package eventd assembles the window-project daemon (i3pm-eventd): C1's
// window-manager connection feeding C14's router, which in turn drives
// C5-C13 and the optional C15 panel publisher and debug HTTP surface. It
// mirrors the teacher codebase's internal/app.App composition root:
// New builds every collaborator, Initialize brings persisted state back in,
// Start launches the long-running subsystems, and Run blocks until a signal
// or a fatal subsystem error triggers Shutdown.
package eventd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/i3pm/eventcore/internal/actioncorr"
	"github.com/i3pm/eventcore/internal/config"
	"github.com/i3pm/eventcore/internal/debughttp"
	"github.com/i3pm/eventcore/internal/eventring"
	"github.com/i3pm/eventcore/internal/hashcache"
	"github.com/i3pm/eventcore/internal/identity"
	"github.com/i3pm/eventcore/internal/launchcorr"
	"github.com/i3pm/eventcore/internal/logx"
	"github.com/i3pm/eventcore/internal/modemgr"
	"github.com/i3pm/eventcore/internal/model"
	"github.com/i3pm/eventcore/internal/panelpub"
	"github.com/i3pm/eventcore/internal/projects"
	"github.com/i3pm/eventcore/internal/projectswitch"
	"github.com/i3pm/eventcore/internal/router"
	"github.com/i3pm/eventcore/internal/rpc"
	"github.com/i3pm/eventcore/internal/rules"
	"github.com/i3pm/eventcore/internal/sdnotify"
	"github.com/i3pm/eventcore/internal/state"
	"github.com/i3pm/eventcore/internal/wmconn"
	"github.com/i3pm/eventcore/internal/wstracker"
)

// Options configures Daemon construction.
type Options struct {
	ConfigPath string
	Version    string
}

// Daemon owns every collaborator of the window-project daemon.
type Daemon struct {
	cfg *config.Config
	log *logx.Logger

	hashCache     *hashcache.Cache
	ring          *eventring.Ring
	store         *state.Store
	tracker       *wstracker.Tracker
	resolver      *identity.Resolver
	rulesEngine   *rules.Engine
	rulesWatcher  *rules.Watcher
	projectsStore *projects.Store
	conn          *wmconn.Conn
	launcher      *projectswitch.CommandLauncher
	coordinator   *projectswitch.Coordinator
	launchReg     *launchcorr.Registry
	actionCorr    *actioncorr.Correlator
	modeMgr       *modemgr.Manager
	rpcServer     *rpc.Server
	rt            *router.Router
	panelPub      *panelpub.Publisher
	debugSrv      *debughttp.Server

	switcher *asyncSwitcher

	group   *errgroup.Group
	groupCtx context.Context

	startedAt time.Time
	connected atomic.Bool
}

// New builds a Daemon from configuration at opts.ConfigPath (auto-detected
// if empty), wiring every collaborator but performing no I/O beyond the
// config read itself. Call Initialize, then Start (or Run for both plus the
// signal-driven shutdown loop).
func New(opts Options) (*Daemon, error) {
	loader := config.NewLoader()
	path := opts.ConfigPath
	if path == "" {
		found, err := loader.FindConfig("i3pm-eventd.hjson", "i3pm-eventd.json")
		if err != nil {
			return nil, err
		}
		path = found
	}
	cfg, err := loader.LoadWithDefaults(context.Background(), path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	d := &Daemon{cfg: cfg, log: logx.New("i3pm-eventd")}

	d.hashCache = hashcache.New(
		time.Duration(cfg.HashCache.TTLSeconds)*time.Second,
		time.Duration(cfg.HashCache.OpportunisticSweepSeconds)*time.Second,
	)
	d.ring = eventring.New(cfg.Ring.Capacity, d.onRingEntry)
	d.store = state.New()
	d.tracker = wstracker.New(cfg.Tracker.FilePath)
	d.projectsStore = projects.NewStore(cfg.ProjectsDir)

	titleOverride := make(map[string]struct{}, len(cfg.Identity.TitleOverrideClasses))
	for _, c := range cfg.Identity.TitleOverrideClasses {
		titleOverride[c] = struct{}{}
	}
	d.resolver = identity.NewResolver(titleOverride)

	d.rulesEngine = rules.New(d.log.With("c8"))

	d.conn = wmconn.New(wmconn.Options{
		SocketEnvVars:        cfg.WM.SocketEnvVars,
		RuntimeDirOverride:   cfg.WM.RuntimeDirOverride,
		MaxReconnectAttempts: cfg.WM.MaxReconnectAttempts,
		InitialBackoff:       time.Duration(cfg.WM.InitialBackoffMS) * time.Millisecond,
		MaxBackoff:           time.Duration(cfg.WM.MaxBackoffMS) * time.Millisecond,
		MarkDelay:            time.Duration(cfg.WM.MarkDelayMS) * time.Millisecond,
		MarkRaceLastClasses:  cfg.WM.MarkRaceLastClasses,
	}, d.log.With("c1"))

	d.launcher = projectswitch.NewCommandLauncher(d.conn, d.log.With("c9.launcher"))
	d.coordinator = projectswitch.New(d.store, d.tracker, d.conn, d.launcher, d.projectsStore.Get, d.log.With("c9"))
	d.launchReg = launchcorr.New(time.Duration(cfg.Launch.TTLSeconds) * time.Second)
	d.actionCorr = actioncorr.New()
	d.modeMgr = modemgr.New(d.conn, coordinatorSwitcher{d.coordinator}, d.projectsStore.Names)

	d.rpcServer = rpc.New(cfg.RPC.SocketPath, d.log.With("c13"))
	d.switcher = newAsyncSwitcher(d.coordinator, d.log.With("c9.queue"))
	rpc.RegisterDaemonMethods(d.rpcServer, d.store, d.ring, d, d.switcher, d, d.projectsStore.Get)

	d.rt = router.New(router.Deps{
		Conn:           d.conn,
		Store:          d.store,
		Resolver:       d.resolver,
		Rules:          d.rulesEngine,
		Ring:           d.ring,
		HashCache:      d.hashCache,
		Tracker:        d.tracker,
		Launch:         launchMatcher{d.launchReg},
		Notifier:       d.rpcServer,
		Reload:         d.Reload,
		ModeManager:    d.modeMgr,
		ActionCorr:     d.actionCorr,
		ProjectExists:  d.projectsStore.Exists,
		Classification: d.store.Classification,
		Log:            d.log.With("c14"),
	})

	if cfg.Panel.Enabled {
		d.panelPub = panelpub.New(d.store, d.conn,
			cfg.Panel.Command,
			time.Duration(cfg.Panel.DebounceMS)*time.Millisecond,
			time.Duration(cfg.Panel.TimeoutMS)*time.Millisecond,
			d.log.With("c15"))
	}
	if cfg.DebugHTTP.Enabled {
		d.debugSrv = debughttp.New(cfg.DebugHTTP.Addr, d.ring, d, d.log.With("debughttp"))
	}

	return d, nil
}

// Initialize loads persisted state from disk: the workspace tracker, known
// projects, the active-project pointer, classification rules, and window
// rules. It performs no network or socket I/O.
func (d *Daemon) Initialize(ctx context.Context) error {
	if err := d.tracker.Load(); err != nil {
		return fmt.Errorf("load workspace tracker: %w", err)
	}
	if err := d.projectsStore.Load(); err != nil {
		return fmt.Errorf("load projects: %w", err)
	}
	if active, err := projects.LoadActiveProject(d.cfg.ActiveProjectPath); err != nil {
		d.log.Printf("load active project: %v", err)
	} else if active.Current != "" {
		d.store.SetActiveProject(active.Current)
	}

	classification, err := identity.LoadClassification(d.cfg.ClassificationPath)
	if err != nil {
		d.log.Printf("load classification: %v", err)
	} else {
		d.store.SetClassification(classification)
	}

	if err := d.loadRules(); err != nil {
		d.log.Printf("load rules: %v", err)
	}
	if _, err := os.Stat(d.cfg.Rules.FilePath); err == nil {
		watcher, err := rules.NewWatcher(d.rulesEngine, d.cfg.Rules.FilePath,
			time.Duration(d.cfg.Rules.DebounceMS)*time.Millisecond, d.log.With("c8.watcher"))
		if err != nil {
			d.log.Printf("watch rules file: %v", err)
		} else {
			d.rulesWatcher = watcher
		}
	}

	return nil
}

func (d *Daemon) loadRules() error {
	rs, err := rules.LoadFile(d.cfg.Rules.FilePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	d.rulesEngine.SetRules(rs)
	return nil
}

var subscribedClasses = []wmconn.EventClass{
	wmconn.ClassWindow, wmconn.ClassWorkspace, wmconn.ClassOutput,
	wmconn.ClassMode, wmconn.ClassTick, wmconn.ClassBinding, wmconn.ClassShutdown,
}

// Start connects to the window manager, subscribes the router, and launches
// every long-running subsystem under a shared errgroup: a fatal error in
// any one cancels the group's context and brings the rest down together.
func (d *Daemon) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	d.group = g
	d.groupCtx = gctx

	if err := d.conn.ConnectWithRetry(d.cfg.WM.MaxReconnectAttempts); err != nil {
		return fmt.Errorf("connect to window manager: %w", err)
	}
	if err := d.conn.Subscribe(subscribedClasses, d.rt.Handle); err != nil {
		return fmt.Errorf("subscribe to window manager events: %w", err)
	}
	d.connected.Store(true)
	g.Go(d.conn.Run)

	if err := d.rpcServer.Start(gctx); err != nil {
		return fmt.Errorf("start rpc server: %w", err)
	}

	g.Go(func() error {
		d.rt.RunMaintenance(gctx)
		return nil
	})
	g.Go(func() error {
		d.switcher.run(gctx)
		return nil
	})

	if d.panelPub != nil {
		d.panelPub.Start()
	}
	if d.debugSrv != nil {
		d.debugSrv.Start(gctx)
	}

	if interval := d.cfg.Watchdog.IntervalSeconds; interval > 0 {
		g.Go(func() error {
			d.runWatchdog(gctx, time.Duration(interval)*time.Second/3)
			return nil
		})
	}

	d.startedAt = time.Now()
	if err := sdnotify.Ready(); err != nil {
		d.log.Printf("sd_notify READY failed: %v", err)
	}
	return nil
}

func (d *Daemon) runWatchdog(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sdnotify.Watchdog(); err != nil {
				d.log.Printf("sd_notify WATCHDOG failed: %v", err)
			}
		}
	}
}

// Run initializes, starts, and blocks until a termination signal, a
// cancelled ctx, or a fatal subsystem error, then runs Shutdown.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Initialize(ctx); err != nil {
		return err
	}
	if err := d.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() { errCh <- d.group.Wait() }()

	select {
	case sig := <-sigCh:
		d.log.Printf("received signal %v, shutting down", sig)
	case <-ctx.Done():
		d.log.Printf("context cancelled, shutting down")
	case err := <-errCh:
		if err != nil {
			d.log.Printf("subsystem error, shutting down: %v", err)
		}
	}

	return d.Shutdown(context.Background())
}

// Shutdown tears every subsystem down within the configured overall budget,
// draining the switch queue and persisting tracker state before closing the
// window-manager connection and RPC socket.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.log.Println("shutting down")
	if err := sdnotify.Stopping(); err != nil {
		d.log.Printf("sd_notify STOPPING failed: %v", err)
	}
	d.connected.Store(false)

	budget := time.Duration(d.cfg.Shutdown.OverallBudgetSeconds) * time.Second
	if budget <= 0 {
		budget = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	drainBudget := time.Duration(d.cfg.Shutdown.SwitchQueueDrainSeconds) * time.Second
	d.switcher.drain(shutdownCtx, drainBudget)

	if d.rulesWatcher != nil {
		d.rulesWatcher.Close()
	}
	if d.panelPub != nil {
		d.panelPub.Close()
	}
	if err := d.tracker.Save(); err != nil {
		d.log.Printf("save workspace tracker: %v", err)
	}

	if d.debugSrv != nil {
		if err := d.debugSrv.Shutdown(shutdownCtx); err != nil {
			d.log.Printf("shutdown debug http server: %v", err)
		}
	}
	if err := d.rpcServer.Close(); err != nil {
		d.log.Printf("close rpc server: %v", err)
	}
	if err := d.conn.Close(); err != nil {
		d.log.Printf("close window manager connection: %v", err)
	}

	if d.group != nil {
		if err := d.group.Wait(); err != nil {
			d.log.Printf("subsystem exited with error: %v", err)
		}
	}

	d.log.Println("shutdown complete")
	return nil
}

// Reload re-reads rules, project configs, and classification from disk,
// satisfying rpc.ConfigReloader for the reload_config RPC method and the
// "i3pm:reload-config" tick payload.
func (d *Daemon) Reload() error {
	if err := d.loadRules(); err != nil {
		return fmt.Errorf("reload rules: %w", err)
	}
	if err := d.projectsStore.Load(); err != nil {
		return fmt.Errorf("reload projects: %w", err)
	}
	classification, err := identity.LoadClassification(d.cfg.ClassificationPath)
	if err != nil {
		return fmt.Errorf("reload classification: %w", err)
	}
	d.store.SetClassification(classification)
	d.log.Println("config reloaded")
	return nil
}

// UptimeSeconds satisfies rpc.StatusProvider / debughttp.StatusProvider.
func (d *Daemon) UptimeSeconds() int64 {
	if d.startedAt.IsZero() {
		return 0
	}
	return int64(time.Since(d.startedAt).Seconds())
}

// Connected satisfies rpc.StatusProvider / debughttp.StatusProvider.
func (d *Daemon) Connected() bool {
	return d.connected.Load()
}

// onRingEntry fans a newly accepted ring entry out to the optional C15
// panel publisher and debug HTTP surface. RPC subscribers are notified
// directly by the router, which already holds the entry it just appended.
func (d *Daemon) onRingEntry(entry model.RingEntry) {
	if d.panelPub != nil {
		d.panelPub.OnRingEntry(entry)
	}
	if d.debugSrv != nil {
		d.debugSrv.Broadcast(entry)
	}
}

// coordinatorSwitcher adapts projectswitch.Coordinator's context-aware,
// result-returning Switch to modemgr.ProjectSwitcher's synchronous
// name-in-error-out shape used by project-mode execute().
type coordinatorSwitcher struct {
	coordinator *projectswitch.Coordinator
}

func (a coordinatorSwitcher) Switch(name string) error {
	_, err := a.coordinator.Switch(context.Background(), name)
	return err
}

// launchMatcher adapts launchcorr.Registry to router.LaunchMatcher, whose
// LaunchWindow/LaunchMatch types are redeclared locally in router to avoid
// an import purely for struct shapes.
type launchMatcher struct {
	registry *launchcorr.Registry
}

func (m launchMatcher) FindMatch(w router.LaunchWindow) (router.LaunchMatch, bool) {
	match, ok := m.registry.FindMatch(launchcorr.Window{Class: w.Class, Workspace: w.Workspace, Timestamp: w.Timestamp})
	if !ok {
		return router.LaunchMatch{}, false
	}
	return router.LaunchMatch{LaunchID: match.LaunchID, Project: match.Project, Confidence: match.Confidence}, true
}

// asyncSwitcher queues switch_project RPC requests onto a buffered channel
// so the RPC handler returns immediately ({"enqueued": true}), while a
// single worker goroutine runs them through the coordinator's own
// serialized Switch.
type asyncSwitcher struct {
	coordinator *projectswitch.Coordinator
	log         *logx.Logger
	queue       chan string
	done        chan struct{}
}

func newAsyncSwitcher(coordinator *projectswitch.Coordinator, log *logx.Logger) *asyncSwitcher {
	return &asyncSwitcher{
		coordinator: coordinator,
		log:         log,
		queue:       make(chan string, 32),
		done:        make(chan struct{}),
	}
}

// SwitchAsync satisfies rpc.ProjectSwitcher. A full queue drops the new
// request; callers retry via RPC.
func (a *asyncSwitcher) SwitchAsync(project string) {
	select {
	case a.queue <- project:
	default:
		a.log.Printf("switch queue full, dropping request for %q", project)
	}
}

func (a *asyncSwitcher) run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return
		case name, ok := <-a.queue:
			if !ok {
				return
			}
			if _, err := a.coordinator.Switch(ctx, name); err != nil {
				a.log.Printf("switch to %q failed: %v", name, err)
			}
		}
	}
}

// drain waits for the queue to empty, up to budget, before returning.
func (a *asyncSwitcher) drain(ctx context.Context, budget time.Duration) {
	drainCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	for {
		select {
		case <-drainCtx.Done():
			return
		default:
		}
		if len(a.queue) == 0 {
			return
		}
		select {
		case <-drainCtx.Done():
			return
		case <-time.After(20 * time.Millisecond):
		}
	}
}
