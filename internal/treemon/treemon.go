// Package treemon assembles the tree-diff daemon (i3pm-treemon): C1's
// window-manager connection feeding C2's hash cache and C3's differ on
// every structural event, with each resulting diff appended to its own C4
// ring and exposed over C13's RPC surface. It does not run C14's router —
// this daemon observes tree structure independently of project/window
// identity, so it keeps its own minimal dispatch loop.
package treemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/i3pm/eventcore/internal/config"
	"github.com/i3pm/eventcore/internal/eventring"
	"github.com/i3pm/eventcore/internal/hashcache"
	"github.com/i3pm/eventcore/internal/logx"
	"github.com/i3pm/eventcore/internal/model"
	"github.com/i3pm/eventcore/internal/rpc"
	"github.com/i3pm/eventcore/internal/sdnotify"
	"github.com/i3pm/eventcore/internal/treediff"
	"github.com/i3pm/eventcore/internal/wmconn"
)

// Options configures Daemon construction.
type Options struct {
	ConfigPath string
	Version    string
}

// Daemon owns the tree-diff daemon's collaborators.
type Daemon struct {
	cfg *config.Config
	log *logx.Logger

	hashCache *hashcache.Cache
	differ    *treediff.Differ
	ring      *eventring.Ring
	conn      *wmconn.Conn
	rpcServer *rpc.Server

	group    *errgroup.Group
	groupCtx context.Context

	prevMu    chan struct{} // buffered(1) mutex guarding prev
	prev      model.TreeSnapshot
	startedAt time.Time
	connected atomic.Bool
}

// New builds a Daemon from configuration at opts.ConfigPath (auto-detected
// if empty), reusing the same config document shape as i3pm-eventd's, since
// both daemons share ring/hash-cache/WM-connection tuning knobs.
func New(opts Options) (*Daemon, error) {
	loader := config.NewLoader()
	path := opts.ConfigPath
	if path == "" {
		found, err := loader.FindConfig("i3pm-treemon.hjson", "i3pm-treemon.json")
		if err != nil {
			return nil, err
		}
		path = found
	}
	cfg, err := loader.LoadWithDefaults(context.Background(), path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	d := &Daemon{cfg: cfg, log: logx.New("i3pm-treemon")}

	d.hashCache = hashcache.New(
		time.Duration(cfg.HashCache.TTLSeconds)*time.Second,
		time.Duration(cfg.HashCache.OpportunisticSweepSeconds)*time.Second,
	)
	d.differ = treediff.New(d.hashCache)
	d.ring = eventring.New(cfg.Ring.Capacity, nil)
	d.prevMu = make(chan struct{}, 1)
	d.prevMu <- struct{}{}

	d.conn = wmconn.New(wmconn.Options{
		SocketEnvVars:        cfg.WM.SocketEnvVars,
		RuntimeDirOverride:   cfg.WM.RuntimeDirOverride,
		MaxReconnectAttempts: cfg.WM.MaxReconnectAttempts,
		InitialBackoff:       time.Duration(cfg.WM.InitialBackoffMS) * time.Millisecond,
		MaxBackoff:           time.Duration(cfg.WM.MaxBackoffMS) * time.Millisecond,
		MarkDelay:            time.Duration(cfg.WM.MarkDelayMS) * time.Millisecond,
		MarkRaceLastClasses:  cfg.WM.MarkRaceLastClasses,
	}, d.log.With("c1"))

	d.rpcServer = rpc.New(cfg.RPC.SocketPath, d.log.With("c13"))
	rpc.RegisterTreeMonMethods(d.rpcServer, d.ring, d)

	return d, nil
}

// relevantClasses triggers a re-snapshot: layout-affecting events only.
// Focus-only and binding/tick events never change tree structure and are
// skipped to keep GetTree calls proportional to actual structural churn.
var relevantClasses = []wmconn.EventClass{
	wmconn.ClassWindow, wmconn.ClassWorkspace, wmconn.ClassOutput, wmconn.ClassShutdown,
}

// Initialize does no work for this daemon: the baseline tree snapshot the
// first observed event is diffed against is taken in Start, once connected.
func (d *Daemon) Initialize(ctx context.Context) error {
	return nil
}

// Start connects to the window manager, subscribes this daemon's own
// dispatch loop, and launches every long-running subsystem under a shared
// errgroup.
func (d *Daemon) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	d.group = g
	d.groupCtx = gctx

	if err := d.conn.ConnectWithRetry(d.cfg.WM.MaxReconnectAttempts); err != nil {
		return fmt.Errorf("connect to window manager: %w", err)
	}
	if err := d.snapshot("startup"); err != nil {
		d.log.Printf("initial snapshot: %v", err)
	}
	if err := d.conn.Subscribe(relevantClasses, d.onEvent); err != nil {
		return fmt.Errorf("subscribe to window manager events: %w", err)
	}
	d.connected.Store(true)
	g.Go(d.conn.Run)

	if err := d.rpcServer.Start(gctx); err != nil {
		return fmt.Errorf("start rpc server: %w", err)
	}

	g.Go(func() error {
		d.runSweeper(gctx)
		return nil
	})

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

// onEvent is the wmconn.EventHandler for this daemon's single read-loop
// goroutine: every structural event re-snapshots the tree and diffs it
// against the previous snapshot.
func (d *Daemon) onEvent(ev wmconn.RawEvent) {
	if err := d.snapshot(string(ev.Class) + "::" + ev.Change); err != nil {
		d.log.Printf("snapshot on %s/%s: %v", ev.Class, ev.Change, err)
	}
}

func (d *Daemon) snapshot(source string) error {
	tree, err := d.conn.GetTree()
	if err != nil {
		return fmt.Errorf("get_tree: %w", err)
	}

	next := model.TreeSnapshot{
		SnapshotID:  uuid.NewString(),
		TimestampMS: time.Now().UnixMilli(),
		TreeData:    tree,
		EventSource: source,
	}

	<-d.prevMu
	prev := d.prev
	d.prev = next
	d.prevMu <- struct{}{}

	if prev.TreeData == nil {
		return nil
	}

	diff := d.differ.Diff(prev, next)
	if len(diff.NodeChanges) == 0 {
		return nil
	}

	d.ring.Add(model.RingEntry{
		Timestamp: time.Now(),
		EventType: "tree::diff",
		Source:    model.SourceWM,
		Fields: map[string]interface{}{
			"diff_id":             diff.DiffID,
			"before_snapshot_id":  diff.BeforeSnapshotID,
			"after_snapshot_id":   diff.AfterSnapshotID,
			"node_changes":        diff.NodeChanges,
			"computation_time_ms": diff.ComputationTimeMS,
			"trigger":             source,
		},
	})
	return nil
}

func (d *Daemon) runSweeper(ctx context.Context) {
	interval := time.Duration(d.cfg.HashCache.PeriodicSweepSeconds) * time.Second
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := d.hashCache.CleanupExpired()
			if n > 0 {
				d.log.Printf("swept %d expired cache entries", n)
			}
		}
	}
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

// Shutdown closes the RPC server and the window-manager connection, then
// waits for every supervised goroutine; the configured overall budget does
// not bound any of these steps.
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
	_, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

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

// UptimeSeconds satisfies rpc.StatusProvider.
func (d *Daemon) UptimeSeconds() int64 {
	if d.startedAt.IsZero() {
		return 0
	}
	return int64(time.Since(d.startedAt).Seconds())
}

// Connected satisfies rpc.StatusProvider.
func (d *Daemon) Connected() bool {
	return d.connected.Load()
}
