package wmconn

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/i3pm/eventcore/internal/logx"
	"github.com/i3pm/eventcore/internal/wstracker"
)

// EventClass names one of the subscribable WM event classes.
type EventClass string

const (
	ClassWindow    EventClass = "window"
	ClassWorkspace EventClass = "workspace"
	ClassOutput    EventClass = "output"
	ClassMode      EventClass = "mode"
	ClassTick      EventClass = "tick"
	ClassBinding   EventClass = "binding"
	ClassShutdown  EventClass = "shutdown"
)

// RawEvent is a parsed WM event handed to C14 for interpretation.
type RawEvent struct {
	Class   EventClass
	Change  string
	Payload map[string]interface{}
}

// EventHandler is invoked for every event received on the subscription
// socket, on the single goroutine that owns the read loop — this is what
// gives C14 its serialized, per-window-ordered dispatch.
type EventHandler func(RawEvent)

// Options configures a Conn.
type Options struct {
	// SocketEnvVars names environment variables to consult, in order, for
	// an explicit socket path (e.g. SWAYSOCK, I3SOCK).
	SocketEnvVars []string
	// RuntimeDirOverride replaces the default /run/user/<uid> scan root,
	// mainly for tests.
	RuntimeDirOverride string
	MaxReconnectAttempts int
	InitialBackoff        time.Duration
	MaxBackoff             time.Duration
	MarkDelay              time.Duration
	// MarkRaceLastClasses lists window classes whose mark application must
	// be deferred to the end of a deterministic sort during startup scan:
	// VSCode, for one, re-emits its own window properties shortly after
	// mapping, which can otherwise race a mark applied too early.
	MarkRaceLastClasses []string
}

// Conn is C1's single bidirectional session to the window manager.
type Conn struct {
	opts Options
	log  *logx.Logger

	mu         sync.Mutex
	socketPath string
	eventConn  net.Conn
	closed     bool

	group  singleflight.Group
	handler EventHandler
}

// New constructs a Conn. Call Connect to establish the session.
func New(opts Options, log *logx.Logger) *Conn {
	if log == nil {
		log = logx.New("wmconn")
	}
	return &Conn{opts: opts, log: log}
}

// SocketPath returns the currently active socket path, empty if not yet
// connected.
func (c *Conn) SocketPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.socketPath
}

// discoverSocket prefers an environment-provided path, falling back to the
// most recently modified *-ipc.*.sock in the runtime directory.
func (c *Conn) discoverSocket() (string, error) {
	for _, env := range c.opts.SocketEnvVars {
		if v := os.Getenv(env); v != "" {
			if _, err := os.Stat(v); err == nil {
				return v, nil
			}
		}
	}

	root := c.opts.RuntimeDirOverride
	if root == "" {
		root = fmt.Sprintf("/run/user/%d", os.Getuid())
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("scan runtime dir %s: %w", root, err)
	}

	type candidate struct {
		path    string
		modTime time.Time
	}
	var candidates []candidate
	for _, e := range entries {
		name := e.Name()
		if !strings.Contains(name, "-ipc.") || !strings.HasSuffix(name, ".sock") {
			continue
		}
		if !strings.HasPrefix(name, "sway") && !strings.HasPrefix(name, "i3") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{path: filepath.Join(root, name), modTime: info.ModTime()})
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no WM ipc socket found under %s", root)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].modTime.After(candidates[j].modTime) })
	return candidates[0].path, nil
}

// Connect discovers the socket and opens the command connection.
func (c *Conn) Connect() error {
	path, err := c.discoverSocket()
	if err != nil {
		return err
	}
	return c.connectTo(path)
}

func (c *Conn) connectTo(path string) error {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return fmt.Errorf("dial WM socket %s: %w", path, err)
	}
	c.mu.Lock()
	c.socketPath = path
	c.eventConn = conn
	c.closed = false
	c.mu.Unlock()
	return nil
}

// ConnectWithRetry retries Connect with exponential backoff starting at
// InitialBackoff, doubling to a MaxBackoff cap, up to maxAttempts.
func (c *Conn) ConnectWithRetry(maxAttempts int) error {
	if maxAttempts <= 0 {
		maxAttempts = c.opts.MaxReconnectAttempts
	}
	backoff := c.opts.InitialBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	maxBackoff := c.opts.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 5 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := c.Connect(); err == nil {
			return nil
		} else {
			lastErr = err
		}
		c.log.Printf("connect attempt %d/%d failed: %v", attempt+1, maxAttempts, lastErr)
		time.Sleep(backoff)
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return fmt.Errorf("exhausted %d connection attempts: %w", maxAttempts, lastErr)
}

// ValidateOrReconnect health-checks the connection with a lightweight tree
// query. If the socket file is missing or the query fails it rediscovers
// and reopens via ConnectWithRetry, which starts a fresh attempt count. A
// different environment-preferred socket path is not detected while the
// current socket still answers. Concurrent callers collapse into one
// in-flight check via singleflight.
func (c *Conn) ValidateOrReconnect() error {
	_, err, _ := c.group.Do("validate", func() (interface{}, error) {
		if _, statErr := os.Stat(c.SocketPath()); statErr == nil {
			if _, qErr := c.GetTree(); qErr == nil {
				return nil, nil
			}
		}
		return nil, c.ConnectWithRetry(c.opts.MaxReconnectAttempts)
	})
	return err
}

// Subscribe enables the given event classes on the connection and records
// handler; Run dispatches every event to it on Run's own goroutine. Must be
// called once, before the caller's main loop begins processing, so early
// events are not lost.
func (c *Conn) Subscribe(classes []EventClass, handler EventHandler) error {
	names := make([]string, len(classes))
	for i, cl := range classes {
		names[i] = string(cl)
	}
	payload, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("marshal subscribe payload: %w", err)
	}

	c.mu.Lock()
	conn := c.eventConn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	if err := writeMessage(conn, msgSubscribe, payload); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}
	t, reply, err := readMessage(conn)
	if err != nil {
		return fmt.Errorf("read subscribe reply: %w", err)
	}
	if t != msgSubscribe {
		return fmt.Errorf("unexpected reply type %d to subscribe", t)
	}
	var ack struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(reply, &ack); err == nil && !ack.Success {
		return fmt.Errorf("WM rejected subscription")
	}

	c.handler = handler
	return nil
}

// Run drives the event-read loop until the connection closes or an
// unrecoverable read error occurs. Intended to run on its own goroutine,
// supervised by the daemon's errgroup.
func (c *Conn) Run() error {
	for {
		c.mu.Lock()
		conn := c.eventConn
		closed := c.closed
		c.mu.Unlock()
		if closed || conn == nil {
			return nil
		}

		t, payload, err := readMessage(conn)
		if err != nil {
			return fmt.Errorf("read WM event: %w", err)
		}
		if c.handler != nil {
			c.handler(decodeEvent(t, payload))
		}
	}
}

func decodeEvent(t messageType, payload []byte) RawEvent {
	var class EventClass
	switch t &^ eventMask {
	case messageType(0):
		class = ClassWorkspace
	case messageType(1):
		class = ClassOutput
	case messageType(2):
		class = ClassMode
	case messageType(3):
		class = ClassWindow
	case messageType(23):
		class = ClassBinding
	case messageType(26):
		class = ClassTick
	case messageType(29):
		class = ClassShutdown
	}

	var fields map[string]interface{}
	_ = json.Unmarshal(payload, &fields)
	change, _ := fields["change"].(string)

	return RawEvent{Class: class, Change: change, Payload: fields}
}

// Command issues a WM command string; multi-command strings are separated
// by ";". Returns per-sub-command success/error.
func (c *Conn) Command(cmdline string) (wstracker.CommandResult, error) {
	replies, err := c.runCommand(cmdline)
	if err != nil {
		return wstracker.CommandResult{}, err
	}
	if len(replies) == 0 {
		return wstracker.CommandResult{Success: true}, nil
	}
	for _, r := range replies {
		if !r.Success {
			return wstracker.CommandResult{Success: false, Error: r.Error}, nil
		}
	}
	return wstracker.CommandResult{Success: true}, nil
}

func (c *Conn) runCommand(cmdline string) ([]commandReply, error) {
	c.mu.Lock()
	conn := c.eventConn
	c.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("not connected")
	}
	if err := writeMessage(conn, msgRunCommand, []byte(cmdline)); err != nil {
		return nil, fmt.Errorf("send command: %w", err)
	}
	_, payload, err := readMessage(conn)
	if err != nil {
		return nil, fmt.Errorf("read command reply: %w", err)
	}
	return parseCommandReplies(payload)
}

// GetTree issues get_tree and returns the raw decoded tree, used both as a
// real query and as C1's connection-health probe.
func (c *Conn) GetTree() (map[string]interface{}, error) {
	c.mu.Lock()
	conn := c.eventConn
	c.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("not connected")
	}
	if err := writeMessage(conn, msgGetTree, nil); err != nil {
		return nil, fmt.Errorf("send get_tree: %w", err)
	}
	_, payload, err := readMessage(conn)
	if err != nil {
		return nil, fmt.Errorf("read get_tree reply: %w", err)
	}
	var tree map[string]interface{}
	if err := json.Unmarshal(payload, &tree); err != nil {
		return nil, fmt.Errorf("parse get_tree reply: %w", err)
	}
	return tree, nil
}

// ActiveWorkspaces returns the set of currently-existing workspace numbers,
// read from a fresh get_tree. Used by C8's workspace-move action validation
// and C12's digit-target validation.
func (c *Conn) ActiveWorkspaces() map[int]struct{} {
	out := make(map[int]struct{})
	tree, err := c.GetTree()
	if err != nil {
		return out
	}
	walkTree(tree, func(node map[string]interface{}) {
		if nodeType, _ := node["type"].(string); nodeType == "workspace" {
			if num, ok := node["num"].(float64); ok && num >= 0 {
				out[int(num)] = struct{}{}
			}
		}
	})
	return out
}

// ActiveOutputs returns the name-sorted list of currently-active output
// names, read from a fresh get_tree. Used by C12 to resolve a three-digit
// mode-key sequence's monitor index to an actual output name.
func (c *Conn) ActiveOutputs() []string {
	var out []string
	tree, err := c.GetTree()
	if err != nil {
		return out
	}
	walkTree(tree, func(node map[string]interface{}) {
		if nodeType, _ := node["type"].(string); nodeType == "output" {
			if name, ok := node["name"].(string); ok && name != "" && name != "__i3" {
				out = append(out, name)
			}
		}
	})
	sort.Strings(out)
	return out
}

// walkTree visits every node in a get_tree result, depth-first.
func walkTree(node map[string]interface{}, visit func(map[string]interface{})) {
	visit(node)
	for _, key := range []string{"nodes", "floating_nodes"} {
		children, _ := node[key].([]interface{})
		for _, child := range children {
			if childMap, ok := child.(map[string]interface{}); ok {
				walkTree(childMap, visit)
			}
		}
	}
}

// Close terminates the session.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.eventConn != nil {
		return c.eventConn.Close()
	}
	return nil
}

// sortForStartupMark orders windows so that any class in
// MarkRaceLastClasses sorts after all others, with a stable secondary
// ordering by con_id.
func sortForStartupMark(conIDs []int64, classOf map[int64]string, raceClasses map[string]struct{}) []int64 {
	out := make([]int64, len(conIDs))
	copy(out, conIDs)
	sort.SliceStable(out, func(i, j int) bool {
		_, iRace := raceClasses[classOf[out[i]]]
		_, jRace := raceClasses[classOf[out[j]]]
		if iRace != jRace {
			return !iRace // non-racing classes first
		}
		return out[i] < out[j]
	})
	return out
}

// raceClassSet builds a lookup set from the configured mark-race-last class
// list.
func raceClassSet(classes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(classes))
	for _, c := range classes {
		set[c] = struct{}{}
	}
	return set
}
