// Package model defines the data records shared across the event-correlation
// core: window state, workspace tracking, project configuration, tree
// snapshots and diffs, and the transient records owned by the correlators.
package model

import "time"

// Scope describes whether a window is tied to a project or visible globally.
type Scope string

const (
	ScopeScoped Scope = "scoped"
	ScopeGlobal Scope = "global"
)

// WindowRecord is C5's per-window entry, created on window::new and
// destroyed on window::close.
type WindowRecord struct {
	ConID         int64
	SurfaceID     int64
	Class         string
	Instance      string
	Title         string
	AppIdentifier string
	Project       string // empty = global
	Scope         Scope
	Marks         []string
	Workspace     string
	Output        string
	Floating      bool
	CreatedAt     time.Time
	LastFocusedAt time.Time
	Correlation   *LaunchCorrelation
}

// LaunchCorrelation is attached to a WindowRecord when C10 matches it to a
// pending launch.
type LaunchCorrelation struct {
	LaunchID   string
	Confidence float64
	Signals    map[string]bool
}

// TrackingRecord is C6's durable per-window record.
type TrackingRecord struct {
	ConID               int64
	WorkspaceNumber     int // -1 for scratchpad
	Floating            bool
	Project             string
	App                 string
	Class               string
	LastSeenTS          int64
	Geometry            *Geometry
	OriginalScratchpad  bool
}

// Geometry is an optional rectangle recorded alongside a tracking record.
type Geometry struct {
	X, Y, Width, Height int
}

// LaunchSpec is one entry of a project's auto_launch list.
type LaunchSpec struct {
	Command      string
	Workspace    int
	Env          map[string]string
	LaunchDelay  time.Duration
	WaitForMark  string
	WaitTimeout  time.Duration
}

// ProjectConfig is the parsed form of projects/<name>.json.
type ProjectConfig struct {
	Name                 string
	DisplayName           string
	Icon                 string
	Directory            string
	ScopedClasses        map[string]struct{}
	AutoLaunch           []LaunchSpec
	WorkspacePreferences map[int]string // workspace number -> output role
}

// ActiveProjectState is the persisted active/previous project pointer.
type ActiveProjectState struct {
	Current     string // empty = global
	Previous    string
	ActivatedAt time.Time
}

// ClassPattern is one entry of a classification's ordered pattern list.
type ClassPattern struct {
	Pattern     string // "glob:...", "regex:...", "literal:..."
	Scope       Scope
	Priority    int
	Description string
}

// Classification is the parsed form of app-classes.json.
type Classification struct {
	ScopedClasses       map[string]struct{}
	GlobalClasses       map[string]struct{}
	Patterns            []ClassPattern
	TitleOverrideClasses map[string]struct{}
}

// ActionKind enumerates the typed rule-action sum.
type ActionKind int

const (
	ActionWorkspace ActionKind = iota
	ActionMark
	ActionFloat
	ActionLayout
)

// RuleAction is the tagged-variant action executed by C8.
type RuleAction struct {
	Kind      ActionKind
	Target    int    // WorkspaceAction
	Value     string // MarkAction
	Enable    bool   // FloatAction
	LayoutMode string // LayoutAction: tabbed|stacked|splitv|splith
}

// MatchCriteria is the predicate a Rule is evaluated against.
type MatchCriteria struct {
	Class       string
	Instance    string
	TitleRegex  string
	MarkPresent string
	MarkAbsent  string
}

// Rule is one entry of window-rules.json.
type Rule struct {
	Match    MatchCriteria
	Actions  []RuleAction
	Priority int
}

// TreeSnapshot is C3's input: an immutable capture of the WM tree.
type TreeSnapshot struct {
	SnapshotID   string
	TimestampMS  int64
	TreeData     map[string]interface{}
	EnrichedData map[int64]map[string]string // con_id -> derived context
	RootHash     uint64
	EventSource  string
}

// NodeFingerprint is C2's cache entry.
type NodeFingerprint struct {
	NodeID      int64
	ContentHash uint64
	SubtreeHash uint64
	TS          time.Time
}

// ChangeType enumerates field- and node-level change kinds.
type ChangeType string

const (
	ChangeAdded    ChangeType = "ADDED"
	ChangeRemoved  ChangeType = "REMOVED"
	ChangeModified ChangeType = "MODIFIED"
)

// FieldChange is a single field-level delta within a NodeChange.
type FieldChange struct {
	FieldPath    string
	OldValue     interface{}
	NewValue     interface{}
	ChangeType   ChangeType
	Significance float64
}

// NodeChange describes one added/removed/modified tree node.
type NodeChange struct {
	NodeID       int64
	NodeType     string
	ChangeType   ChangeType
	FieldChanges []FieldChange
	NodePath     string
}

// Significance returns the maximum field significance, or 0 for an empty change.
func (n NodeChange) Significance() float64 {
	var max float64
	for _, fc := range n.FieldChanges {
		if fc.Significance > max {
			max = fc.Significance
		}
	}
	return max
}

// TreeDiff is C3's output.
type TreeDiff struct {
	DiffID            string
	BeforeSnapshotID  string
	AfterSnapshotID   string
	NodeChanges       []NodeChange
	ComputationTimeMS float64
}

// Significance returns the maximum node-change significance in the diff.
func (d TreeDiff) Significance() float64 {
	var max float64
	for _, nc := range d.NodeChanges {
		if s := nc.Significance(); s > max {
			max = s
		}
	}
	return max
}

// EventSource enumerates where a ring entry originated.
type EventSource string

const (
	SourceWM      EventSource = "wm"
	SourceIPC     EventSource = "ipc"
	SourceDaemon  EventSource = "daemon"
	SourceSystemd EventSource = "systemd"
	SourceProc    EventSource = "proc"
)

// RingEntry is C4's typed union event.
type RingEntry struct {
	EventID   int64
	Timestamp time.Time
	EventType string
	Source    EventSource
	Fields    map[string]interface{}
}

// PendingLaunch is C10's transient registry entry.
type PendingLaunch struct {
	AppName          string
	Project          string
	ExpectedClass    string
	ExpectedWorkspace int
	Timestamp        time.Time
	Matched          bool
}

// ActionType enumerates C11 user-action kinds.
type ActionType string

const (
	ActionBinding     ActionType = "binding"
	ActionIPCCommand  ActionType = "ipc_command"
	ActionKeypress    ActionType = "keypress"
	ActionMouseClick  ActionType = "mouse_click"
)

// UserAction is C11's rolling-window entry.
type UserAction struct {
	ActionID    string
	TimestampMS int64
	Type        ActionType
	Symbol      string
	Command     string
}

// ConfidenceLevel labels a correlation score.
type ConfidenceLevel string

const (
	VeryLikely   ConfidenceLevel = "very likely"
	Likely       ConfidenceLevel = "likely"
	Possible     ConfidenceLevel = "possible"
	Unlikely     ConfidenceLevel = "unlikely"
	VeryUnlikely ConfidenceLevel = "very unlikely"
)

// EventCorrelation is C11's output record.
type EventCorrelation struct {
	CorrelationID string
	ActionRef     string
	TreeEventID   int64
	TimeDeltaMS   int64
	Confidence    float64
	Level         ConfidenceLevel
	Factors       map[string]float64
	CascadeDepth  int
	Reasoning     string
}

// ModeType enumerates C12's finite states.
type ModeType string

const (
	ModeInactive ModeType = "inactive"
	ModeGoto     ModeType = "goto"
	ModeMove     ModeType = "move"
	ModeProject  ModeType = "project"
)

// InputType enumerates what kind of input a mode is currently accumulating.
type InputType string

const (
	InputNone      InputType = "none"
	InputWorkspace InputType = "workspace"
	InputProject   InputType = "project"
)

// OutputRole names the three positional output roles C12 caches.
type OutputRole string

const (
	RolePrimary   OutputRole = "PRIMARY"
	RoleSecondary OutputRole = "SECONDARY"
	RoleTertiary  OutputRole = "TERTIARY"
)

// ModeState is C12's current state.
type ModeState struct {
	Active            bool
	Mode              ModeType
	InputType         InputType
	AccumulatedDigits string
	AccumulatedChars  string
	EnteredAt         time.Time
	OutputCache       map[OutputRole]string
}
