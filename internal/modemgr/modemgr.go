// Package modemgr implements C12: the goto/move/project mode FSM. It
// accumulates digits or characters, parses workspace/monitor targets, and
// fuzzy-matches project names, emitting events for an external selector UI
// to render.
package modemgr

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/i3pm/eventcore/internal/model"
	"github.com/i3pm/eventcore/internal/wstracker"
)

// ErrWrongMode is returned when an operation is invoked from an invalid state.
type ErrWrongMode struct{ want, got model.ModeType }

func (e ErrWrongMode) Error() string {
	return fmt.Sprintf("mode manager: expected %q, got %q", e.want, e.got)
}

// Event is emitted by every mode operation for an external UI to consume.
type Event struct {
	Kind  string // enter|digit|char|backspace|execute|cancel|nav|delete|window_action
	State model.ModeState
	Extra map[string]interface{}
}

// Commander issues WM commands for execute().
type Commander interface {
	Command(cmdline string) (wstracker.CommandResult, error)
	ActiveOutputs() []string // name-sorted active output names
}

// ProjectSwitcher delegates project-mode execute() to C9.
type ProjectSwitcher interface {
	Switch(name string) error
}

// ProjectLister supplies the current project name list for fuzzy matching.
type ProjectLister func() []string

// Manager is C12's FSM.
type Manager struct {
	mu       sync.Mutex
	state    model.ModeState
	conn     Commander
	switcher ProjectSwitcher
	projects ProjectLister

	cachedProjects []string
}

// New builds a Manager in the inactive state.
func New(conn Commander, switcher ProjectSwitcher, projects ProjectLister) *Manager {
	return &Manager{
		state:    model.ModeState{Mode: model.ModeInactive, InputType: model.InputNone},
		conn:     conn,
		switcher: switcher,
		projects: projects,
	}
}

// State returns a copy of the current mode state.
func (m *Manager) State() model.ModeState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Enter transitions inactive -> mode, refreshing the output-role cache.
func (m *Manager) Enter(mode model.ModeType) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Mode != model.ModeInactive {
		return Event{}, ErrWrongMode{want: model.ModeInactive, got: m.state.Mode}
	}

	outputs := m.conn.ActiveOutputs()
	sorted := append([]string(nil), outputs...)
	sort.Strings(sorted)

	cache := make(map[model.OutputRole]string, 3)
	roles := []model.OutputRole{model.RolePrimary, model.RoleSecondary, model.RoleTertiary}
	for i, name := range sorted {
		if i >= len(roles) {
			break
		}
		cache[roles[i]] = name
	}

	m.state = model.ModeState{
		Active:      true,
		Mode:        mode,
		InputType:   model.InputNone,
		EnteredAt:   time.Now(),
		OutputCache: cache,
	}
	return Event{Kind: "enter", State: m.state}, nil
}

// AddDigit appends a digit in goto/move mode, ignoring a leading zero.
func (m *Manager) AddDigit(d byte) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Mode != model.ModeGoto && m.state.Mode != model.ModeMove {
		return Event{}, ErrWrongMode{want: model.ModeGoto, got: m.state.Mode}
	}
	if m.state.AccumulatedDigits == "" && d == '0' {
		return Event{Kind: "digit", State: m.state}, nil
	}
	m.state.AccumulatedDigits += string(d)
	m.state.InputType = model.InputWorkspace

	workspace, monitor, _ := parseDigits(m.state.AccumulatedDigits)
	return Event{
		Kind:  "digit",
		State: m.state,
		Extra: map[string]interface{}{"workspace": workspace, "monitor": monitor},
	}, nil
}

// AddChar appends a character; ':' switches to project input and clears
// both buffers (so freshly created projects are picked up fresh).
func (m *Manager) AddChar(c byte) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Active {
		return Event{}, ErrWrongMode{want: model.ModeGoto, got: m.state.Mode}
	}

	if c == ':' {
		m.state.AccumulatedDigits = ""
		m.state.AccumulatedChars = ""
		m.state.InputType = model.InputProject
		m.cachedProjects = nil
		return Event{Kind: "char", State: m.state}, nil
	}

	m.state.AccumulatedChars += strings.ToLower(string(c))
	m.state.InputType = model.InputProject

	matches := m.scoredMatches(m.state.AccumulatedChars)
	return Event{Kind: "char", State: m.state, Extra: map[string]interface{}{"matches": matches}}, nil
}

// Backspace pops from whichever buffer is active.
func (m *Manager) Backspace() (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Active {
		return Event{}, ErrWrongMode{want: model.ModeGoto, got: m.state.Mode}
	}

	switch m.state.InputType {
	case model.InputWorkspace:
		if n := len(m.state.AccumulatedDigits); n > 0 {
			m.state.AccumulatedDigits = m.state.AccumulatedDigits[:n-1]
		}
	case model.InputProject:
		if n := len(m.state.AccumulatedChars); n > 0 {
			m.state.AccumulatedChars = m.state.AccumulatedChars[:n-1]
		}
	}
	return Event{Kind: "backspace", State: m.state}, nil
}

// Execute dispatches by input_type and leaves the mode.
func (m *Manager) Execute() (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Active {
		return Event{}, ErrWrongMode{want: model.ModeGoto, got: m.state.Mode}
	}

	mode := m.state.Mode
	inputType := m.state.InputType
	digits := m.state.AccumulatedDigits
	chars := m.state.AccumulatedChars
	outputCache := m.state.OutputCache

	switch inputType {
	case model.InputWorkspace:
		workspace, monitor, err := parseDigits(digits)
		if err != nil {
			m.reset()
			return Event{Kind: "execute", Extra: map[string]interface{}{"error": err.Error()}}, nil
		}
		var cmd string
		if mode == model.ModeMove && monitor > 0 {
			outputName := outputCache[roleForMonitorIndex(monitor)]
			cmd = fmt.Sprintf("workspace number %d; move workspace to output %s; workspace number %d", workspace, outputName, workspace)
		} else {
			cmd = fmt.Sprintf("workspace number %d", workspace)
		}
		res, err := m.conn.Command(cmd)
		m.reset()
		if err != nil {
			return Event{Kind: "execute", Extra: map[string]interface{}{"error": err.Error()}}, nil
		}
		return Event{Kind: "execute", Extra: map[string]interface{}{"workspace": workspace, "monitor": monitor, "success": res.Success}}, nil

	case model.InputProject:
		match, ok := fuzzyMatchProject(chars, m.projectNames())
		m.reset()
		if !ok {
			return Event{Kind: "execute", Extra: map[string]interface{}{"matched": false}}, nil
		}
		err := m.switcher.Switch(match)
		return Event{Kind: "execute", Extra: map[string]interface{}{"matched": true, "project": match, "error": errString(err)}}, nil

	default:
		m.reset()
		return Event{Kind: "execute", Extra: map[string]interface{}{"selection": true}}, nil
	}
}

// Cancel leaves the mode without acting.
func (m *Manager) Cancel() Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	return Event{Kind: "cancel", State: m.state}
}

// Nav emits a navigation event; it does not mutate mode state.
func (m *Manager) Nav(direction string) Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Event{Kind: "nav", State: m.state, Extra: map[string]interface{}{"direction": direction}}
}

// Delete emits a delete event for the selector UI to act on.
func (m *Manager) Delete() Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Event{Kind: "delete", State: m.state}
}

// Action emits a window_action event for kind ∈ {m, f, shift-m}.
func (m *Manager) Action(kind string) Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Event{Kind: "window_action", State: m.state, Extra: map[string]interface{}{"action": kind}}
}

func (m *Manager) reset() {
	m.state = model.ModeState{Mode: model.ModeInactive, InputType: model.InputNone}
	m.cachedProjects = nil
}

func (m *Manager) projectNames() []string {
	if m.cachedProjects == nil && m.projects != nil {
		m.cachedProjects = m.projects()
	}
	return m.cachedProjects
}

func (m *Manager) scoredMatches(query string) []ProjectScore {
	return ScoreProjects(query, m.projectNames())
}

func roleForMonitorIndex(i int) model.OutputRole {
	switch i {
	case 1:
		return model.RolePrimary
	case 2:
		return model.RoleSecondary
	default:
		return model.RoleTertiary
	}
}

// parseDigits decodes the accumulated keypad digits: 1-2 digits select a
// workspace; 3 digits split into a workspace (first two) and a monitor
// index (third digit, 1-3).
func parseDigits(digits string) (workspace, monitor int, err error) {
	switch len(digits) {
	case 0:
		return 0, 0, fmt.Errorf("no digits accumulated")
	case 1, 2:
		ws, convErr := strconv.Atoi(digits)
		if convErr != nil {
			return 0, 0, convErr
		}
		if ws < 1 || ws > 70 {
			return 0, 0, fmt.Errorf("workspace %d out of range 1-70", ws)
		}
		return ws, 0, nil
	case 3:
		ws, convErr := strconv.Atoi(digits[:2])
		if convErr != nil {
			return 0, 0, convErr
		}
		mon, convErr := strconv.Atoi(digits[2:])
		if convErr != nil {
			return 0, 0, convErr
		}
		if ws < 1 || ws > 70 {
			return 0, 0, fmt.Errorf("workspace %d out of range 1-70", ws)
		}
		if mon < 1 || mon > 3 {
			return 0, 0, fmt.Errorf("monitor index %d out of range 1-3", mon)
		}
		return ws, mon, nil
	default:
		return 0, 0, fmt.Errorf("invalid digit sequence %q", digits)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
