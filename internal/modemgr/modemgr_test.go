package modemgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i3pm/eventcore/internal/model"
	"github.com/i3pm/eventcore/internal/wstracker"
)

type fakeConn struct {
	outputs  []string
	commands []string
}

func (f *fakeConn) Command(cmdline string) (wstracker.CommandResult, error) {
	f.commands = append(f.commands, cmdline)
	return wstracker.CommandResult{Success: true}, nil
}

func (f *fakeConn) ActiveOutputs() []string { return f.outputs }

type fakeSwitcher struct {
	switched string
	err      error
}

func (f *fakeSwitcher) Switch(name string) error {
	f.switched = name
	return f.err
}

func TestEnterRefreshesOutputCacheSorted(t *testing.T) {
	conn := &fakeConn{outputs: []string{"HEADLESS-2", "HEADLESS-1"}}
	m := New(conn, &fakeSwitcher{}, nil)

	ev, err := m.Enter(model.ModeGoto)
	require.NoError(t, err)
	assert.Equal(t, "enter", ev.Kind)
	assert.Equal(t, "HEADLESS-1", ev.State.OutputCache[model.RolePrimary])
	assert.Equal(t, "HEADLESS-2", ev.State.OutputCache[model.RoleSecondary])
}

func TestEnterFromNonInactiveFails(t *testing.T) {
	conn := &fakeConn{}
	m := New(conn, &fakeSwitcher{}, nil)
	_, err := m.Enter(model.ModeGoto)
	require.NoError(t, err)

	_, err = m.Enter(model.ModeMove)
	assert.Error(t, err)
}

func TestAddDigitIgnoresLeadingZero(t *testing.T) {
	conn := &fakeConn{}
	m := New(conn, &fakeSwitcher{}, nil)
	_, _ = m.Enter(model.ModeGoto)

	ev, err := m.AddDigit('0')
	require.NoError(t, err)
	assert.Equal(t, "", ev.State.AccumulatedDigits)

	ev, err = m.AddDigit('5')
	require.NoError(t, err)
	assert.Equal(t, "5", ev.State.AccumulatedDigits)
}

func TestExecuteWorkspaceTwoDigits(t *testing.T) {
	conn := &fakeConn{}
	m := New(conn, &fakeSwitcher{}, nil)
	_, _ = m.Enter(model.ModeGoto)
	_, _ = m.AddDigit('1')
	_, _ = m.AddDigit('2')

	ev, err := m.Execute()
	require.NoError(t, err)
	assert.Equal(t, 12, ev.Extra["workspace"])
	require.Len(t, conn.commands, 1)
	assert.Equal(t, "workspace number 12", conn.commands[0])

	assert.Equal(t, model.ModeInactive, m.State().Mode)
}

func TestExecuteWorkspaceThreeDigitsMovesOutput(t *testing.T) {
	conn := &fakeConn{outputs: []string{"HEADLESS-1", "HEADLESS-2"}}
	m := New(conn, &fakeSwitcher{}, nil)
	_, _ = m.Enter(model.ModeMove)
	_, _ = m.AddDigit('1')
	_, _ = m.AddDigit('5')
	_, _ = m.AddDigit('2')

	ev, err := m.Execute()
	require.NoError(t, err)
	assert.Equal(t, 15, ev.Extra["workspace"])
	assert.Equal(t, 2, ev.Extra["monitor"])
	require.Len(t, conn.commands, 1)
	assert.Contains(t, conn.commands[0], "move workspace to output HEADLESS-2")
}

func TestExecuteInvalidDigitsReportsError(t *testing.T) {
	conn := &fakeConn{}
	m := New(conn, &fakeSwitcher{}, nil)
	_, _ = m.Enter(model.ModeGoto)
	_, _ = m.AddDigit('9')
	_, _ = m.AddDigit('9')

	ev, err := m.Execute()
	require.NoError(t, err)
	assert.NotEmpty(t, ev.Extra["error"])
}

func TestExecuteProjectDelegatesToSwitcher(t *testing.T) {
	conn := &fakeConn{}
	switcher := &fakeSwitcher{}
	m := New(conn, switcher, func() []string { return []string{"proj-a", "proj-b"} })
	_, _ = m.Enter(model.ModeProject)
	_, _ = m.AddChar('p')
	_, _ = m.AddChar('r')
	_, _ = m.AddChar('o')
	_, _ = m.AddChar('j')
	_, _ = m.AddChar('-')
	_, _ = m.AddChar('a')

	ev, err := m.Execute()
	require.NoError(t, err)
	assert.Equal(t, true, ev.Extra["matched"])
	assert.Equal(t, "proj-a", switcher.switched)
}

func TestExecuteProjectNoMatchReportsUnmatched(t *testing.T) {
	conn := &fakeConn{}
	m := New(conn, &fakeSwitcher{}, func() []string { return []string{"alpha", "beta"} })
	_, _ = m.Enter(model.ModeProject)
	_, _ = m.AddChar('z')
	_, _ = m.AddChar('z')
	_, _ = m.AddChar('z')

	ev, err := m.Execute()
	require.NoError(t, err)
	assert.Equal(t, false, ev.Extra["matched"])
}

func TestExecuteEmptyInputEmitsSelection(t *testing.T) {
	conn := &fakeConn{}
	m := New(conn, &fakeSwitcher{}, nil)
	_, _ = m.Enter(model.ModeGoto)

	ev, err := m.Execute()
	require.NoError(t, err)
	assert.Equal(t, true, ev.Extra["selection"])
}

func TestCancelReturnsToInactive(t *testing.T) {
	conn := &fakeConn{}
	m := New(conn, &fakeSwitcher{}, nil)
	_, _ = m.Enter(model.ModeGoto)
	_, _ = m.AddDigit('5')

	ev := m.Cancel()
	assert.Equal(t, "cancel", ev.Kind)
	assert.Equal(t, model.ModeInactive, m.State().Mode)
}

func TestColonSwitchesToProjectInputAndClearsBuffers(t *testing.T) {
	conn := &fakeConn{}
	m := New(conn, &fakeSwitcher{}, func() []string { return []string{"a"} })
	_, _ = m.Enter(model.ModeGoto)
	_, _ = m.AddDigit('5')
	ev, err := m.AddChar(':')

	require.NoError(t, err)
	assert.Equal(t, model.InputProject, ev.State.InputType)
	assert.Equal(t, "", ev.State.AccumulatedDigits)
}

func TestFuzzyMatchPriorityOrder(t *testing.T) {
	projects := []string{"web", "webapp", "website"}
	name, ok := fuzzyMatchProject("web", projects)
	require.True(t, ok)
	assert.Equal(t, "web", name, "exact match should win over prefix matches")
}

func TestFuzzyMatchPrefixAlphabeticalTie(t *testing.T) {
	projects := []string{"zeta-app", "alpha-app"}
	name, ok := fuzzyMatchProject("a", projects)
	require.True(t, ok)
	assert.Equal(t, "alpha-app", name)
}

func TestFuzzyMatchSubstring(t *testing.T) {
	projects := []string{"my-backend-service"}
	name, ok := fuzzyMatchProject("backend", projects)
	require.True(t, ok)
	assert.Equal(t, "my-backend-service", name)
}

func TestScoreProjectsExactHighest(t *testing.T) {
	scores := ScoreProjects("web", []string{"web", "webapp", "other"})
	require.True(t, len(scores) >= 1)
	assert.Equal(t, "web", scores[0].Name)
	assert.Equal(t, 1000, scores[0].Score)
}

func TestErrWrongModeMessage(t *testing.T) {
	err := ErrWrongMode{want: model.ModeInactive, got: model.ModeGoto}
	assert.Contains(t, err.Error(), "inactive")
	assert.Contains(t, err.Error(), "goto")
}
