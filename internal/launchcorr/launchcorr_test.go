package launchcorr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindMatchExactClassAndWorkspace(t *testing.T) {
	r := New(5 * time.Second)
	id, err := r.Add("zed", "P", "Zed", 5)
	require.NoError(t, err)

	m, ok := r.FindMatch(Window{Class: "Zed", Workspace: 5, Timestamp: time.Now().Add(300 * time.Millisecond)})
	require.True(t, ok)
	assert.Equal(t, id, m.LaunchID)
	assert.Equal(t, "P", m.Project)
	assert.InDelta(t, 1.0, m.Confidence, 0.001)
	assert.True(t, m.Signals.WorkspaceMatch)
}

func TestFindMatchClassMismatchScoresZero(t *testing.T) {
	r := New(5 * time.Second)
	_, err := r.Add("zed", "P", "Zed", 5)
	require.NoError(t, err)

	_, ok := r.FindMatch(Window{Class: "firefox", Workspace: 5, Timestamp: time.Now()})
	assert.False(t, ok)
}

func TestFindMatchBelowThresholdRejected(t *testing.T) {
	r := New(5 * time.Second)
	_, err := r.Add("zed", "P", "Zed", 0) // no expected workspace, no bonus
	require.NoError(t, err)

	// delta > 5s earns no time bonus, workspace mismatch earns no bonus:
	// baseline 0.5 only, below the 0.6 accept threshold.
	_, ok := r.FindMatch(Window{Class: "Zed", Workspace: 9, Timestamp: time.Now().Add(10 * time.Second)})
	assert.False(t, ok)
}

func TestFindMatchNegativeDeltaRejected(t *testing.T) {
	r := New(5 * time.Second)
	_, err := r.Add("zed", "P", "Zed", 5)
	require.NoError(t, err)

	_, ok := r.FindMatch(Window{Class: "Zed", Workspace: 5, Timestamp: time.Now().Add(-time.Second)})
	assert.False(t, ok)
}

func TestFindMatchPicksHighestScoreAmongCandidates(t *testing.T) {
	r := New(5 * time.Second)
	_, err := r.Add("zed", "low", "Zed", 0)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	highID, err := r.Add("zed", "high", "Zed", 5)
	require.NoError(t, err)

	m, ok := r.FindMatch(Window{Class: "Zed", Workspace: 5, Timestamp: time.Now()})
	require.True(t, ok)
	assert.Equal(t, highID, m.LaunchID)
	assert.Equal(t, "high", m.Project)
}

func TestFindMatchMarksMatchedToPreventReuse(t *testing.T) {
	r := New(5 * time.Second)
	_, err := r.Add("zed", "P", "Zed", 5)
	require.NoError(t, err)

	_, ok := r.FindMatch(Window{Class: "Zed", Workspace: 5, Timestamp: time.Now()})
	require.True(t, ok)

	_, ok = r.FindMatch(Window{Class: "Zed", Workspace: 5, Timestamp: time.Now()})
	assert.False(t, ok, "a matched launch must not be reused")
}

func TestAddRejectsOverCapacity(t *testing.T) {
	r := New(5 * time.Second)
	for i := 0; i < maxPending; i++ {
		_, err := r.Add("app", "P", "C", 0)
		require.NoError(t, err)
	}
	_, err := r.Add("app", "P", "C", 0)
	assert.ErrorIs(t, err, ErrTooManyPending)
}

func TestGetPendingExcludesMatched(t *testing.T) {
	r := New(5 * time.Second)
	_, err := r.Add("zed", "P", "Zed", 5)
	require.NoError(t, err)
	_, err = r.Add("other", "Q", "Other", 0)
	require.NoError(t, err)

	_, ok := r.FindMatch(Window{Class: "Zed", Workspace: 5, Timestamp: time.Now()})
	require.True(t, ok)

	pending := r.GetPending()
	require.Len(t, pending, 1)
	assert.Equal(t, "Q", pending[0].Project)
}

func TestStatisticsReportsPendingAndMatched(t *testing.T) {
	r := New(5 * time.Second)
	_, err := r.Add("zed", "P", "Zed", 5)
	require.NoError(t, err)

	_, ok := r.FindMatch(Window{Class: "Zed", Workspace: 5, Timestamp: time.Now()})
	require.True(t, ok)

	stats := r.Statistics()
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Matched)
}
