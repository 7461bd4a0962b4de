package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i3pm/eventcore/internal/eventring"
	"github.com/i3pm/eventcore/internal/hashcache"
	"github.com/i3pm/eventcore/internal/identity"
	"github.com/i3pm/eventcore/internal/model"
	"github.com/i3pm/eventcore/internal/rules"
	"github.com/i3pm/eventcore/internal/state"
	"github.com/i3pm/eventcore/internal/wmconn"
	"github.com/i3pm/eventcore/internal/wstracker"
)

type fakeConn struct {
	mu         sync.Mutex
	commands   []string
	active     map[int]struct{}
	reconnects int
}

func (f *fakeConn) Command(cmdline string) (wstracker.CommandResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmdline)
	return wstracker.CommandResult{Success: true}, nil
}

func (f *fakeConn) ActiveWorkspaces() map[int]struct{} { return f.active }

func (f *fakeConn) ConnectWithRetry(maxAttempts int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnects++
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeNotifier) Broadcast(method string, params interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, method)
}

func newTestRouter(t *testing.T) (*Router, *fakeConn, *state.Store, *eventring.Ring) {
	t.Helper()
	conn := &fakeConn{active: map[int]struct{}{}}
	store := state.New()
	ring := eventring.New(100, nil)
	hc := hashcache.New(time.Minute, time.Minute)
	ruleEng := rules.New(nil)

	rt := New(Deps{
		Conn:           conn,
		Store:          store,
		Resolver:       identity.NewResolver(nil),
		Rules:          ruleEng,
		Ring:           ring,
		HashCache:      hc,
		Notifier:       &fakeNotifier{},
		ProjectExists:  func(string) bool { return false },
		Classification: func() model.Classification { return model.Classification{} },
	})
	return rt, conn, store, ring
}

func TestHandleWindowNewStoresAndMarksWindow(t *testing.T) {
	rt, conn, store, ring := newTestRouter(t)

	rt.Handle(wmconn.RawEvent{
		Class:  wmconn.ClassWindow,
		Change: "new",
		Payload: map[string]interface{}{
			"container": map[string]interface{}{
				"id":                float64(42),
				"name":              "term",
				"pid":               float64(0),
				"window_properties": map[string]interface{}{"class": "Alacritty"},
			},
		},
	})

	w, ok := store.GetWindow(42)
	require.True(t, ok)
	assert.Equal(t, "Alacritty", w.Class)
	require.NotEmpty(t, conn.commands)
	assert.Contains(t, conn.commands[0], "mark --add")

	entries := ring.Query(10, "", 0)
	require.Len(t, entries, 1)
	assert.Equal(t, "window::new", entries[0].EventType)
}

func TestHandleWindowCloseRemovesWindow(t *testing.T) {
	rt, _, store, _ := newTestRouter(t)
	store.AddWindow(model.WindowRecord{ConID: 7})

	rt.Handle(wmconn.RawEvent{
		Class:   wmconn.ClassWindow,
		Change:  "close",
		Payload: map[string]interface{}{"container": map[string]interface{}{"id": float64(7)}},
	})

	_, ok := store.GetWindow(7)
	assert.False(t, ok)
}

func TestHandleWindowMarkReconcilesMarksAndInvalidatesCache(t *testing.T) {
	rt, _, store, _ := newTestRouter(t)
	store.AddWindow(model.WindowRecord{ConID: 9})
	rt.hashCache.Update(9, 1, 1)

	rt.Handle(wmconn.RawEvent{
		Class:  wmconn.ClassWindow,
		Change: "mark",
		Payload: map[string]interface{}{
			"container": map[string]interface{}{
				"id":    float64(9),
				"marks": []interface{}{"scoped:foo:bar:9"},
			},
		},
	})

	w, ok := store.GetWindow(9)
	require.True(t, ok)
	assert.Equal(t, []string{"scoped:foo:bar:9"}, w.Marks)

	_, cached := rt.hashCache.Get(9)
	assert.False(t, cached)
}

func TestHandleWindowTitleChangeUpdatesStoreAndReevaluatesRules(t *testing.T) {
	rt, conn, store, _ := newTestRouter(t)
	store.AddWindow(model.WindowRecord{ConID: 3, Class: "Firefox"})
	rt.ruleEng.SetRules([]model.Rule{{
		Match:   model.MatchCriteria{TitleRegex: "^New Title$"},
		Actions: []model.RuleAction{{Kind: model.ActionFloat, Enable: true}},
	}})

	rt.Handle(wmconn.RawEvent{
		Class:  wmconn.ClassWindow,
		Change: "title",
		Payload: map[string]interface{}{
			"container": map[string]interface{}{"id": float64(3), "name": "New Title"},
		},
	})

	w, ok := store.GetWindow(3)
	require.True(t, ok)
	assert.Equal(t, "New Title", w.Title)
	require.Len(t, conn.commands, 1)
	assert.Equal(t, "[con_id=3] floating enable", conn.commands[0])
}

func TestHandleWorkspaceInitAndEmpty(t *testing.T) {
	rt, _, store, _ := newTestRouter(t)

	rt.Handle(wmconn.RawEvent{
		Class:   wmconn.ClassWorkspace,
		Change:  "init",
		Payload: map[string]interface{}{"current": map[string]interface{}{"name": "1"}},
	})
	_, _ = store.GetFocusedWorkspace("")
	assert.Equal(t, 1, store.GetStats().WorkspaceCount)

	rt.Handle(wmconn.RawEvent{
		Class:   wmconn.ClassWorkspace,
		Change:  "empty",
		Payload: map[string]interface{}{"current": map[string]interface{}{"name": "1"}},
	})
	assert.Equal(t, 0, store.GetStats().WorkspaceCount)
}

func TestHandleTickReloadConfigTriggersReload(t *testing.T) {
	rt, _, _, _ := newTestRouter(t)
	called := false
	rt.reload = func() error { called = true; return nil }

	rt.Handle(wmconn.RawEvent{
		Class:   wmconn.ClassTick,
		Payload: map[string]interface{}{"payload": "i3pm:reload-config"},
	})

	assert.True(t, called)
}

func TestHandleShutdownRestartReconnects(t *testing.T) {
	rt, conn, _, _ := newTestRouter(t)

	rt.Handle(wmconn.RawEvent{Class: wmconn.ClassShutdown, Change: "restart"})

	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return conn.reconnects == 1
	}, time.Second, 10*time.Millisecond)
}

func TestRunMaintenanceSweepsExpiredHashCacheEntries(t *testing.T) {
	rt, _, _, _ := newTestRouter(t)
	rt.hashCache = hashcache.New(time.Millisecond, time.Millisecond)
	rt.hashCache.Update(1, 1, 1)
	time.Sleep(5 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 70*time.Millisecond)
	defer cancel()

	// RunMaintenance's sweep ticker fires every 60s in production; here we
	// invoke the sweep path directly via the public CleanupExpired instead
	// of waiting on the real ticker, since shortening the interval would
	// require exposing it as a constructor parameter.
	removed := rt.hashCache.CleanupExpired()
	assert.Equal(t, 1, removed)

	go rt.RunMaintenance(ctx)
	<-ctx.Done()
}
