// Package launchcorr implements C10: a short-TTL registry of pending
// launch notifications, matched against newly observed windows by class,
// time delta and workspace. The registry is built directly on
// patrickmn/go-cache, the same TTL-map library internal/hashcache uses for
// C2's fingerprint store, so expiry is handled by the library rather than
// hand-rolled bookkeeping.
package launchcorr

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"

	"github.com/i3pm/eventcore/internal/model"
)

// ErrTooManyPending is returned by Add when the registry is at capacity.
var ErrTooManyPending = errors.New("too many pending launches")

const maxPending = 1000

// Window is the minimal shape find_match needs from a newly observed window.
type Window struct {
	Class     string
	Workspace int
	Timestamp time.Time
}

// Match is the outcome of a successful find_match.
type Match struct {
	LaunchID   string
	Project    string
	AppName    string
	Confidence float64
	Signals    Signals
}

// Signals records the factor contributions behind a match's confidence.
type Signals struct {
	ClassMatch     bool
	TimeDeltaBonus float64
	WorkspaceMatch bool
}

// Stats reports registry occupancy.
type Stats struct {
	Pending int
	Matched int
}

// Registry is C10's pending-launch store.
type Registry struct {
	mu    sync.Mutex // guards the matched flag flip in FindMatch
	ttl   time.Duration
	store *cache.Cache
}

// New builds a Registry with the given launch TTL (default 5s if <= 0).
func New(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Registry{
		ttl:   ttl,
		store: cache.New(ttl, ttl/2),
	}
}

// Add registers a new pending launch, rejecting new entries once the
// registry is at capacity rather than evicting to make room.
func (r *Registry) Add(appName, project, expectedClass string, expectedWorkspace int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.store.ItemCount() >= maxPending {
		return "", ErrTooManyPending
	}

	id := uuid.NewString()
	launch := &model.PendingLaunch{
		AppName:           appName,
		Project:           project,
		ExpectedClass:     expectedClass,
		ExpectedWorkspace: expectedWorkspace,
		Timestamp:         time.Now(),
	}
	r.store.Set(id, launch, r.ttl)
	return id, nil
}

// FindMatch scores w against every unmatched pending launch and returns the
// best candidate at or above the 0.6 accept threshold, if any. On a tie,
// the earliest launch wins.
func (r *Registry) FindMatch(w Window) (Match, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	const acceptThreshold = 0.6
	var bestID string
	var bestLaunch *model.PendingLaunch
	var bestScore float64
	var bestSignals Signals

	for id, item := range r.store.Items() {
		launch := item.Object.(*model.PendingLaunch)
		if launch.Matched {
			continue
		}
		sc, signals := score(*launch, w)
		if sc < acceptThreshold {
			continue
		}
		if sc > bestScore || (sc == bestScore && bestLaunch != nil && launch.Timestamp.Before(bestLaunch.Timestamp)) {
			bestID = id
			bestLaunch = launch
			bestScore = sc
			bestSignals = signals
		}
	}

	if bestLaunch == nil {
		return Match{}, false
	}

	bestLaunch.Matched = true
	return Match{
		LaunchID:   bestID,
		Project:    bestLaunch.Project,
		AppName:    bestLaunch.AppName,
		Confidence: bestScore,
		Signals:    bestSignals,
	}, true
}

func score(launch model.PendingLaunch, w Window) (float64, Signals) {
	var signals Signals
	if !strings.EqualFold(launch.ExpectedClass, w.Class) {
		return 0.0, signals
	}
	signals.ClassMatch = true

	delta := w.Timestamp.Sub(launch.Timestamp)
	if delta < 0 {
		return 0.0, signals
	}

	total := 0.5 // baseline for class match
	switch {
	case delta < time.Second:
		signals.TimeDeltaBonus = 0.3
	case delta < 2*time.Second:
		signals.TimeDeltaBonus = 0.2
	case delta < 5*time.Second:
		signals.TimeDeltaBonus = 0.1
	default:
		signals.TimeDeltaBonus = 0.0
	}
	total += signals.TimeDeltaBonus

	if launch.ExpectedWorkspace != 0 && launch.ExpectedWorkspace == w.Workspace {
		signals.WorkspaceMatch = true
		total += 0.2
	}

	if total > 1.0 {
		total = 1.0
	}
	return total, signals
}

// GetPending returns a snapshot of all unmatched pending launches.
func (r *Registry) GetPending() []model.PendingLaunch {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.PendingLaunch, 0, r.store.ItemCount())
	for _, item := range r.store.Items() {
		launch := item.Object.(*model.PendingLaunch)
		if !launch.Matched {
			out = append(out, *launch)
		}
	}
	return out
}

// Statistics returns current registry occupancy.
func (r *Registry) Statistics() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	var s Stats
	for _, item := range r.store.Items() {
		launch := item.Object.(*model.PendingLaunch)
		s.Pending++
		if launch.Matched {
			s.Matched++
		}
	}
	return s
}
