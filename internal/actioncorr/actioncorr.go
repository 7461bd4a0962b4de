// Package actioncorr implements C11: correlates recent user actions
// (bindings, IPC commands, keypresses, mouse clicks) against tree-diff
// events using the multi-factor confidence score (temporal 40%, semantic
// 30%, exclusivity 20%, cascade 10%) grounded on the original daemon's
// correlation/scoring.py, including its human-readable reasoning format.
package actioncorr

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i3pm/eventcore/internal/model"
)

const (
	correlationWindowMS = 500
	actionRetentionMS   = 5000
	primaryThreshold    = 0.7
)

// Correlator maintains the rolling action window and cascade tracker.
type Correlator struct {
	mu      sync.Mutex
	actions []model.UserAction
	cascade *cascadeTracker
}

// New builds a Correlator.
func New() *Correlator {
	return &Correlator{cascade: newCascadeTracker()}
}

// RecordAction appends a new user action to the rolling window, evicting
// anything older than the 5s retention.
func (c *Correlator) RecordAction(actionType model.ActionType, symbol, command string, tsMS int64) model.UserAction {
	c.mu.Lock()
	defer c.mu.Unlock()

	action := model.UserAction{
		ActionID:    uuid.NewString(),
		TimestampMS: tsMS,
		Type:        actionType,
		Symbol:      symbol,
		Command:     command,
	}
	c.actions = append(c.actions, action)
	c.evictOldLocked(tsMS)
	return action
}

func (c *Correlator) evictOldLocked(nowMS int64) {
	cutoff := nowMS - actionRetentionMS
	kept := c.actions[:0]
	for _, a := range c.actions {
		if a.TimestampMS >= cutoff {
			kept = append(kept, a)
		}
	}
	c.actions = kept
}

// Correlate scores eventType/eventTS (ms) against every action in the
// rolling window whose timestamp precedes the event and whose window
// (correlation window, default 500ms) has not yet closed. It returns the
// best-scoring correlation, or false if no action is eligible.
func (c *Correlator) Correlate(eventID int64, eventType string, eventTSMS int64) (model.EventCorrelation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cascade.cleanup(eventTSMS)

	type candidate struct {
		action model.UserAction
		delta  int64
	}
	var eligible []candidate
	for _, a := range c.actions {
		if a.TimestampMS > eventTSMS {
			continue
		}
		delta := eventTSMS - a.TimestampMS
		if delta > correlationWindowMS {
			continue
		}
		eligible = append(eligible, candidate{action: a, delta: delta})
	}
	if len(eligible) == 0 {
		return model.EventCorrelation{}, false
	}

	// Attach to an existing cascade first (depth comes from how this event's
	// timing relates to a prior primary); only promoted to a new primary
	// below once we know the final score.
	depth := c.cascade.addToCascade(eventID, eventTSMS)

	var best model.EventCorrelation
	var bestScore float64 = -1
	for _, cand := range eligible {
		competing := len(eligible) - 1
		sc, factors, reasoning := score(cand.action, eventType, cand.delta, competing, depth)
		if sc > bestScore {
			bestScore = sc
			best = model.EventCorrelation{
				CorrelationID: uuid.NewString(),
				ActionRef:     cand.action.ActionID,
				TreeEventID:   eventID,
				TimeDeltaMS:   cand.delta,
				Confidence:    sc,
				Level:         confidenceLevel(sc),
				Factors:       factors,
				CascadeDepth:  depth,
				Reasoning:     reasoning,
			}
		}
	}

	if depth == 0 && bestScore >= primaryThreshold {
		c.cascade.startCascade(eventID, eventTSMS)
	}

	return best, true
}

func confidenceLevel(score float64) model.ConfidenceLevel {
	switch {
	case score >= 0.9:
		return model.VeryLikely
	case score >= 0.7:
		return model.Likely
	case score >= 0.5:
		return model.Possible
	case score >= 0.3:
		return model.Unlikely
	default:
		return model.VeryUnlikely
	}
}

func scoreTemporal(deltaMS int64) float64 {
	switch {
	case deltaMS <= 50:
		return 1.0
	case deltaMS <= 100:
		return 0.9
	case deltaMS <= 200:
		return 0.7
	case deltaMS <= 350:
		return 0.5
	default:
		return 0.3
	}
}

func scoreSemantic(actionType model.ActionType, eventType string) float64 {
	switch actionType {
	case model.ActionBinding:
		if strings.HasPrefix(eventType, "window::") || strings.HasPrefix(eventType, "workspace::") {
			return 0.6
		}
		return 0.3
	case model.ActionIPCCommand:
		return 0.7
	case model.ActionKeypress:
		return 0.5
	case model.ActionMouseClick:
		if strings.Contains(eventType, "focus") || strings.Contains(eventType, "move") {
			return 0.7
		}
		return 0.4
	default:
		return 0.2
	}
}

func scoreExclusivity(competing int) float64 {
	switch competing {
	case 0:
		return 1.0
	case 1:
		return 0.7
	case 2:
		return 0.5
	default:
		return 0.3
	}
}

func scoreCascade(depth int) float64 {
	switch depth {
	case 0:
		return 1.0
	case 1:
		return 0.7
	case 2:
		return 0.4
	default:
		return 0.2
	}
}

func score(action model.UserAction, eventType string, deltaMS int64, competing, cascadeDepth int) (float64, map[string]float64, string) {
	temporal := scoreTemporal(deltaMS)
	semantic := scoreSemantic(action.Type, eventType)
	exclusivity := scoreExclusivity(competing)
	cascade := scoreCascade(cascadeDepth)

	final := 0.40*temporal + 0.30*semantic + 0.20*exclusivity + 0.10*cascade

	factors := map[string]float64{
		"temporal":    temporal,
		"semantic":    semantic,
		"exclusivity": exclusivity,
		"cascade":     cascade,
	}

	reasoning := reason(temporal, semantic, deltaMS, competing, cascadeDepth)
	return final, factors, reasoning
}

// reason builds the human-readable explanation string, grounded on the
// original daemon's _generate_reasoning.
func reason(temporal, semantic float64, deltaMS int64, competing, cascadeDepth int) string {
	var parts []string

	switch {
	case temporal >= 0.9:
		parts = append(parts, fmt.Sprintf("immediate effect (%dms)", deltaMS))
	case temporal >= 0.7:
		parts = append(parts, fmt.Sprintf("quick effect (%dms)", deltaMS))
	default:
		parts = append(parts, fmt.Sprintf("delayed effect (%dms)", deltaMS))
	}

	switch {
	case semantic >= 0.9:
		parts = append(parts, "action type matches event")
	case semantic >= 0.6:
		parts = append(parts, "action category matches event")
	default:
		parts = append(parts, "weak semantic match")
	}

	if competing == 0 {
		parts = append(parts, "only action in window")
	} else {
		parts = append(parts, fmt.Sprintf("%d competing actions", competing+1))
	}

	switch cascadeDepth {
	case 0:
		parts = append(parts, "direct effect")
	case 1:
		parts = append(parts, "secondary effect")
	default:
		parts = append(parts, fmt.Sprintf("cascade depth %d", cascadeDepth))
	}

	return strings.Join(parts, ", ")
}
