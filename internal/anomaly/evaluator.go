// Package anomaly evaluates geofence, threshold and direction rules against
// tracks and keeps rolling per-group statistics.
package anomaly

import (
	"strconv"
	"sync"

	"github.com/banshee-data/dataq/internal/scene"
)

// Anomaly reasons.
const (
	ReasonInvalidEntry = "Invalid entry"
	ReasonInvalidExit  = "Invalid exit"
	ReasonRestricted   = "Restricted Area"
	ReasonWrongWay     = "Wrong way"
)

// restrictedBypassDistance disables the restricted check when the first
// restricted zone carries a distance attribute below it.
const restrictedBypassDistance = 20

// Evaluator applies the rules for each track emission. Rules are checked
// in a fixed order and the first violation wins.
type Evaluator struct {
	mu     sync.Mutex
	config Config
	stats  map[string]*groupStats
}

// NewEvaluator creates an evaluator with the given rules.
func NewEvaluator(config Config) *Evaluator {
	return &Evaluator{
		config: config,
		stats:  make(map[string]*groupStats),
	}
}

// Configure replaces the rules. Statistics are kept.
func (e *Evaluator) Configure(config Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.config = config
}

// Config returns the active rules.
func (e *Evaluator) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config
}

// Evaluate checks tr and annotates it with the first violated rule. It
// returns the reason, or "" when no rule is violated. Terminal emissions
// are recorded in the rolling statistics.
func (e *Evaluator) Evaluate(tr *scene.Track, terminal bool) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	group := GroupOf(tr.Class)
	if terminal {
		e.record(group, tr)
	}

	g, ok := e.config.Groups[group]
	if !ok {
		return ""
	}
	reason := check(g, tr, terminal)
	if reason != "" {
		tr.Anomaly = reason
		scene.Diagf("anomaly: track %s class=%s: %s", tr.ID, tr.Class, reason)
	}
	return reason
}

func check(g GroupConfig, tr *scene.Track, terminal bool) string {
	// 1. Entry point.
	if len(g.Common) > 0 && !scene.InAny(g.Common, tr.BX, tr.BY) {
		return ReasonInvalidEntry
	}

	// 2. Exit point, on the terminal emission only.
	if terminal && len(g.Common) > 0 && !scene.InAny(g.Common, tr.CX, tr.CY) {
		return ReasonInvalidExit
	}

	// 3. Restricted areas.
	if restrictedEnabled(g.Restricted) && scene.InAny(g.Restricted, tr.CX, tr.CY) {
		return ReasonRestricted
	}

	// 4. Numeric limits.
	s := g.Settings
	if s.Directions > 0 && tr.Directions > s.Directions {
		return exceeded("Directions", float64(tr.Directions), float64(s.Directions))
	}
	if s.Age > 0 && tr.Age > s.Age {
		return exceeded("Age", tr.Age, s.Age)
	}
	if s.Idle > 0 && tr.Idle > s.Idle {
		return exceeded("Idle", tr.Idle, s.Idle)
	}
	if s.MaxSpeed > 0 && tr.MaxSpeed > s.MaxSpeed {
		return exceeded("MaxSpeed", tr.MaxSpeed, s.MaxSpeed)
	}

	// 5. Allowed travel directions. Image y grows downward.
	switch s.Horizontal {
	case "Left":
		if tr.DX > 0 {
			return ReasonWrongWay
		}
	case "Right":
		if tr.DX < 0 {
			return ReasonWrongWay
		}
	}
	switch s.Vertical {
	case "Up":
		if tr.DY > 0 {
			return ReasonWrongWay
		}
	case "Down":
		if tr.DY < 0 {
			return ReasonWrongWay
		}
	}
	return ""
}

func restrictedEnabled(zones []scene.Zone) bool {
	if len(zones) == 0 {
		return false
	}
	d := zones[0].Distance
	return d == 0 || d >= restrictedBypassDistance
}

func exceeded(metric string, v, limit float64) string {
	return metric + ": " + formatNumber(v) + ">" + formatNumber(limit)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(scene.Round1(v), 'f', -1, 64)
}
