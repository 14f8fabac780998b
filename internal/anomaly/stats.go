package anomaly

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/dataq/internal/ring"
	"github.com/banshee-data/dataq/internal/scene"
)

// StatsWindow is the number of terminal samples kept per metric and group.
const StatsWindow = 200

// Metric names reported by Stats.
var metrics = []string{"directions", "age", "idle", "maxSpeed", "dx", "dy"}

// Summary describes the recent distribution of one metric.
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

type groupStats struct {
	windows map[string]*ring.History[float64]
}

func newGroupStats() *groupStats {
	g := &groupStats{windows: make(map[string]*ring.History[float64], len(metrics))}
	for _, m := range metrics {
		g.windows[m] = ring.New[float64](StatsWindow)
	}
	return g
}

// record must be called with e.mu held.
func (e *Evaluator) record(group string, tr *scene.Track) {
	g, ok := e.stats[group]
	if !ok {
		g = newGroupStats()
		e.stats[group] = g
	}
	g.windows["directions"].Add(float64(tr.Directions))
	g.windows["age"].Add(tr.Age)
	g.windows["idle"].Add(tr.Idle)
	g.windows["maxSpeed"].Add(tr.MaxSpeed)
	g.windows["dx"].Add(tr.DX)
	g.windows["dy"].Add(tr.DY)
}

// Stats summarizes the rolling statistics per group and metric.
func (e *Evaluator) Stats() map[string]map[string]Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]map[string]Summary, len(e.stats))
	for group, g := range e.stats {
		sums := make(map[string]Summary, len(g.windows))
		for name, w := range g.windows {
			sums[name] = summarize(w.All())
		}
		out[group] = sums
	}
	return out
}

func summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	s := Summary{
		Count: len(values),
		Min:   floats.Min(values),
		Max:   floats.Max(values),
	}
	if len(values) < 2 {
		s.Mean = values[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
	return s
}
