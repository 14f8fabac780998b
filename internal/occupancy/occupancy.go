// Package occupancy counts the objects present in the scene per class and
// smooths the counts over a short integration window.
package occupancy

import (
	"maps"
	"math"
	"time"

	"github.com/banshee-data/dataq/internal/ring"
	"github.com/banshee-data/dataq/internal/scene"
)

// HistorySize is the number of snapshots kept for stabilization.
const HistorySize = 64

// Config selects which tracks are counted. A track is stationary when its
// age is at least AgeThreshold and its idle time is at least IdleThreshold;
// it is moving when old enough but less idle than that.
type Config struct {
	Stationary      bool    `json:"stationary"`
	Moving          bool    `json:"moving"`
	AgeThreshold    float64 `json:"ageThreshold"`
	IdleThreshold   float64 `json:"idleThreshold"`
	IntegrationTime float64 `json:"integrationTime"` // seconds
}

// DefaultConfig counts every live track over a 2 s window.
func DefaultConfig() Config {
	return Config{
		Stationary:      true,
		Moving:          true,
		IntegrationTime: 2,
	}
}

// Window returns the integration window as a duration.
func (c Config) Window() time.Duration {
	return time.Duration(c.IntegrationTime * float64(time.Second))
}

// Snapshot is a timestamped class count. It is also the published payload.
type Snapshot struct {
	Counts    map[string]int `json:"occupancy"`
	Timestamp int64          `json:"timestamp"`
}

// Aggregator keeps recent snapshots. It is not safe for concurrent use.
type Aggregator struct {
	config    Config
	history   *ring.History[Snapshot]
	last      map[string]int
	published map[string]int
	reported  bool
}

// NewAggregator creates an empty aggregator.
func NewAggregator(config Config) *Aggregator {
	return &Aggregator{
		config:  config,
		history: ring.New[Snapshot](HistorySize),
		last:    map[string]int{},
	}
}

// Configure replaces the counting rules. History is kept.
func (a *Aggregator) Configure(config Config) {
	a.config = config
}

// Config returns the active counting rules.
func (a *Aggregator) Config() Config {
	return a.config
}

// Count returns the per-class count of live tracks passing the
// stationary/moving filter. Classes with a zero count are omitted.
func (a *Aggregator) Count(tracks []scene.Track) map[string]int {
	counts := map[string]int{}
	for _, tr := range tracks {
		if !tr.Active || tr.Age < a.config.AgeThreshold {
			continue
		}
		stationary := tr.Idle >= a.config.IdleThreshold
		if (stationary && a.config.Stationary) || (!stationary && a.config.Moving) {
			counts[tr.Class]++
		}
	}
	return counts
}

// Observe counts tracks and records the snapshot when it differs from the
// last recorded one. It reports whether a snapshot was recorded.
func (a *Aggregator) Observe(now time.Time, tracks []scene.Track) (Snapshot, bool) {
	counts := a.Count(tracks)
	if maps.Equal(counts, a.last) {
		return Snapshot{}, false
	}
	snap := Snapshot{Counts: counts, Timestamp: now.UnixMilli()}
	if a.history.Add(snap) {
		scene.Tracef("occupancy: history full, evicted oldest snapshot")
	}
	a.last = counts
	return snap, true
}

// Stabilized drops snapshots older than the integration window and returns
// the per-class average of the rest, rounded half-up. The newest snapshot is
// the current scene and is never dropped. Zero counts are omitted.
func (a *Aggregator) Stabilized(now time.Time) map[string]int {
	cutoff := now.Add(-a.config.Window()).UnixMilli()
	for a.history.Len() > 1 {
		oldest, ok := a.history.Oldest()
		if !ok || oldest.Timestamp >= cutoff {
			break
		}
		a.history.PopOldest()
	}

	out := map[string]int{}
	samples := a.history.All()
	if len(samples) == 0 {
		return out
	}
	sums := map[string]int{}
	for _, s := range samples {
		for class, n := range s.Counts {
			sums[class] += n
		}
	}
	for class, sum := range sums {
		avg := float64(sum) / float64(len(samples))
		if n := int(math.Floor(avg + 0.5)); n > 0 {
			out[class] = n
		}
	}
	return out
}

// Report computes the stabilized view and reports whether it differs from
// the last reported view.
func (a *Aggregator) Report(now time.Time) (Snapshot, bool) {
	view := a.Stabilized(now)
	if a.reported && maps.Equal(view, a.published) {
		return Snapshot{}, false
	}
	a.published = view
	a.reported = true
	return Snapshot{Counts: view, Timestamp: now.UnixMilli()}, true
}

// Len returns the number of snapshots in the history.
func (a *Aggregator) Len() int {
	return a.history.Len()
}

// History returns the recorded snapshots, oldest first.
func (a *Aggregator) History() []Snapshot {
	return a.history.All()
}
