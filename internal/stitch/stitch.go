// Package stitch merges paths that are split by a sensor blind spot.
//
// A path that dies inside the gap zone is held until a later path is born
// inside the same zone with a matching class, heading and time gap. The two
// are then published as one stitched path. Unmatched holds are published
// unchanged once their deadline passes.
package stitch

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/dataq/internal/scene"
)

// Config holds the stitcher settings.
type Config struct {
	Active           bool    `json:"active"`
	Duration         float64 `json:"duration"` // seconds
	X1               float64 `json:"x1"`
	X2               float64 `json:"x2"`
	Y1               float64 `json:"y1"`
	Y2               float64 `json:"y2"`
	AngleThreshold   float64 `json:"angle_threshold"` // degrees, 0 disables
	AllowClassSwitch bool    `json:"allow_class_switch"`
}

// DefaultConfig returns the stitcher defaults. Stitching is off until
// enabled.
func DefaultConfig() Config {
	return Config{
		Duration:       5,
		X1:             250,
		X2:             750,
		Y1:             250,
		Y2:             750,
		AngleThreshold: 40,
	}
}

// Zone returns the capture zone.
func (c Config) Zone() scene.Zone {
	return scene.Zone{X1: c.X1, X2: c.X2, Y1: c.Y1, Y2: c.Y2}
}

// Window returns the hold duration and maximum matching time gap.
func (c Config) Window() time.Duration {
	return time.Duration(c.Duration * float64(time.Second))
}

type hold struct {
	path     scene.Path
	deadline time.Time
}

// Held describes a path waiting for a match.
type Held struct {
	ID       string    `json:"id"`
	Class    string    `json:"class"`
	X        float64   `json:"x"`
	Y        float64   `json:"y"`
	Deadline time.Time `json:"deadline"`
}

// Stitcher holds paths awaiting a match. It is safe for concurrent use.
type Stitcher struct {
	mu     sync.Mutex
	config Config
	holds  []hold // sorted by deadline
}

// New creates a stitcher with the given configuration.
func New(config Config) *Stitcher {
	return &Stitcher{config: config}
}

// Config returns the active configuration.
func (s *Stitcher) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// Configure applies new settings. Every held path is released and returned
// so the caller can publish it.
func (s *Stitcher) Configure(config Config) []scene.Path {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = config
	return s.releaseAllLocked()
}

// Flush releases every held path.
func (s *Stitcher) Flush() []scene.Path {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseAllLocked()
}

// Process routes a finalized path through the zone decision table and
// returns the paths to publish now. A nil result means the path is held.
func (s *Stitcher) Process(now time.Time, p scene.Path) []scene.Path {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.config.Active || len(p.Samples) < 2 {
		return []scene.Path{p}
	}

	zone := s.config.Zone()
	first, last := p.First(), p.Last()
	birthIn := zone.Contains(first.X, first.Y)
	deathIn := zone.Contains(last.X, last.Y)

	switch {
	case !birthIn && !deathIn:
		return []scene.Path{p}

	case !birthIn && deathIn:
		s.holdLocked(now, p)
		scene.Diagf("stitch: holding path %s until %s", p.ID, now.Add(s.config.Window()).Format(time.RFC3339))
		return nil
	}

	idx := s.matchLocked(p)
	if idx < 0 {
		return []scene.Path{p}
	}

	held := s.holds[idx].path
	s.holds = append(s.holds[:idx], s.holds[idx+1:]...)
	merged := merge(held, p, s.config.AllowClassSwitch)
	scene.Diagf("stitch: merged path %s with %s (%d samples)", held.ID, p.ID, len(merged.Samples))

	end := merged.Last()
	if zone.Contains(end.X, end.Y) {
		s.holdLocked(now, merged)
		return nil
	}
	return []scene.Path{merged}
}

// Expire releases holds whose deadline is at or before now, in deadline
// order. Each hold is released exactly once.
func (s *Stitcher) Expire(now time.Time) []scene.Path {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := sort.Search(len(s.holds), func(i int) bool {
		return s.holds[i].deadline.After(now)
	})
	if n == 0 {
		return nil
	}
	out := make([]scene.Path, n)
	for i := 0; i < n; i++ {
		out[i] = s.holds[i].path
		scene.Diagf("stitch: hold for path %s timed out", out[i].ID)
	}
	s.holds = append(s.holds[:0], s.holds[n:]...)
	return out
}

// NextDeadline returns the earliest hold deadline.
func (s *Stitcher) NextDeadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.holds) == 0 {
		return time.Time{}, false
	}
	return s.holds[0].deadline, true
}

// Held returns a description of every held path in deadline order.
func (s *Stitcher) Held() []Held {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Held, 0, len(s.holds))
	for _, h := range s.holds {
		last := h.path.Last()
		out = append(out, Held{ID: h.path.ID, Class: h.path.Class, X: last.X, Y: last.Y, Deadline: h.deadline})
	}
	return out
}

// Len returns the number of held paths.
func (s *Stitcher) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.holds)
}

func (s *Stitcher) holdLocked(now time.Time, p scene.Path) {
	h := hold{path: p, deadline: now.Add(s.config.Window())}
	i := sort.Search(len(s.holds), func(i int) bool {
		return s.holds[i].deadline.After(h.deadline)
	})
	s.holds = append(s.holds, hold{})
	copy(s.holds[i+1:], s.holds[i:])
	s.holds[i] = h
}

func (s *Stitcher) releaseAllLocked() []scene.Path {
	if len(s.holds) == 0 {
		return nil
	}
	out := make([]scene.Path, len(s.holds))
	for i, h := range s.holds {
		out[i] = h.path
	}
	s.holds = nil
	return out
}

// matchLocked returns the index of the first held path that matches the
// incoming path, or -1.
func (s *Stitcher) matchLocked(p scene.Path) int {
	window := s.config.Window().Milliseconds()
	incomingAngle := heading(p.Samples[0], p.Samples[1])

	for i, h := range s.holds {
		held := h.path
		if len(held.Samples) < 2 {
			continue
		}
		if !s.config.AllowClassSwitch && held.Class != p.Class {
			continue
		}
		if s.config.AngleThreshold > 0 {
			n := len(held.Samples)
			heldAngle := heading(held.Samples[n-2], held.Samples[n-1])
			if angleBetween(heldAngle, incomingAngle) > s.config.AngleThreshold {
				continue
			}
		}
		gap := p.First().T - held.Last().T
		if gap < 0 {
			gap = -gap
		}
		if gap > window {
			continue
		}
		return i
	}
	return -1
}

// heading returns the direction of travel from a to b in radians.
func heading(a, b scene.PathSample) float64 {
	return math.Atan2(b.Y-a.Y, b.X-a.X)
}

// angleBetween returns the absolute difference of two headings in degrees,
// wrapped to [0,180].
func angleBetween(a1, a2 float64) float64 {
	diff := a1 - a2
	for diff > math.Pi {
		diff -= 2 * math.Pi
	}
	for diff < -math.Pi {
		diff += 2 * math.Pi
	}
	return math.Abs(diff) * 180 / math.Pi
}

// merge joins a held path with the path that continues it.
func merge(held, incoming scene.Path, allowClassSwitch bool) scene.Path {
	m := held.Clone()
	m.Samples = append(m.Samples, incoming.Samples...)

	m.Age = held.Age + incoming.Age
	gap := scene.Distance(held.Last().X, held.Last().Y, incoming.First().X, incoming.First().Y)
	m.Distance = held.Distance + incoming.Distance + gap/10

	if allowClassSwitch {
		if incoming.Confidence > held.Confidence {
			m.Class = incoming.Class
		}
		m.Confidence = math.Max(held.Confidence, incoming.Confidence)
	}

	first, last := m.First(), m.Last()
	m.DX = last.X - first.X
	m.DY = last.Y - first.Y
	m.BX, m.BY = first.X, first.Y
	m.Timestamp = held.Timestamp

	m.Dwell = 0
	for _, smp := range m.Samples {
		m.Dwell = math.Max(m.Dwell, smp.D)
	}

	m.Directions = held.Directions + incoming.Directions
	m.MaxSpeed = math.Max(held.MaxSpeed, incoming.MaxSpeed)
	if m.Anomaly == "" {
		m.Anomaly = incoming.Anomaly
	}
	m.Attributes.Merge(incoming.Attributes)
	m.Stitched = true
	return m
}
