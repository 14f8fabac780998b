package stitch

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/dataq/internal/scene"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func activeConfig() Config {
	c := DefaultConfig()
	c.Active = true
	return c
}

// along returns the point 100 units from (x,y) at the given heading.
func along(x, y, deg float64) (float64, float64) {
	r := deg * math.Pi / 180
	return x + 100*math.Cos(r), y + 100*math.Sin(r)
}

// heldPath dies at (700,500) at t=1000ms travelling at 10 degrees.
func heldPath(class string) scene.Path {
	px, py := along(700, 500, 190)
	return scene.Path{
		ID:         "p1",
		Class:      class,
		Confidence: 60,
		Timestamp:  -5000,
		Age:        6,
		Distance:   10,
		Dwell:      0.5,
		Samples: []scene.PathSample{
			{X: 100, Y: 480, D: 0.5, T: -5000},
			{X: px, Y: py, D: 1, T: 0},
			{X: 700, Y: 500, D: 0.2, T: 1000},
		},
	}
}

// incomingPath is born at (700,520) at t=3000ms travelling at 15 degrees and
// leaves the zone.
func incomingPath(class string) scene.Path {
	nx, ny := along(700, 520, 15)
	return scene.Path{
		ID:         "p2",
		Class:      class,
		Confidence: 80,
		Timestamp:  3000,
		Age:        4,
		Distance:   5,
		Samples: []scene.PathSample{
			{X: 700, Y: 520, D: 1.5, T: 3000},
			{X: nx, Y: ny, D: 0.3, T: 4000},
			{X: 950, Y: 600, D: 0, T: 6000},
		},
	}
}

func TestStitch_MatchMerges(t *testing.T) {
	s := New(activeConfig())

	out := s.Process(t0, heldPath("Human"))
	require.Nil(t, out, "path dying in the zone must be held")
	require.Equal(t, 1, s.Len())

	out = s.Process(t0.Add(2*time.Second), incomingPath("Human"))
	require.Len(t, out, 1)
	m := out[0]

	assert.True(t, m.Stitched)
	assert.Equal(t, 10.0, m.Age)
	assert.InDelta(t, 10+5+2, m.Distance, 1e-9, "gap of 20 units adds 2")
	assert.Len(t, m.Samples, 6)
	assert.Equal(t, int64(-5000), m.Timestamp)
	assert.Equal(t, 100.0, m.BX)
	assert.Equal(t, 480.0, m.BY)
	assert.Equal(t, 850.0, m.DX)
	assert.Equal(t, 120.0, m.DY)
	assert.Equal(t, 1.5, m.Dwell)
	assert.Equal(t, "Human", m.Class)
	assert.Equal(t, 60.0, m.Confidence, "without class switch the held confidence is kept")
	assert.Equal(t, 0, s.Len())

	assert.Nil(t, s.Expire(t0.Add(time.Minute)), "matched hold must not publish again")
}

func TestStitch_ClassMismatchPublishesStandalone(t *testing.T) {
	s := New(activeConfig())

	s.Process(t0, heldPath("Human"))
	out := s.Process(t0.Add(2*time.Second), incomingPath("Vehicle"))
	require.Len(t, out, 1)
	assert.Equal(t, "p2", out[0].ID)
	assert.False(t, out[0].Stitched)
	assert.Equal(t, 1, s.Len(), "held path keeps waiting")
}

func TestStitch_HoldTimeoutPublishesOnce(t *testing.T) {
	s := New(activeConfig())
	s.Process(t0, heldPath("Human"))

	if out := s.Expire(t0.Add(4999 * time.Millisecond)); out != nil {
		t.Fatalf("expected no release before deadline, got %d", len(out))
	}
	out := s.Expire(t0.Add(5 * time.Second))
	require.Len(t, out, 1)
	assert.Equal(t, "p1", out[0].ID)
	assert.False(t, out[0].Stitched)
	assert.Nil(t, s.Expire(t0.Add(10*time.Second)))
}

func TestStitch_ExpireInDeadlineOrder(t *testing.T) {
	s := New(activeConfig())
	a := heldPath("Human")
	a.ID = "a"
	b := heldPath("Human")
	b.ID = "b"

	s.Process(t0.Add(time.Second), b)
	s.Process(t0, a)

	deadline, ok := s.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, t0.Add(5*time.Second), deadline)

	out := s.Expire(t0.Add(time.Hour))
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "b", out[1].ID)
	_, ok = s.NextDeadline()
	assert.False(t, ok)
}

func TestStitch_AngleThreshold(t *testing.T) {
	s := New(activeConfig())
	s.Process(t0, heldPath("Human"))

	turned := incomingPath("Human")
	nx, ny := along(700, 520, 90)
	turned.Samples[1].X, turned.Samples[1].Y = nx, ny
	turned.Samples[2].X, turned.Samples[2].Y = nx, 900

	out := s.Process(t0.Add(time.Second), turned)
	require.Len(t, out, 1)
	assert.False(t, out[0].Stitched, "80 degree turn exceeds the 40 degree threshold")

	cfg := activeConfig()
	cfg.AngleThreshold = 0
	s2 := New(cfg)
	s2.Process(t0, heldPath("Human"))
	out = s2.Process(t0.Add(time.Second), turned)
	require.Len(t, out, 1)
	assert.True(t, out[0].Stitched, "zero threshold disables the angle check")
}

func TestStitch_TimeGap(t *testing.T) {
	s := New(activeConfig())
	s.Process(t0, heldPath("Human"))

	late := incomingPath("Human")
	for i := range late.Samples {
		late.Samples[i].T += 4000 // first sample at 7000ms, 6s after the held path ended
	}
	out := s.Process(t0.Add(time.Second), late)
	require.Len(t, out, 1)
	assert.False(t, out[0].Stitched)
}

func TestStitch_AllowClassSwitch(t *testing.T) {
	cfg := activeConfig()
	cfg.AllowClassSwitch = true
	s := New(cfg)

	s.Process(t0, heldPath("Human"))
	out := s.Process(t0.Add(time.Second), incomingPath("Vehicle"))
	require.Len(t, out, 1)
	assert.True(t, out[0].Stitched)
	assert.Equal(t, "Vehicle", out[0].Class, "class comes from the higher-confidence path")
	assert.Equal(t, 80.0, out[0].Confidence)
}

func TestStitch_MergedPathEndingInZoneIsHeldAgain(t *testing.T) {
	s := New(activeConfig())
	s.Process(t0, heldPath("Human"))

	inside := incomingPath("Human")
	inside.Samples = inside.Samples[:2]
	inside.Samples[1].X, inside.Samples[1].Y = along(700, 520, 15)
	inside.Samples[1].X -= 50 // stay within x <= 750

	out := s.Process(t0.Add(time.Second), inside)
	assert.Nil(t, out)
	require.Equal(t, 1, s.Len())

	held := s.Held()
	require.Len(t, held, 1)
	assert.Equal(t, "p1", held[0].ID)
	assert.Equal(t, t0.Add(6*time.Second), held[0].Deadline)

	rel := s.Expire(t0.Add(6 * time.Second))
	require.Len(t, rel, 1)
	assert.True(t, rel[0].Stitched)
	assert.Len(t, rel[0].Samples, 5)
}

func TestStitch_DecisionTable(t *testing.T) {
	s := New(activeConfig())

	outside := scene.Path{ID: "o", Class: "Human", Samples: []scene.PathSample{{X: 10, Y: 10}, {X: 100, Y: 100}}}
	out := s.Process(t0, outside)
	require.Len(t, out, 1)
	assert.Equal(t, "o", out[0].ID)

	both := scene.Path{ID: "b", Class: "Human", Samples: []scene.PathSample{{X: 300, Y: 300}, {X: 400, Y: 400}}}
	out = s.Process(t0, both)
	require.Len(t, out, 1, "birth and death inside without a match publishes unchanged")
	assert.Equal(t, "b", out[0].ID)
	assert.Equal(t, 0, s.Len())

	single := scene.Path{ID: "s", Samples: []scene.PathSample{{X: 500, Y: 500}}}
	assert.Len(t, s.Process(t0, single), 1)
}

func TestStitch_InactivePassesThrough(t *testing.T) {
	s := New(DefaultConfig())
	out := s.Process(t0, heldPath("Human"))
	require.Len(t, out, 1)
	assert.Equal(t, 0, s.Len())
}

func TestStitch_ConfigureFlushesHolds(t *testing.T) {
	s := New(activeConfig())
	s.Process(t0, heldPath("Human"))

	cfg := activeConfig()
	cfg.Duration = 10
	out := s.Configure(cfg)
	require.Len(t, out, 1)
	assert.Equal(t, "p1", out[0].ID)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 10.0, s.Config().Duration)
	assert.Nil(t, s.Flush())
}

func TestAngleBetween(t *testing.T) {
	tests := []struct {
		a, b, want float64
	}{
		{0, 0, 0},
		{math.Pi / 2, 0, 90},
		{math.Pi - 0.1, -math.Pi + 0.1, 0.2 * 180 / math.Pi},
		{-math.Pi / 4, math.Pi / 4, 90},
	}
	for _, tt := range tests {
		if got := angleBetween(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("angleBetween(%v,%v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
