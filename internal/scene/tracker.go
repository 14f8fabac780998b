package scene

import (
	"math"
	"sort"
	"time"
)

// TrackState represents the lifecycle state of a track.
type TrackState string

const (
	TrackNew      TrackState = "new"      // seen, not yet emitted
	TrackActive   TrackState = "active"   // emitted at least once
	TrackInactive TrackState = "inactive" // terminal snapshot emitted
)

// EmitPolicy selects when a live track produces an update snapshot.
type EmitPolicy string

const (
	// EmitDistance emits when the track has moved more than EmitDistance
	// units from the point of its last emission.
	EmitDistance EmitPolicy = "distance"
	// EmitInterval emits at most once per EmitInterval regardless of
	// movement. Used for sensors with a low update rate.
	EmitInterval EmitPolicy = "interval"
)

// TrackerConfig holds the tracker tuning parameters.
type TrackerConfig struct {
	Policy       EmitPolicy
	EmitDistance float64       // normalized units
	EmitInterval time.Duration // minimum time between interval emissions
	// MoveThreshold is the per-axis displacement that counts as a
	// significant move for idle time and direction changes.
	MoveThreshold float64
	// StaleAfter terminates a track that received no detection for this
	// long. Zero disables expiry.
	StaleAfter time.Duration
	// MaxIdle suppresses update emissions for a track that has been idle
	// this long until it moves again. Zero disables suppression.
	MaxIdle time.Duration
}

// DefaultTrackerConfig returns the distance-triggered configuration used
// for camera detections.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Policy:        EmitDistance,
		EmitDistance:  50,
		EmitInterval:  time.Second,
		MoveThreshold: 50,
		StaleAfter:    3 * time.Second,
	}
}

// trackedObject is the tracker's private state for one id.
type trackedObject struct {
	Track
	state    TrackState
	lastEmit int64 // unix ms
	rawDist  float64

	// last significant move
	sigX, sigY float64
	sigTime    int64
	signX      int
	signY      int

	suppressed bool
}

// Tracker owns the live tracks keyed by detector id. It is not safe for
// concurrent use; the pipeline goroutine is its only caller.
type Tracker struct {
	config TrackerConfig
	tracks map[string]*trackedObject
}

// NewTracker creates a tracker with the given configuration.
func NewTracker(config TrackerConfig) *Tracker {
	return &Tracker{
		config: config,
		tracks: make(map[string]*trackedObject),
	}
}

// Configure replaces the tracker configuration. Live tracks keep their state.
func (t *Tracker) Configure(config TrackerConfig) {
	t.config = config
}

// Config returns the active configuration.
func (t *Tracker) Config() TrackerConfig {
	return t.config
}

// Len returns the number of live tracks.
func (t *Tracker) Len() int {
	return len(t.tracks)
}

// Update processes one frame of detections and returns the snapshots to
// emit, in detection order. Detections without a timestamp use now.
func (t *Tracker) Update(now time.Time, dets []Detection) []Track {
	var out []Track
	for _, d := range dets {
		ts := d.Timestamp
		if ts == 0 {
			ts = now.UnixMilli()
		}

		obj, ok := t.tracks[d.ID]
		if !d.Active {
			if ok {
				out = append(out, t.terminate(obj, ts))
			}
			continue
		}

		if !ok {
			t.create(d, ts)
			continue
		}

		if snap, emit := t.update(obj, d, ts); emit {
			out = append(out, snap)
		}
	}
	return out
}

// Expire terminates every track not seen within StaleAfter of now.
// Snapshots are returned in id order.
func (t *Tracker) Expire(now time.Time) []Track {
	if t.config.StaleAfter <= 0 {
		return nil
	}
	cutoff := now.Add(-t.config.StaleAfter).UnixMilli()
	var stale []*trackedObject
	for _, obj := range t.tracks {
		if obj.Timestamp <= cutoff {
			stale = append(stale, obj)
		}
	}
	return t.terminateAll(stale)
}

// Flush terminates every live track.
func (t *Tracker) Flush() []Track {
	all := make([]*trackedObject, 0, len(t.tracks))
	for _, obj := range t.tracks {
		all = append(all, obj)
	}
	return t.terminateAll(all)
}

// Live returns snapshots of all live tracks sorted by id.
func (t *Tracker) Live() []Track {
	out := make([]Track, 0, len(t.tracks))
	for _, obj := range t.tracks {
		out = append(out, obj.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *Tracker) terminateAll(objs []*trackedObject) []Track {
	sort.Slice(objs, func(i, j int) bool { return objs[i].ID < objs[j].ID })
	out := make([]Track, 0, len(objs))
	for _, obj := range objs {
		// Stale tracks end where and when they were last seen.
		out = append(out, t.terminate(obj, obj.Timestamp))
	}
	return out
}

func (t *Tracker) create(d Detection, ts int64) {
	obj := &trackedObject{
		Track: Track{
			ID:         d.ID,
			Class:      d.Class,
			Confidence: d.Confidence,
			Active:     true,
			Birth:      ts,
			Timestamp:  ts,
			X:          d.X,
			Y:          d.Y,
			W:          d.W,
			H:          d.H,
			CX:         d.CX,
			CY:         d.CY,
			BX:         d.CX,
			BY:         d.CY,
			PX:         d.CX,
			PY:         d.CY,
			Speed:      Round1(d.Speed),
			MaxSpeed:   Round1(d.Speed),
			Attributes: d.Attributes,
		},
		state:    TrackNew,
		lastEmit: ts,
		sigX:     d.CX,
		sigY:     d.CY,
		sigTime:  ts,
	}
	if d.Face != nil {
		face := *d.Face
		obj.Face = &face
	}
	t.tracks[d.ID] = obj
	Diagf("track %s born class=%s at (%.0f,%.0f)", d.ID, d.Class, d.CX, d.CY)
}

func (t *Tracker) update(obj *trackedObject, d Detection, ts int64) (Track, bool) {
	// 1. Sticky maximum class/confidence; attributes are first-write-wins.
	if d.Confidence > obj.Confidence {
		obj.Confidence = d.Confidence
		if d.Class != "" {
			obj.Class = d.Class
		}
	}
	obj.Attributes.Merge(d.Attributes)

	// 2. Kinematics. Distance accumulates from the previous sample, not birth.
	step := Distance(obj.CX, obj.CY, d.CX, d.CY)
	obj.rawDist += step / 10
	obj.Distance = Round1(obj.rawDist)

	elapsed := float64(ts-obj.Timestamp) / 1000
	obj.X, obj.Y, obj.W, obj.H = d.X, d.Y, d.W, d.H
	obj.CX, obj.CY = d.CX, d.CY
	obj.DX = obj.CX - obj.BX
	obj.DY = obj.CY - obj.BY
	obj.Age = float64(ts-obj.Birth) / 1000
	obj.Timestamp = ts

	if d.Speed != 0 {
		obj.Speed = Round1(d.Speed)
		obj.MaxSpeed = math.Max(obj.MaxSpeed, obj.Speed)
	}

	// 3. Idle time and direction changes from significant moves.
	t.trackMovement(obj, ts, elapsed, d.Speed == 0)

	if t.config.MaxIdle > 0 && obj.Idle >= t.config.MaxIdle.Seconds() {
		if !obj.suppressed {
			Diagf("track %s suppressed after %.1fs idle", obj.ID, obj.Idle)
		}
		obj.suppressed = true
	}
	if obj.suppressed {
		return Track{}, false
	}

	// 4. Emission policy.
	emit := false
	switch t.config.Policy {
	case EmitInterval:
		emit = ts-obj.lastEmit >= t.config.EmitInterval.Milliseconds()
	default:
		emit = Distance(obj.PX, obj.PY, obj.CX, obj.CY) > t.config.EmitDistance
	}
	if !emit {
		return Track{}, false
	}

	obj.PX, obj.PY = obj.CX, obj.CY
	obj.lastEmit = ts
	obj.state = TrackActive
	return obj.snapshot(), true
}

func (t *Tracker) trackMovement(obj *trackedObject, ts int64, elapsed float64, estimateSpeed bool) {
	mx := obj.CX - obj.sigX
	my := obj.CY - obj.sigY
	thr := t.config.MoveThreshold
	if math.Abs(mx) < thr && math.Abs(my) < thr {
		obj.Idle += elapsed
		return
	}

	if math.Abs(mx) >= thr {
		obj.signX = countTurn(obj, obj.signX, mx)
	}
	if math.Abs(my) >= thr {
		obj.signY = countTurn(obj, obj.signY, my)
	}

	if estimateSpeed {
		if dt := float64(ts-obj.sigTime) / 1000; dt > 0 {
			v := Round1(Distance(obj.sigX, obj.sigY, obj.CX, obj.CY) / 10 / dt)
			obj.MaxSpeed = math.Max(obj.MaxSpeed, v)
		}
	}

	obj.sigX, obj.sigY = obj.CX, obj.CY
	obj.sigTime = ts
	obj.Idle = 0
	if obj.suppressed {
		Diagf("track %s resumed", obj.ID)
	}
	obj.suppressed = false
}

// countTurn increments the direction counter when the sign of delta differs
// from the previous significant move on the same axis.
func countTurn(obj *trackedObject, prev int, delta float64) int {
	sign := 1
	if delta < 0 {
		sign = -1
	}
	if prev != 0 && sign != prev {
		obj.Directions++
	}
	return sign
}

func (t *Tracker) terminate(obj *trackedObject, ts int64) Track {
	if ts > obj.Timestamp {
		obj.Age = float64(ts-obj.Birth) / 1000
		obj.Timestamp = ts
	}
	obj.Active = false
	obj.state = TrackInactive
	delete(t.tracks, obj.ID)
	Diagf("track %s inactive age=%.1fs distance=%.1f", obj.ID, obj.Age, obj.Distance)
	return obj.snapshot()
}

func (obj *trackedObject) snapshot() Track {
	s := obj.Track
	if obj.Face != nil {
		face := *obj.Face
		s.Face = &face
	}
	return s
}

// Heartbeat returns snapshots of active tracks that have not been emitted
// for at least every, and restarts their emission clock. Suppressed tracks
// stay quiet.
func (t *Tracker) Heartbeat(now time.Time, every time.Duration) []Track {
	if every <= 0 {
		return nil
	}
	cutoff := now.Add(-every).UnixMilli()
	var out []Track
	for _, obj := range t.tracks {
		if obj.state != TrackActive || obj.suppressed || obj.lastEmit > cutoff {
			continue
		}
		obj.lastEmit = now.UnixMilli()
		out = append(out, obj.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Annotate records an anomaly reason on a live track so that later
// snapshots carry it.
func (t *Tracker) Annotate(id, reason string) {
	if obj, ok := t.tracks[id]; ok {
		obj.Anomaly = reason
	}
}

// State returns the lifecycle state of the track with the given id.
func (t *Tracker) State(id string) (TrackState, bool) {
	obj, ok := t.tracks[id]
	if !ok {
		return "", false
	}
	return obj.state, true
}
