package scene

import "math"

// Minimum requirements for a path to be forwarded.
const (
	MinPathAge     = 2.0 // seconds, exclusive
	MinPathSamples = 2
)

type pendingPath struct {
	path     Path
	prevTime int64 // unix ms of the previous observation
}

// PathBuilder accumulates track snapshots into paths keyed by track id.
// Like Tracker it is owned by a single goroutine.
type PathBuilder struct {
	pending map[string]*pendingPath
}

// NewPathBuilder creates an empty path builder.
func NewPathBuilder() *PathBuilder {
	return &PathBuilder{pending: make(map[string]*pendingPath)}
}

// Pending returns the number of paths still being built.
func (b *PathBuilder) Pending() int {
	return len(b.pending)
}

// Observe records one tracker emission. On the terminal emission it returns
// the finalized path when the path qualifies for forwarding.
func (b *PathBuilder) Observe(tr Track) (Path, bool) {
	pp, ok := b.pending[tr.ID]
	if !ok {
		if tr.Active {
			b.pending[tr.ID] = b.start(tr)
		}
		return Path{}, false
	}

	elapsed := float64(tr.Timestamp-pp.prevTime) / 1000
	last := &pp.path.Samples[len(pp.path.Samples)-1]
	last.D = elapsed
	pp.path.Dwell = math.Max(pp.path.Dwell, elapsed)
	pp.prevTime = tr.Timestamp
	b.refresh(&pp.path, tr)

	if tr.Active {
		pp.path.Samples = append(pp.path.Samples, PathSample{X: tr.CX, Y: tr.CY, T: tr.Timestamp})
		return Path{}, false
	}

	delete(b.pending, tr.ID)
	p := pp.path
	if len(p.Samples) < MinPathSamples || p.Age <= MinPathAge {
		Tracef("path %s discarded samples=%d age=%.1fs", p.ID, len(p.Samples), p.Age)
		return Path{}, false
	}
	return p, true
}

func (b *PathBuilder) start(tr Track) *pendingPath {
	p := Path{
		ID:        tr.ID,
		Timestamp: tr.Birth,
		BX:        tr.BX,
		BY:        tr.BY,
		Samples: []PathSample{
			{X: tr.BX, Y: tr.BY, T: tr.Birth},
			{X: tr.CX, Y: tr.CY, T: tr.Timestamp},
		},
	}
	b.refresh(&p, tr)
	return &pendingPath{path: p, prevTime: tr.Timestamp}
}

// refresh copies the latest track summary onto the path.
func (b *PathBuilder) refresh(p *Path, tr Track) {
	p.Class = tr.Class
	p.Confidence = tr.Confidence
	p.Age = tr.Age
	p.Distance = tr.Distance
	p.DX = tr.DX
	p.DY = tr.DY
	p.Directions = tr.Directions
	p.MaxSpeed = tr.MaxSpeed
	if tr.Anomaly != "" {
		p.Anomaly = tr.Anomaly
	}
	p.Attributes.Merge(tr.Attributes)
}
