// Package scene turns per-frame detections into persistent tracks and
// finalized movement paths in a normalized [0,1000]x[0,1000] view.
package scene

import "math"

// Attributes are secondary descriptors reported by the detector. Once a
// field is set on a track it is never overwritten.
type Attributes struct {
	Color  string `json:"color,omitempty"`
	Color2 string `json:"color2,omitempty"`
	Hat    string `json:"hat,omitempty"`
	Bag    string `json:"bag,omitempty"`
	Face   *bool  `json:"face,omitempty"`
}

// Merge fills unset fields of a from b.
func (a *Attributes) Merge(b Attributes) {
	if a.Color == "" {
		a.Color = b.Color
	}
	if a.Color2 == "" {
		a.Color2 = b.Color2
	}
	if a.Hat == "" {
		a.Hat = b.Hat
	}
	if a.Bag == "" {
		a.Bag = b.Bag
	}
	if a.Face == nil && b.Face != nil {
		face := *b.Face
		a.Face = &face
	}
}

// Detection is one object in one frame as delivered by the ingest adapter.
// A delete event carries only ID with Active=false.
type Detection struct {
	ID         string  `json:"id"`
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	W          float64 `json:"w"`
	H          float64 `json:"h"`
	CX         float64 `json:"cx"`
	CY         float64 `json:"cy"`
	Active     bool    `json:"active"`
	Timestamp  int64   `json:"timestamp"` // unix ms
	Speed      float64 `json:"speed,omitempty"`
	Attributes
}

// Track is the published snapshot of a tracked object.
type Track struct {
	ID         string  `json:"id"`
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	Active     bool    `json:"active"`
	Birth      int64   `json:"birth"`     // unix ms
	Timestamp  int64   `json:"timestamp"` // unix ms of the latest detection
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	W          float64 `json:"w"`
	H          float64 `json:"h"`
	CX         float64 `json:"cx"`
	CY         float64 `json:"cy"`
	BX         float64 `json:"bx"`
	BY         float64 `json:"by"`
	PX         float64 `json:"px"`
	PY         float64 `json:"py"`
	DX         float64 `json:"dx"`
	DY         float64 `json:"dy"`
	Distance   float64 `json:"distance"`
	Age        float64 `json:"age"`  // seconds
	Idle       float64 `json:"idle"` // seconds
	Speed      float64 `json:"speed,omitempty"`
	MaxSpeed   float64 `json:"maxSpeed"`
	Directions int     `json:"directions"`
	Anomaly    string  `json:"anomaly,omitempty"`
	Attributes
}

// PathSample is one position of a path. D is the time in seconds spent at
// this position, known only once the next sample exists.
type PathSample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	D float64 `json:"d"`
	T int64   `json:"t"` // unix ms
}

// Path is the finalized position history of one track.
type Path struct {
	ID         string       `json:"id"`
	Class      string       `json:"class"`
	Confidence float64      `json:"confidence"`
	Timestamp  int64        `json:"timestamp"` // birth, unix ms
	Age        float64      `json:"age"`
	Distance   float64      `json:"distance"`
	DX         float64      `json:"dx"`
	DY         float64      `json:"dy"`
	BX         float64      `json:"bx"`
	BY         float64      `json:"by"`
	Dwell      float64      `json:"dwell"`
	Directions int          `json:"directions"`
	MaxSpeed   float64      `json:"maxSpeed"`
	Anomaly    string       `json:"anomaly,omitempty"`
	Stitched   bool         `json:"stitched,omitempty"`
	Samples    []PathSample `json:"path"`
	Attributes
}

// First returns the first sample of the path.
func (p Path) First() PathSample {
	if len(p.Samples) == 0 {
		return PathSample{}
	}
	return p.Samples[0]
}

// Last returns the last sample of the path.
func (p Path) Last() PathSample {
	if len(p.Samples) == 0 {
		return PathSample{}
	}
	return p.Samples[len(p.Samples)-1]
}

// Clone returns a copy of p that shares no sample storage with it.
func (p Path) Clone() Path {
	c := p
	c.Samples = append([]PathSample(nil), p.Samples...)
	return c
}

// Round1 rounds v to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
