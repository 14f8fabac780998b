package scene

import "slices"

// Filter rejects detections that are too uncertain, too small, too large,
// outside the area of interest or of an ignored class.
type Filter struct {
	MinConfidence float64  `json:"confidence"`
	MinWidth      float64  `json:"minWidth"`
	MaxWidth      float64  `json:"maxWidth"`
	MinHeight     float64  `json:"minHeight"`
	MaxHeight     float64  `json:"maxHeight"`
	AOI           Zone     `json:"aoi"`
	IgnoreClass   []string `json:"ignoreClass,omitempty"`
}

// DefaultFilter returns the filter applied when none is configured.
func DefaultFilter() Filter {
	return Filter{
		MinConfidence: 40,
		MinWidth:      10,
		MaxWidth:      800,
		MinHeight:     10,
		MaxHeight:     800,
		AOI:           Zone{X1: 0, X2: Space, Y1: 0, Y2: Space},
	}
}

// Accept reports whether d passes the filter. Inactive detections always
// pass so that lost events reach the tracker.
func (f Filter) Accept(d Detection) bool {
	if !d.Active {
		return true
	}
	if d.Confidence < f.MinConfidence {
		return false
	}
	if !f.AOI.Contains(d.CX, d.CY) {
		return false
	}
	if d.W < f.MinWidth || d.W > f.MaxWidth {
		return false
	}
	if d.H < f.MinHeight || d.H > f.MaxHeight {
		return false
	}
	return !slices.Contains(f.IgnoreClass, d.Class)
}

// Apply returns the detections accepted by f, preserving order.
func (f Filter) Apply(dets []Detection) []Detection {
	out := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if f.Accept(d) {
			out = append(out, d)
		} else {
			Tracef("filtered detection id=%s class=%s conf=%.0f w=%.0f h=%.0f", d.ID, d.Class, d.Confidence, d.W, d.H)
		}
	}
	return out
}
