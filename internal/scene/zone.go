package scene

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Zone is an axis-aligned rectangle in normalized space. Membership is
// inclusive on every edge.
type Zone struct {
	X1 float64 `json:"x1"`
	X2 float64 `json:"x2"`
	Y1 float64 `json:"y1"`
	Y2 float64 `json:"y2"`

	// Distance is an optional per-zone attribute carried by anomaly
	// configuration. Zero means unset.
	Distance float64 `json:"distance,omitempty"`
}

// Bound returns the zone as an orb.Bound, normalizing swapped corners.
func (z Zone) Bound() orb.Bound {
	return orb.MultiPoint{{z.X1, z.Y1}, {z.X2, z.Y2}}.Bound()
}

// Contains reports whether (x,y) lies inside the zone.
func (z Zone) Contains(x, y float64) bool {
	return z.Bound().Contains(orb.Point{x, y})
}

// InAny reports whether (x,y) lies inside at least one of zones.
func InAny(zones []Zone, x, y float64) bool {
	for _, z := range zones {
		if z.Contains(x, y) {
			return true
		}
	}
	return false
}

// Distance returns the Euclidean distance between two points.
func Distance(x1, y1, x2, y2 float64) float64 {
	return planar.Distance(orb.Point{x1, y1}, orb.Point{x2, y2})
}
