package scene

// Space is the extent of the normalized coordinate system on both axes.
const Space = 1000.0

// Rotation is the mounting rotation of the sensor in degrees.
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// COG selects which point of a bounding box represents the object.
type COG int

const (
	// COGCenter uses the center of the box.
	COGCenter COG = 0
	// COGBottom uses the bottom-center of the box, which is closer to the
	// ground contact point for people and vehicles.
	COGBottom COG = 1
)

// Box is a bounding box in normalized space with its origin at the top-left.
type Box struct {
	X, Y, W, H float64
}

// Normalized is a rotated box together with its representative point.
type Normalized struct {
	X, Y, W, H float64
	CX, CY     float64
}

// Normalize applies the sensor rotation to b and computes the
// center-of-gravity point. Unknown rotations are treated as 0.
func Normalize(b Box, rot Rotation, cog COG) Normalized {
	n := Normalized{X: b.X, Y: b.Y, W: b.W, H: b.H}

	switch rot {
	case Rotate180:
		n.X = Space - b.X - b.W
		n.Y = Space - b.Y - b.H
	case Rotate90:
		n.W, n.H = b.H, b.W
		n.X = Space - b.Y - n.W
		n.Y = b.X
	case Rotate270:
		n.W, n.H = b.H, b.W
		n.X = b.Y
		n.Y = Space - b.X - n.H
	}

	n.CX = n.X + n.W/2
	if cog == COGBottom {
		n.CY = n.Y + n.H
	} else {
		n.CY = n.Y + n.H/2
	}
	return n
}

// vendorScale is the half-extent of the camera detector's fixed-point grid.
const vendorScale = 4096.0

// FromVendorBox converts a camera detector box with edges in [-1,1]
// (top edge > bottom edge) into normalized space.
func FromVendorBox(left, top, right, bottom float64) Box {
	x1 := left*vendorScale + vendorScale
	y1 := vendorScale - top*vendorScale
	x2 := right*vendorScale + vendorScale
	y2 := vendorScale - bottom*vendorScale

	const k = Space / (2 * vendorScale)
	return Box{
		X: x1 * k,
		Y: y1 * k,
		W: (x2 - x1) * k,
		H: (y2 - y1) * k,
	}
}

// Apply fills the geometry fields of d from a raw box.
func (d *Detection) Apply(b Box, rot Rotation, cog COG) {
	n := Normalize(b, rot, cog)
	d.X, d.Y, d.W, d.H = n.X, n.Y, n.W, n.H
	d.CX, d.CY = n.CX, n.CY
}
