// Package geospace maps normalized scene coordinates to geographic
// coordinates with a camera-calibrated homography.
package geospace

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotCalibrated is returned when no matrix has been configured.
	ErrNotCalibrated = errors.New("geospace: matrix not configured")
	// ErrSingular is returned when calibration points cannot determine a
	// homography.
	ErrSingular = errors.New("geospace: degenerate calibration points")
)

// minW is the smallest homogeneous coordinate treated as a real point.
const minW = 1e-10

// Matrix is a row-major 3x3 homography.
type Matrix [9]float64

// Apply maps (x, y) through the homography. A point at infinity maps to
// (0, 0).
func (m Matrix) Apply(x, y float64) (lat, lon float64) {
	h := mat.NewDense(3, 3, m[:])
	p := mat.NewVecDense(3, []float64{x, y, 1})
	var r mat.VecDense
	r.MulVec(h, p)

	w := r.AtVec(2)
	if math.Abs(w) <= minW {
		return 0, 0
	}
	return r.AtVec(1) / w, r.AtVec(0) / w
}

// Calibration pairs a scene point with its geographic position.
type Calibration struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Solve computes the homography mapping the four scene points to their
// geographic positions. The last matrix element is fixed to 1.
func Solve(points [4]Calibration) (Matrix, error) {
	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)
	for i, p := range points {
		r := 2 * i
		a.SetRow(r, []float64{p.X, p.Y, 1, 0, 0, 0, -p.X * p.Lon, -p.Y * p.Lon})
		b.SetVec(r, p.Lon)
		a.SetRow(r+1, []float64{0, 0, 0, p.X, p.Y, 1, -p.X * p.Lat, -p.Y * p.Lat})
		b.SetVec(r+1, p.Lat)
	}

	var h mat.VecDense
	if err := h.SolveVec(a, b); err != nil {
		return Matrix{}, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	var m Matrix
	for i := 0; i < 8; i++ {
		m[i] = h.AtVec(i)
	}
	m[8] = 1
	return m, nil
}

// Transformer holds the active matrix. It is safe for concurrent use.
type Transformer struct {
	mu     sync.RWMutex
	matrix Matrix
	ready  bool
}

// NewTransformer returns an uncalibrated transformer.
func NewTransformer() *Transformer {
	return &Transformer{}
}

// SetMatrix installs a row-major matrix. An empty slice clears the
// calibration.
func (t *Transformer) SetMatrix(values []float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(values) == 0 {
		t.matrix, t.ready = Matrix{}, false
		return nil
	}
	if len(values) != len(t.matrix) {
		return fmt.Errorf("geospace: matrix needs %d elements, got %d", len(t.matrix), len(values))
	}
	copy(t.matrix[:], values)
	t.ready = true
	return nil
}

// Matrix returns the active matrix and whether one is configured.
func (t *Transformer) Matrix() (Matrix, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.matrix, t.ready
}

// Transform maps a scene point to geographic coordinates.
func (t *Transformer) Transform(x, y float64) (lat, lon float64, err error) {
	m, ok := t.Matrix()
	if !ok {
		return 0, 0, ErrNotCalibrated
	}
	lat, lon = m.Apply(x, y)
	return lat, lon, nil
}
