// Package spatialmath defines the planar geometry used to turn raw pointer input into a bounded
// joystick vector.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r2"
)

// DefaultOctagonRadius is the circumradius of the joystick base in input units (pixels).
const DefaultOctagonRadius = 180.0

const containsTolerance = 1e-9

// An Octagon is a regular 8-gon centered at the origin whose vertices lie at distance Radius
// along the axis and diagonal directions.
type Octagon struct {
	Radius float64
}

// NewOctagon returns an octagon with the given circumradius.
func NewOctagon(radius float64) Octagon {
	return Octagon{Radius: radius}
}

// BoundaryDistance returns the distance from the center to the boundary along direction theta
// (radians). Whichever of |cos| and |sin| dominates governs the distance.
func (o Octagon) BoundaryDistance(theta float64) float64 {
	return o.Radius / math.Max(math.Abs(math.Cos(theta)), math.Abs(math.Sin(theta)))
}

// Clamp restricts p to lie inside or on the boundary. Points already inside are returned
// unchanged; points outside are projected radially onto the boundary.
func (o Octagon) Clamp(p r2.Point) r2.Point {
	if !finite(p) {
		return r2.Point{}
	}
	dist := p.Norm()
	if dist == 0 {
		return p
	}
	maxDist := o.BoundaryDistance(math.Atan2(p.Y, p.X))
	if dist <= maxDist {
		return p
	}
	return p.Mul(maxDist / dist)
}

// Contains reports whether p lies inside or on the boundary.
func (o Octagon) Contains(p r2.Point) bool {
	if !finite(p) {
		return false
	}
	dist := p.Norm()
	if dist == 0 {
		return true
	}
	return dist <= o.BoundaryDistance(math.Atan2(p.Y, p.X))+containsTolerance
}

// Vertices returns the 8 vertices of the octagon translated to center, starting on the +X axis
// and proceeding in increasing angle.
func (o Octagon) Vertices(center r2.Point) []r2.Point {
	vertices := make([]r2.Point, 0, 8)
	for i := 0; i < 8; i++ {
		angle := float64(i) * math.Pi / 4
		vertices = append(vertices, center.Add(r2.Point{X: o.Radius * math.Cos(angle), Y: o.Radius * math.Sin(angle)}))
	}
	return vertices
}

func finite(p r2.Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}
