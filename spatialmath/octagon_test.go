package spatialmath

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func TestBoundaryDistance(t *testing.T) {
	o := NewOctagon(DefaultOctagonRadius)
	test.That(t, o.BoundaryDistance(0), test.ShouldAlmostEqual, 180)
	test.That(t, o.BoundaryDistance(math.Pi/2), test.ShouldAlmostEqual, 180)
	test.That(t, o.BoundaryDistance(math.Pi/4), test.ShouldAlmostEqual, 180*math.Sqrt2)
	test.That(t, o.BoundaryDistance(-3*math.Pi/4), test.ShouldAlmostEqual, 180*math.Sqrt2)
}

func TestClamp(t *testing.T) {
	o := NewOctagon(DefaultOctagonRadius)

	t.Run("origin", func(t *testing.T) {
		test.That(t, o.Clamp(r2.Point{}), test.ShouldResemble, r2.Point{})
	})

	t.Run("inside is identity", func(t *testing.T) {
		p := r2.Point{X: 30, Y: -75}
		test.That(t, o.Clamp(p), test.ShouldResemble, p)
	})

	t.Run("on axis", func(t *testing.T) {
		got := o.Clamp(r2.Point{X: 200, Y: 0})
		test.That(t, got.X, test.ShouldAlmostEqual, 180)
		test.That(t, got.Y, test.ShouldAlmostEqual, 0)
	})

	t.Run("on diagonal", func(t *testing.T) {
		got := o.Clamp(r2.Point{X: -500, Y: -500})
		test.That(t, got.X, test.ShouldAlmostEqual, -180)
		test.That(t, got.Y, test.ShouldAlmostEqual, -180)
	})

	t.Run("non finite", func(t *testing.T) {
		test.That(t, o.Clamp(r2.Point{X: math.NaN(), Y: 1}), test.ShouldResemble, r2.Point{})
		test.That(t, o.Clamp(r2.Point{X: math.Inf(1), Y: 1}), test.ShouldResemble, r2.Point{})
	})
}

func TestClampProperties(t *testing.T) {
	o := NewOctagon(DefaultOctagonRadius)
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 5000; i++ {
		p := r2.Point{X: (r.Float64() - 0.5) * 1000, Y: (r.Float64() - 0.5) * 1000}
		got := o.Clamp(p)
		theta := math.Atan2(got.Y, got.X)
		test.That(t, got.Norm(), test.ShouldBeLessThanOrEqualTo, o.BoundaryDistance(theta)+1e-9)
		test.That(t, o.Contains(got), test.ShouldBeTrue)
		if o.Contains(p) {
			test.That(t, got, test.ShouldResemble, p)
		} else {
			// radial projection keeps the direction
			test.That(t, math.Atan2(got.Y, got.X), test.ShouldAlmostEqual, math.Atan2(p.Y, p.X))
		}
	}
}

func TestVertices(t *testing.T) {
	o := NewOctagon(35)
	center := r2.Point{X: 200, Y: 200}
	vertices := o.Vertices(center)
	test.That(t, len(vertices), test.ShouldEqual, 8)
	test.That(t, vertices[0].X, test.ShouldAlmostEqual, 235)
	test.That(t, vertices[0].Y, test.ShouldAlmostEqual, 200)
	test.That(t, vertices[2].X, test.ShouldAlmostEqual, 200)
	test.That(t, vertices[2].Y, test.ShouldAlmostEqual, 235)
	for _, v := range vertices {
		test.That(t, v.Sub(center).Norm(), test.ShouldAlmostEqual, 35)
	}
}
