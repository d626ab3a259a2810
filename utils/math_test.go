package utils

import (
	"testing"

	"go.viam.com/test"
)

func TestClamp(t *testing.T) {
	test.That(t, Clamp(200, -100, 100), test.ShouldEqual, 100)
	test.That(t, Clamp(-200, -100, 100), test.ShouldEqual, -100)
	test.That(t, Clamp(42, -100, 100), test.ShouldEqual, 42)
}

func TestMapRange(t *testing.T) {
	test.That(t, MapRange(100, 0, 100, 0, 255), test.ShouldEqual, 255)
	test.That(t, MapRange(50, 0, 100, 0, 255), test.ShouldEqual, 127)
	test.That(t, MapRange(1, 0, 100, 0, 255), test.ShouldEqual, 2)
	test.That(t, MapRange(0, 0, 100, 0, 255), test.ShouldEqual, 0)
}

func TestRound(t *testing.T) {
	for _, tc := range []struct {
		in  float64
		out int
	}{
		{0, 0},
		{0.49, 0},
		{0.5, 1},
		{-0.5, 0},
		{-0.51, -1},
		{99.5, 100},
		{-99.5, -99},
		{-1.2, -1},
		{0.49999999999999994, 0},
		{-0.49999999999999994, 0},
		{4503599627370497, 4503599627370497},
	} {
		test.That(t, Round(tc.in), test.ShouldEqual, tc.out)
	}
}

func TestAbsInt(t *testing.T) {
	test.That(t, AbsInt(-3), test.ShouldEqual, 3)
	test.That(t, AbsInt(3), test.ShouldEqual, 3)
}
