package utils

import "math"

// Clamp limits n to the closed interval [lo, hi].
func Clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// MapRange linearly maps x from [inMin, inMax] onto [outMin, outMax] using integer
// arithmetic, truncating toward zero like the Arduino map() helper.
func MapRange(x, inMin, inMax, outMin, outMax int) int {
	return (x-inMin)*(outMax-outMin)/(inMax-inMin) + outMin
}

// Round rounds half toward positive infinity, so 0.5 becomes 1 and -0.5 becomes 0. The
// fraction is compared directly since x+0.5 can round up to the next integer.
func Round(x float64) int {
	f := math.Floor(x)
	if x-f >= 0.5 {
		f++
	}
	return int(f)
}

// AbsInt returns the absolute value of an int.
func AbsInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
