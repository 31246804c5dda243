package geometry

import "math"

// InputModulus wraps value into the half-open range [min, max).
// For example InputModulus(345, -180, 180) is -15 and
// InputModulus(-340, -180, 180) is 20.
func InputModulus(value, min, max float64) float64 {
	modulus := max - min
	if modulus <= 0 {
		return min
	}
	r := math.Mod(value-min, modulus)
	if r < 0 {
		r += modulus
	}
	// math.Mod of a tiny negative number plus modulus can round up to modulus.
	if r >= modulus {
		r = 0
	}
	return r + min
}

// WrapDegrees returns the signed shortest rotation equivalent to deg, in [-180, 180).
func WrapDegrees(deg float64) float64 {
	return InputModulus(deg, -180, 180)
}

// ShortestTurn returns the rotation from current to target, folded into
// [-90, 90). A steering module can reach any heading within a quarter turn
// because the drive wheel may spin backwards.
func ShortestTurn(target, current float64) float64 {
	return InputModulus(target-current, -90, 90)
}

// AngularError returns the wrapped error target - current in [-180, 180).
func AngularError(target, current float64) float64 {
	return WrapDegrees(target - current)
}
