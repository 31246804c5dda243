package geometry

// RevolutionConverter converts between steering angle and motor encoder
// revolutions for a fixed gear reduction.
type RevolutionConverter struct {
	degreesPerRev float64
}

// NewRevolutionConverter creates a converter. degreesPerRev is how far the
// wheel turns for one motor revolution.
func NewRevolutionConverter(degreesPerRev float64) RevolutionConverter {
	return RevolutionConverter{degreesPerRev: degreesPerRev}
}

// DegreesPerRev returns the configured ratio.
func (c RevolutionConverter) DegreesPerRev() float64 {
	return c.degreesPerRev
}

// Degrees converts motor revolutions to an unwrapped wheel angle.
func (c RevolutionConverter) Degrees(revs float64) float64 {
	return revs * c.degreesPerRev
}

// WrappedDegrees converts motor revolutions to a wheel heading in [-180, 180).
func (c RevolutionConverter) WrappedDegrees(revs float64) float64 {
	return WrapDegrees(c.Degrees(revs))
}

// Revolutions converts a wheel angle to motor revolutions.
// A zero ratio yields zero rather than an infinite setpoint.
func (c RevolutionConverter) Revolutions(deg float64) float64 {
	if c.degreesPerRev == 0 {
		return 0
	}
	return deg / c.degreesPerRev
}
