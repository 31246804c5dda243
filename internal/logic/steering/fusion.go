package steering

import "github.com/cjeanneret/SteerGo/internal/logic/geometry"

// BestPosition returns the steering angle in degrees, [-180, 180), from the
// most trustworthy source: the absolute encoder while the module is Healthy,
// otherwise the motor encoder, otherwise 0.
//
// Health is decided at construction (and by RecheckAbsoluteHealth), not on
// every read: an encoder that fails mid-session keeps being trusted.
func (m *Module) BestPosition() float64 {
	if m.caps&hasAbsolute != 0 && m.state.health == Healthy {
		return m.AbsolutePosition()
	}
	if m.caps&hasMotor != 0 {
		// The motor encoder is good for short stretches only; drift builds up
		// until the next re-anchoring.
		return m.RelativePosition()
	}
	return 0
}

// AbsolutePosition returns the absolute encoder angle, or 0 without one.
func (m *Module) AbsolutePosition() float64 {
	if m.caps&hasAbsolute == 0 {
		return 0
	}
	return geometry.WrapDegrees(m.absolute.AbsolutePosition())
}

// RelativePosition returns the motor encoder angle scaled through the
// steering reduction, or 0 without a motor.
func (m *Module) RelativePosition() float64 {
	if m.caps&hasMotor == 0 {
		return 0
	}
	return m.convert.WrappedDegrees(m.motor.Position())
}

// Velocity returns the motor velocity in RPM, or 0 without a motor.
func (m *Module) Velocity() float64 {
	if m.caps&hasMotor == 0 {
		return 0
	}
	return m.motor.Velocity()
}

// IsCalibrated reports whether BestPosition can be trusted.
func (m *Module) IsCalibrated() bool {
	return m.state.calibration == Calibrated
}

// HasActuator reports whether a steering motor was installed at construction.
func (m *Module) HasActuator() bool { return m.caps&hasMotor != 0 }

// HasAbsolute reports whether an absolute encoder was installed at construction.
func (m *Module) HasAbsolute() bool { return m.caps&hasAbsolute != 0 }
