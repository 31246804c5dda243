package steering

import (
	"fmt"
	"math"

	"github.com/cjeanneret/SteerGo/internal/debug"
	"github.com/cjeanneret/SteerGo/internal/logic/geometry"
	"github.com/cjeanneret/SteerGo/internal/telemetry"
)

// DriftTooHigh reports whether the two encoder readings (degrees) disagree by
// at least maxDelta along the shortest way round.
func DriftTooHigh(absolute, relative, maxDelta float64) bool {
	return math.Abs(geometry.WrapDegrees(absolute-relative)) >= maxDelta
}

// CalibrateFromAbsolute re-anchors the motor encoder on the absolute encoder
// when they disagree by at least max_drift_degrees. It needs a motor and a
// healthy absolute encoder and is a no-op otherwise.
//
// It must only be called while the mechanism is stationary: if the motor is
// moving nothing is changed and ErrDriftWhileMoving is returned. A rejected
// write is reported and left for the next call.
func (m *Module) CalibrateFromAbsolute() error {
	if m.caps&hasMotor == 0 || m.caps&hasAbsolute == 0 || m.state.health != Healthy {
		return nil
	}

	absolute := m.AbsolutePosition()
	relative := m.RelativePosition()
	if !DriftTooHigh(absolute, relative, m.snap.MaxDriftDegrees) {
		return nil
	}
	debug.Drift(m.label, absolute, relative, geometry.WrapDegrees(absolute-relative))

	if v := m.motor.Velocity(); math.Abs(v) > 0 {
		debug.Errorf("Module %s: drift correction must not run while the motor is moving (velocity=%.2f)", m.label, v)
		m.sink.Count(m.label, telemetry.EventDriftWhileMoving)
		return fmt.Errorf("module %s: %w", m.label, ErrDriftWhileMoving)
	}

	debug.Warn("Module %s: motor encoder drift is too high, recalibrating", m.label)

	// Take the motor out of closed-loop control before moving its zero.
	if err := m.SetPower(0); err != nil {
		return err
	}
	if err := m.motor.SetPosition(m.convert.Revolutions(absolute)); err != nil {
		return m.writeRejected("set motor encoder position", err)
	}
	m.sink.Count(m.label, telemetry.EventDriftReanchor)
	return nil
}
