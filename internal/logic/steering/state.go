package steering

import (
	"fmt"

	"github.com/cjeanneret/SteerGo/internal/debug"
)

// Calibration tells whether a module's position estimate can be trusted.
type Calibration int

const (
	Uncalibrated Calibration = iota
	Calibrated
)

func (c Calibration) String() string {
	if c == Calibrated {
		return "calibrated"
	}
	return "uncalibrated"
}

// MarshalText renders the state as a JSON string.
func (c Calibration) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// Health tells whether the absolute encoder is authoritative. A module is
// Degraded when it has no absolute encoder or the encoder failed its startup
// check; it then steers on the motor encoder alone.
type Health int

const (
	Healthy Health = iota
	Degraded
)

func (h Health) String() string {
	if h == Healthy {
		return "healthy"
	}
	return "degraded"
}

// MarshalText renders the state as a JSON string.
func (h Health) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

// Mode selects how the output stage drives the motor.
type Mode int

const (
	// ModeSoftwarePID computes power here and sends it open-loop.
	ModeSoftwarePID Mode = iota
	// ModeOnboardPID sends a position setpoint to the motor controller.
	ModeOnboardPID
)

func (m Mode) String() string {
	if m == ModeOnboardPID {
		return "onboard_pid"
	}
	return "software_pid"
}

// MarshalText renders the mode as a JSON string.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

type capability uint8

const (
	hasMotor capability = 1 << iota
	hasAbsolute
)

// state is the module's position in the Calibration x Health state machine.
// Only the methods below change it.
type state struct {
	calibration Calibration
	health      Health
}

func (s state) String() string {
	return fmt.Sprintf("%s/%s", s.calibration, s.health)
}

// initialState derives the state from the hardware found at construction.
// A healthy absolute encoder is self-referencing, so the module starts
// calibrated.
func initialState(caps capability, absoluteHealthy bool) state {
	if caps&hasAbsolute != 0 && absoluteHealthy {
		return state{calibration: Calibrated, health: Healthy}
	}
	return state{calibration: Uncalibrated, health: Degraded}
}

func (m *Module) setState(next state) {
	if next == m.state {
		return
	}
	debug.State(m.label, m.state.String(), next.String())
	m.state = next
}

// markCalibrated records a successful calibration.
func (m *Module) markCalibrated() {
	m.setState(state{calibration: Calibrated, health: m.state.health})
}

// markHealthy records that the absolute encoder passed an explicit recheck.
func (m *Module) markHealthy() {
	m.setState(state{calibration: Calibrated, health: Healthy})
}
