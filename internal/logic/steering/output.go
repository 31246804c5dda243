package steering

import (
	"fmt"

	"github.com/cjeanneret/SteerGo/internal/debug"
	"github.com/cjeanneret/SteerGo/internal/hw/actuator"
	"github.com/cjeanneret/SteerGo/internal/logic/geometry"
	"github.com/cjeanneret/SteerGo/internal/telemetry"
)

// Mode returns the output strategy selected by the current tunables.
func (m *Module) Mode() Mode {
	if m.snap.OnboardPIDEnabled() {
		return ModeOnboardPID
	}
	return ModeSoftwarePID
}

// Apply drives the motor towards the target heading with the selected
// strategy. A rejected write skips this cycle's command and is returned;
// the next cycle tries again.
func (m *Module) Apply() error {
	if m.caps&hasMotor == 0 {
		return nil
	}
	if m.Mode() == ModeOnboardPID {
		return m.applyOnboard()
	}
	return m.SetPower(m.ComputeOutput())
}

// ComputeOutput returns the software PID power for the current target.
func (m *Module) ComputeOutput() float64 {
	return m.pid.Compute(m.target, m.BestPosition(), m.snap)
}

// ResetPID clears the software PID state. Call after a mode change or a
// large jump of the target.
func (m *Module) ResetPID() {
	m.pid.Reset()
}

// SetPower sends open-loop power, clamped to [-1, 1].
func (m *Module) SetPower(power float64) error {
	if m.caps&hasMotor == 0 {
		return nil
	}
	power = clamp(power, -1, 1)
	if err := m.motor.Set(power); err != nil {
		return m.writeRejected("set power", err)
	}
	m.power = power
	return nil
}

// applyOnboard moves the onboard position loop setpoint by the shortest turn
// to the target. The turn is measured on the best encoder, which avoids motor
// encoder drift, and applied relative to the motor encoder's own position.
// Unless the wheel spins fast both frames are close enough in time.
func (m *Module) applyOnboard() error {
	if m.onboardApplied == nil || *m.onboardApplied != m.snap.OnboardGains() {
		if err := m.configureOnboard(); err != nil {
			return err
		}
	}

	change := geometry.ShortestTurn(m.target, m.BestPosition())
	setpoint := m.motor.Position() + m.convert.Revolutions(change)
	if err := m.motor.SetReference(setpoint); err != nil {
		return m.writeRejected("set onboard setpoint", err)
	}
	m.setpoint = setpoint
	debug.Trace("Module %s: onboard setpoint %.4f rev (turn %.2f deg)", m.label, setpoint, change)
	return nil
}

// configureOnboard writes the onboard position loop gains from the snapshot.
func (m *Module) configureOnboard() error {
	g := m.snap.OnboardGains()
	err := m.motor.ConfigurePositionPID(actuator.PositionPID{
		P:                  g.P,
		I:                  g.I,
		D:                  g.D,
		FF:                 g.FF,
		OutputMin:          g.OutputMin,
		OutputMax:          g.OutputMax,
		ClosedLoopRampRate: g.ClosedLoopRampRate,
		OpenLoopRampRate:   g.OpenLoopRampRate,
	})
	if err != nil {
		return m.writeRejected("configure onboard PID", err)
	}
	applied := g
	m.onboardApplied = &applied
	debug.PrintStruct(fmt.Sprintf("Module %s onboard PID", m.label), g)
	return nil
}

// writeRejected logs and counts a refused write and wraps it for the caller.
func (m *Module) writeRejected(what string, err error) error {
	debug.Errorf("Module %s: %s failed: %v", m.label, what, err)
	m.sink.Count(m.label, telemetry.EventWriteRejected)
	return fmt.Errorf("module %s: %s: %w: %w", m.label, what, ErrActuatorWriteRejected, err)
}
