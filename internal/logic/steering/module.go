package steering

import (
	"fmt"

	"github.com/cjeanneret/SteerGo/internal/config"
	"github.com/cjeanneret/SteerGo/internal/debug"
	"github.com/cjeanneret/SteerGo/internal/hw/actuator"
	"github.com/cjeanneret/SteerGo/internal/hw/encoder"
	"github.com/cjeanneret/SteerGo/internal/logic/geometry"
	"github.com/cjeanneret/SteerGo/internal/telemetry"
)

// Tunables gives read access to the shared steering parameters.
// *config.Store implements it.
type Tunables interface {
	Steering() config.Steering
}

// Hardware holds the devices owned by one module. A nil field means the
// device is not installed.
type Hardware struct {
	Motor    actuator.Motor
	Absolute encoder.Absolute
}

// Config holds the construction parameters of a module.
type Config struct {
	Label    string
	Tunables Tunables
	Sink     telemetry.Sink // nil drops diagnostics
}

// Module steers one swerve wheel to a target heading. It is driven by a
// single control loop: call Refresh once per cycle before any read, then
// CalibrateFromAbsolute (optional, stationary only), Apply and Periodic.
// It is not safe for concurrent use.
type Module struct {
	label    string
	motor    actuator.Motor
	absolute encoder.Absolute
	caps     capability
	tunables Tunables
	sink     telemetry.Sink

	snap    config.Steering
	convert geometry.RevolutionConverter
	state   state
	mode    Mode

	target         float64
	power          float64
	setpoint       float64
	pid            *CircularPID
	onboardApplied *config.OnboardPIDConfig
}

// Status is a snapshot of a module for dashboards.
type Status struct {
	Label       string      `json:"label"`
	Calibration Calibration `json:"calibration"`
	Health      Health      `json:"health"`
	Mode        Mode        `json:"mode"`
	HasActuator bool        `json:"has_actuator"`
	HasAbsolute bool        `json:"has_absolute"`
	TargetDeg   float64     `json:"target_deg"`
	CurrentDeg  float64     `json:"current_deg"`
	AbsoluteDeg float64     `json:"absolute_deg"`
	RelativeDeg float64     `json:"relative_deg"`
	VelocityRPM float64     `json:"velocity_rpm"`
	Power       float64     `json:"power"`
}

// New creates a module. Which devices are present, and whether the absolute
// encoder is healthy, is decided here once; a missing or failing device
// degrades the module instead of failing construction.
func New(cfg Config, hw Hardware) *Module {
	debug.Info("Creating steering module %s", cfg.Label)

	tun := cfg.Tunables
	if tun == nil {
		tun = config.NewStore(config.DefaultSteering())
	}
	sink := cfg.Sink
	if sink == nil {
		sink = telemetry.Noop()
	}
	m := &Module{
		label:    cfg.Label,
		motor:    hw.Motor,
		absolute: hw.Absolute,
		tunables: tun,
		sink:     sink,
	}
	m.takeSnapshot()
	m.mode = m.Mode()
	m.pid = NewCircularPID(m.snap.SoftwareGains())

	if hw.Motor != nil {
		m.caps |= hasMotor
		if err := hw.Motor.Refresh(); err != nil {
			debug.Warn("Module %s: no status frame from motor: %v", m.label, err)
		}
		// A failure here is retried by the first onboard Apply.
		_ = m.configureOnboard()
	}

	absoluteHealthy := false
	if hw.Absolute != nil {
		m.caps |= hasAbsolute
		absoluteHealthy = m.probeAbsolute() == nil
	}
	m.state = initialState(m.caps, absoluteHealthy)
	debug.State(m.label, "new", m.state.String())
	return m
}

// probeAbsolute refreshes the absolute encoder once and checks its health.
func (m *Module) probeAbsolute() error {
	if err := m.absolute.Refresh(); err != nil {
		debug.Errorf("Module %s: absolute encoder unavailable, using motor encoder: %v", m.label, err)
		return fmt.Errorf("module %s: %w: %w", m.label, ErrSensorUnavailable, err)
	}
	if m.absolute.Health() == encoder.Unhealthy {
		debug.Errorf("Module %s: absolute encoder unhealthy, using motor encoder", m.label)
		return fmt.Errorf("module %s: %w", m.label, ErrSensorUnhealthy)
	}
	return nil
}

func (m *Module) takeSnapshot() {
	m.snap = m.tunables.Steering()
	m.convert = geometry.NewRevolutionConverter(m.snap.DegreesPerMotorRotation)
}

// Label returns the module's identity.
func (m *Module) Label() string { return m.label }

// CurrentValue returns the current heading in degrees.
func (m *Module) CurrentValue() float64 { return m.BestPosition() }

// TargetValue returns the target heading in degrees.
func (m *Module) TargetValue() float64 { return m.target }

// SetTargetValue sets the target heading in degrees. The value is stored as
// given; wrapping happens when the error is computed.
func (m *Module) SetTargetValue(deg float64) { m.target = deg }

// Refresh pulls new sensor frames and takes this cycle's tunables snapshot.
// A device that does not answer keeps its last frame.
func (m *Module) Refresh() {
	m.takeSnapshot()
	if mode := m.Mode(); mode != m.mode {
		debug.Live("Module %s: output mode %s -> %s", m.label, m.mode, mode)
		m.mode = mode
		m.pid.Reset()
	}

	if m.caps&hasMotor != 0 {
		if err := m.motor.Refresh(); err != nil {
			debug.Verbose("Module %s: motor frame refresh failed, keeping last frame: %v", m.label, err)
			m.sink.Count(m.label, telemetry.EventRefreshFailed)
		}
	}
	if m.caps&hasAbsolute != 0 {
		if err := m.absolute.Refresh(); err != nil {
			debug.Verbose("Module %s: absolute frame refresh failed, keeping last frame: %v", m.label, err)
			m.sink.Count(m.label, telemetry.EventRefreshFailed)
		}
	}
}

// CalibrateHere declares the current wheel direction as 0 degrees by zeroing
// the motor encoder. If the motor refuses the write the module stays as it was.
func (m *Module) CalibrateHere() error {
	if m.caps&hasMotor != 0 {
		if err := m.motor.SetPosition(0); err != nil {
			return m.writeRejected("zero motor encoder", err)
		}
	}
	m.pid.Reset()
	m.markCalibrated()
	m.sink.Count(m.label, telemetry.EventCalibrated)
	debug.Info("Module %s: calibrated here", m.label)
	return nil
}

// RecheckAbsoluteHealth probes the absolute encoder again. A module that was
// Degraded becomes Healthy and Calibrated if the encoder now answers and
// reports healthy; otherwise nothing changes.
func (m *Module) RecheckAbsoluteHealth() error {
	if m.caps&hasAbsolute == 0 {
		return fmt.Errorf("module %s: no absolute encoder installed: %w", m.label, ErrSensorUnavailable)
	}
	if err := m.probeAbsolute(); err != nil {
		return err
	}
	if m.state.health != Healthy {
		m.pid.Reset()
	}
	m.markHealthy()
	return nil
}

// Periodic records this cycle's diagnostics.
func (m *Module) Periodic() {
	best := m.BestPosition()
	m.sink.Record(m.label, telemetry.BestEncoderPositionDegrees, best)
	m.sink.Record(m.label, telemetry.TargetDegrees, m.target)
	m.sink.Record(m.label, telemetry.OutputPower, m.power)
	m.sink.Record(m.label, telemetry.Calibrated, telemetry.Bool(m.IsCalibrated()))
	m.sink.Record(m.label, telemetry.Degraded, telemetry.Bool(m.state.health == Degraded))
	if m.caps&hasAbsolute != 0 {
		m.sink.Record(m.label, telemetry.AbsoluteEncoderPositionDegrees, m.AbsolutePosition())
	}
	if m.caps&hasMotor != 0 {
		m.sink.Record(m.label, telemetry.MotorEncoderPositionDegrees, m.RelativePosition())
	}
	debug.Trace("Module %s: best=%.2f target=%.2f power=%.3f", m.label, best, m.target, m.power)
}

// Calibration returns the calibration state.
func (m *Module) Calibration() Calibration { return m.state.calibration }

// Health returns the health state.
func (m *Module) Health() Health { return m.state.health }

// Setpoint returns the last onboard position setpoint in motor revolutions.
func (m *Module) Setpoint() float64 { return m.setpoint }

// Status returns a snapshot for dashboards.
func (m *Module) Status() Status {
	return Status{
		Label:       m.label,
		Calibration: m.state.calibration,
		Health:      m.state.health,
		Mode:        m.Mode(),
		HasActuator: m.HasActuator(),
		HasAbsolute: m.HasAbsolute(),
		TargetDeg:   m.target,
		CurrentDeg:  m.BestPosition(),
		AbsoluteDeg: m.AbsolutePosition(),
		RelativeDeg: m.RelativePosition(),
		VelocityRPM: m.Velocity(),
		Power:       m.power,
	}
}
