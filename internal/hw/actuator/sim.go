package actuator

import (
	"errors"
	"math"
	"time"

	"github.com/cjeanneret/SteerGo/internal/debug"
)

// SimConfig holds the physical parameters of a simulated steering motor.
type SimConfig struct {
	Name         string
	FreeSpeedRPM float64 // speed at full power. 0 defaults to 5676.
	Stiction     float64 // applied power below this does not move the rotor. 0 defaults to 0.02.
}

type simMode int

const (
	modeOpenLoop simMode = iota
	modePosition
)

type frame struct {
	position float64
	velocity float64
}

// Sim is a first-order simulated motor controller with an integrated
// encoder. The rotor's true position and the encoder reading are kept apart
// so encoder slip (drift) can be injected. It is not safe for concurrent use;
// the control cycle owns it.
type Sim struct {
	cfg SimConfig

	rotor    float64 // true rotor revolutions
	offset   float64 // encoder reading = rotor + offset
	velocity float64 // RPM
	applied  float64 // ramped output actually driving the rotor

	mode      simMode
	power     float64
	reference float64
	pid       PositionPID

	frame      frame
	refreshErr error
	reject     map[string]Code
	configured int
}

// NewSim creates a simulated motor at rest with the encoder reading zero.
func NewSim(cfg SimConfig) *Sim {
	if cfg.FreeSpeedRPM <= 0 {
		cfg.FreeSpeedRPM = 5676
	}
	if cfg.Stiction <= 0 {
		cfg.Stiction = 0.02
	}
	return &Sim{
		cfg:    cfg,
		reject: make(map[string]Code),
		pid:    PositionPID{OutputMin: -1, OutputMax: 1},
	}
}

// Refresh copies the live state into the status frame.
func (s *Sim) Refresh() error {
	if s.refreshErr != nil {
		return s.refreshErr
	}
	s.frame = frame{position: s.rotor + s.offset, velocity: s.velocity}
	return nil
}

func (s *Sim) rejected(op string) error {
	if code, ok := s.reject[op]; ok {
		delete(s.reject, op)
		debug.Trace("sim motor %s: rejecting %s (%s)", s.cfg.Name, op, code)
		return &WriteError{Op: op, Code: code}
	}
	return nil
}

// Set commands open-loop power.
func (s *Sim) Set(power float64) error {
	if err := s.rejected(OpSet); err != nil {
		return err
	}
	s.mode = modeOpenLoop
	s.power = clamp(power, -1, 1)
	return nil
}

// SetReference switches to position control towards position.
func (s *Sim) SetReference(position float64) error {
	if err := s.rejected(OpSetReference); err != nil {
		return err
	}
	s.mode = modePosition
	s.reference = position
	return nil
}

// SetPosition re-zeroes the encoder so it reads position. The change is
// visible in the current frame.
func (s *Sim) SetPosition(position float64) error {
	if err := s.rejected(OpSetPosition); err != nil {
		return err
	}
	s.offset = position - s.rotor
	s.frame.position = position
	return nil
}

// Position returns the encoder position from the last frame.
func (s *Sim) Position() float64 { return s.frame.position }

// Velocity returns the encoder velocity from the last frame.
func (s *Sim) Velocity() float64 { return s.frame.velocity }

// ConfigurePositionPID stores the onboard loop gains.
func (s *Sim) ConfigurePositionPID(pid PositionPID) error {
	if err := s.rejected(OpConfigure); err != nil {
		return err
	}
	if pid.OutputMin > pid.OutputMax {
		return &WriteError{Op: OpConfigure, Code: CodeInvalidParameter}
	}
	s.pid = pid
	s.configured++
	return nil
}

// Step advances the simulation by dt. In position mode only the
// proportional and feed-forward terms of the onboard loop are modelled.
func (s *Sim) Step(dt time.Duration) {
	sec := dt.Seconds()
	if sec <= 0 {
		return
	}

	cmd, ramp := s.power, s.pid.OpenLoopRampRate
	if s.mode == modePosition {
		errRevs := s.reference - (s.rotor + s.offset)
		cmd = clamp(s.pid.P*errRevs+s.pid.FF*s.reference, s.pid.OutputMin, s.pid.OutputMax)
		ramp = s.pid.ClosedLoopRampRate
	}

	if ramp > 0 {
		maxDelta := sec / ramp
		s.applied += clamp(cmd-s.applied, -maxDelta, maxDelta)
	} else {
		s.applied = cmd
	}

	if math.Abs(s.applied) < s.cfg.Stiction {
		s.velocity = 0
		return
	}
	s.velocity = s.applied * s.cfg.FreeSpeedRPM
	s.rotor += s.velocity / 60 * sec
}

// --- test and simulation helpers ---

// SetState places the rotor so the encoder reads position, spinning at
// velocity RPM, and refreshes the frame.
func (s *Sim) SetState(position, velocity float64) {
	s.rotor = position - s.offset
	s.velocity = velocity
	s.frame = frame{position: position, velocity: velocity}
}

// Slip shifts the encoder reading by revs without moving the rotor,
// the way a motor encoder drifts away from the absolute encoder.
func (s *Sim) Slip(revs float64) {
	s.offset += revs
}

// Rotor returns the true rotor position in revolutions.
func (s *Sim) Rotor() float64 { return s.rotor }

// Power returns the last open-loop power command.
func (s *Sim) Power() float64 { return s.power }

// Reference returns the last position setpoint.
func (s *Sim) Reference() float64 { return s.reference }

// InPositionMode reports whether the last command was a position setpoint.
func (s *Sim) InPositionMode() bool { return s.mode == modePosition }

// PID returns the onboard loop gains last written.
func (s *Sim) PID() PositionPID { return s.pid }

// ConfigureCount returns how many times the onboard loop was configured.
func (s *Sim) ConfigureCount() int { return s.configured }

// Reject makes the next write of op fail with code.
func (s *Sim) Reject(op string, code Code) {
	s.reject[op] = code
}

// FailRefresh makes Refresh return err until called again with nil.
func (s *Sim) FailRefresh(err error) {
	s.refreshErr = err
}

// ErrNoFrame is returned by a simulated bus that stopped answering.
var ErrNoFrame = errors.New("no status frame received")

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
