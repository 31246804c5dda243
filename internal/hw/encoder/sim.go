package encoder

import (
	"github.com/cjeanneret/SteerGo/internal/hw/actuator"
	"github.com/cjeanneret/SteerGo/internal/logic/geometry"
)

// SimConfig describes a simulated absolute encoder.
type SimConfig struct {
	OffsetDeg float64 // reading when the mechanism is at zero
	Unhealthy bool
}

// Sim is a simulated absolute encoder. When following a simulated motor it
// reports the true rotor angle through the gear reduction, so it never drifts.
type Sim struct {
	cfg        SimConfig
	position   float64
	health     Health
	refreshErr error

	motor   *actuator.Sim
	convert geometry.RevolutionConverter

	frame float64
}

// NewSim creates a simulated encoder reading OffsetDeg.
func NewSim(cfg SimConfig) *Sim {
	s := &Sim{cfg: cfg, position: cfg.OffsetDeg}
	if cfg.Unhealthy {
		s.health = Unhealthy
	}
	return s
}

// Follow makes the encoder track the rotor of m through degreesPerRev.
func (s *Sim) Follow(m *actuator.Sim, degreesPerRev float64) {
	s.motor = m
	s.convert = geometry.NewRevolutionConverter(degreesPerRev)
}

// Refresh samples the mechanism into the frame.
func (s *Sim) Refresh() error {
	if s.refreshErr != nil {
		return s.refreshErr
	}
	if s.motor != nil {
		s.position = s.convert.Degrees(s.motor.Rotor()) + s.cfg.OffsetDeg
	}
	s.frame = geometry.WrapDegrees(s.position)
	return nil
}

// AbsolutePosition returns the last sampled angle.
func (s *Sim) AbsolutePosition() float64 { return s.frame }

// Health returns the simulated health.
func (s *Sim) Health() Health { return s.health }

// SetPosition sets the angle sampled by the next Refresh. Ignored while
// following a motor.
func (s *Sim) SetPosition(deg float64) { s.position = deg }

// SetHealth changes the reported health.
func (s *Sim) SetHealth(h Health) { s.health = h }

// FailRefresh makes Refresh return err until called again with nil.
func (s *Sim) FailRefresh(err error) { s.refreshErr = err }
