package steering

import (
	"time"

	"github.com/cjeanneret/SteerGo/internal/config"
	"github.com/cjeanneret/SteerGo/internal/logic/geometry"
	"github.com/felixge/pidctrl"
)

// CircularPID is a PID loop on angular error. A plain PID assumes a linear
// error: going from 170° to -170° it would travel -340° instead of +20°. So
// the error is wrapped here first and fed to a PID whose goal is zero error.
//
// Gains are per control cycle: each Compute adds I*error to the integral and
// D acts on the change since the previous Compute.
type CircularPID struct {
	ctrl   *pidctrl.PIDController
	gains  config.PIDGains
	primed bool
}

// perCycle is the step handed to pidctrl so that its per-second terms
// reduce to per-cycle ones.
const perCycle = time.Second

// NewCircularPID creates a loop with the given per-cycle gains.
func NewCircularPID(gains config.PIDGains) *CircularPID {
	return &CircularPID{gains: gains, ctrl: newController(gains)}
}

func newController(g config.PIDGains) *pidctrl.PIDController {
	ctrl := pidctrl.NewPIDController(g.P, g.I, g.D)
	ctrl.SetOutputLimits(-1, 1)
	ctrl.Set(0)
	return ctrl
}

// ScaledError returns the wrapped error target - current scaled by
// powerScale/90 and clamped to [-1, 1]. The input is clamped rather than
// only the output, otherwise the integral would build up far beyond the
// power the motor can ever receive.
func ScaledError(target, current, powerScale float64) float64 {
	return clamp(geometry.AngularError(target, current)/90*powerScale, -1, 1)
}

// Compute returns the motor power in [-1, 1] that drives current towards
// target, using the gains and sign of t.
func (c *CircularPID) Compute(target, current float64, t config.Steering) float64 {
	if g := t.SoftwareGains(); g != c.gains {
		c.gains = g
		c.ctrl.SetPID(g.P, g.I, g.D)
	}

	scaled := ScaledError(target, current, t.PowerScaleFactor)
	if !c.primed {
		// A zero step only records the sample, so the first derivative
		// after New or Reset starts from the current error instead of 0.
		c.ctrl.UpdateDuration(scaled, 0)
		c.primed = true
	}
	out := c.ctrl.UpdateDuration(scaled, perCycle)
	return clamp(t.OutputSign()*out, -1, 1)
}

// Reset clears the accumulated integral and derivative history.
func (c *CircularPID) Reset() {
	c.ctrl = newController(c.gains)
	c.primed = false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
