package actuator

import (
	"errors"
	"fmt"
)

// Code is the acknowledgement a motor controller returns for a write.
type Code int

const (
	CodeOK Code = iota
	CodeTimeout
	CodeInvalidParameter
	CodeCANError
	CodeHALError
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeTimeout:
		return "timeout"
	case CodeInvalidParameter:
		return "invalid_parameter"
	case CodeCANError:
		return "can_error"
	case CodeHALError:
		return "hal_error"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Write operations, used in WriteError and for fault injection.
const (
	OpSet          = "set"
	OpSetReference = "set_reference"
	OpSetPosition  = "set_position"
	OpConfigure    = "configure"
)

// ErrRejected matches every WriteError.
var ErrRejected = errors.New("motor controller rejected write")

// WriteError reports a write the motor controller did not acknowledge.
type WriteError struct {
	Op   string
	Code Code
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

func (e *WriteError) Is(target error) bool {
	return target == ErrRejected
}

// PositionPID holds the gains of the controller's onboard position loop.
type PositionPID struct {
	P, I, D, FF          float64
	OutputMin, OutputMax float64
	ClosedLoopRampRate   float64 // seconds from 0 to full output
	OpenLoopRampRate     float64
}

// Motor is the steering motor controller as seen by a steering module.
// Position and velocity come from the last refreshed status frame; writes
// are non-blocking and return a *WriteError when refused.
type Motor interface {
	// Refresh pulls a new status frame. On error the previous frame is kept.
	Refresh() error
	// Set commands open-loop power in [-1, 1].
	Set(power float64) error
	// SetReference hands a position setpoint (revolutions) to the onboard loop.
	SetReference(position float64) error
	// SetPosition overwrites the integrated encoder position (revolutions).
	SetPosition(position float64) error
	// Position returns the encoder position in revolutions.
	Position() float64
	// Velocity returns the encoder velocity in RPM.
	Velocity() float64
	// ConfigurePositionPID writes the onboard position loop gains.
	ConfigurePositionPID(PositionPID) error
}
