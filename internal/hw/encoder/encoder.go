package encoder

import "errors"

// Health is the self-reported state of an absolute encoder.
type Health int

const (
	Healthy Health = iota
	Unhealthy
)

func (h Health) String() string {
	if h == Healthy {
		return "healthy"
	}
	return "unhealthy"
}

// ErrNoResponse is returned by Refresh when the encoder did not answer.
var ErrNoResponse = errors.New("absolute encoder did not respond")

// Absolute is a steering angle sensor that keeps its reference across
// power cycles (e.g. a CAN magnetic encoder on the steering shaft).
type Absolute interface {
	// Refresh pulls a new frame. On error the previous frame is kept.
	Refresh() error
	// AbsolutePosition returns the angle in degrees from the last frame.
	AbsolutePosition() float64
	// Health returns the last reported health.
	Health() Health
}
