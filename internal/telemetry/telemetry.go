package telemetry

import "time"

// Diagnostic sample names recorded by every steering module.
const (
	BestEncoderPositionDegrees     = "BestEncoderPositionDegrees"
	AbsoluteEncoderPositionDegrees = "AbsoluteEncoderPositionDegrees"
	MotorEncoderPositionDegrees    = "MotorEncoderPositionDegrees"
	TargetDegrees                  = "TargetDegrees"
	OutputPower                    = "OutputPower"
	Calibrated                     = "Calibrated"
	Degraded                       = "Degraded"
)

// Event names counted by Count.
const (
	EventDriftReanchor    = "drift_reanchor"
	EventDriftWhileMoving = "drift_while_moving"
	EventWriteRejected    = "write_rejected"
	EventRefreshFailed    = "refresh_failed"
	EventCalibrated       = "calibrated"
)

// Sink accepts diagnostics once per cycle. Implementations must not block
// the control cycle.
type Sink interface {
	// Record stores the latest value of a named sample for a module.
	Record(module, name string, value float64)
	// Count increments a named event counter for a module.
	Count(module, event string)
}

// CycleObserver receives the duration of each control cycle.
type CycleObserver interface {
	ObserveCycle(d time.Duration)
}

// Noop returns a sink that drops everything.
func Noop() Sink { return noop{} }

type noop struct{}

func (noop) Record(string, string, float64) {}
func (noop) Count(string, string)           {}

// Fanout sends every sample to all sinks.
func Fanout(sinks ...Sink) Sink {
	out := make(fanout, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type fanout []Sink

func (f fanout) Record(module, name string, value float64) {
	for _, s := range f {
		s.Record(module, name, value)
	}
}

func (f fanout) Count(module, event string) {
	for _, s := range f {
		s.Count(module, event)
	}
}

// Bool converts a flag to a 0/1 sample.
func Bool(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
