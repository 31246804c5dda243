package indicator

import (
	"github.com/cjeanneret/SteerGo/internal/debug"
	"github.com/cjeanneret/SteerGo/internal/hw/gpio"
)

// Pattern is what the LED shows for a module state.
type Pattern int

const (
	// Off: module has no usable sensor.
	Off Pattern = iota
	// Solid: calibrated on a healthy absolute encoder.
	Solid
	// SlowBlink: calibrated on the motor encoder only (degraded).
	SlowBlink
	// FastBlink: not calibrated, the heading cannot be trusted.
	FastBlink
)

func (p Pattern) String() string {
	switch p {
	case Solid:
		return "solid"
	case SlowBlink:
		return "slow_blink"
	case FastBlink:
		return "fast_blink"
	default:
		return "off"
	}
}

// Half periods of the blink patterns, in control cycles.
const (
	slowHalfPeriod = 25
	fastHalfPeriod = 5
)

// PatternFor picks the pattern for a calibration/health combination.
func PatternFor(calibrated, healthy bool) Pattern {
	switch {
	case calibrated && healthy:
		return Solid
	case calibrated:
		return SlowBlink
	default:
		return FastBlink
	}
}

// LED is a status light wired to one GPIO pin (active HIGH).
// It has no goroutine of its own: the control cycle calls Show every tick
// and blinking is derived from the tick count.
type LED struct {
	gpio gpio.Driver
	pin  int

	level   gpio.Level
	written bool
}

// New configures pin as an output and switches the LED off.
func New(g gpio.Driver, pin int) (*LED, error) {
	if err := g.SetupPin(pin, gpio.Output); err != nil {
		return nil, err
	}
	l := &LED{gpio: g, pin: pin}
	if err := l.write(gpio.Low); err != nil {
		return nil, err
	}
	debug.Verbose("Indicator: LED on pin %d ready", pin)
	return l, nil
}

// Show drives the LED for pattern p at control cycle tick. Only level
// changes reach the pin.
func (l *LED) Show(p Pattern, tick uint64) error {
	return l.write(levelAt(p, tick))
}

// Off switches the LED off.
func (l *LED) Off() error {
	return l.write(gpio.Low)
}

// Pin returns the GPIO pin number.
func (l *LED) Pin() int { return l.pin }

func (l *LED) write(level gpio.Level) error {
	if l.written && level == l.level {
		return nil
	}
	if err := l.gpio.WritePin(l.pin, level); err != nil {
		return err
	}
	l.level, l.written = level, true
	return nil
}

func levelAt(p Pattern, tick uint64) gpio.Level {
	switch p {
	case Solid:
		return gpio.High
	case SlowBlink:
		return gpio.Level((tick/slowHalfPeriod)%2 == 0)
	case FastBlink:
		return gpio.Level((tick/fastHalfPeriod)%2 == 0)
	default:
		return gpio.Low
	}
}
