package cycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/SteerGo/internal/debug"
	"github.com/cjeanneret/SteerGo/internal/hw/indicator"
	"github.com/cjeanneret/SteerGo/internal/logic/steering"
	"github.com/cjeanneret/SteerGo/internal/telemetry"
	"go.uber.org/multierr"
)

var (
	// ErrUnknownModule is returned for a label no unit was registered with.
	ErrUnknownModule = errors.New("unknown module")
	// ErrUnknownCalibration is returned for an unsupported calibration mode.
	ErrUnknownCalibration = errors.New("unknown calibration mode")
)

// Calibration modes accepted by Calibrate.
const (
	CalibrateHere     = "here"
	CalibrateAbsolute = "absolute"
	CalibrateRecheck  = "recheck"
)

// Plant is a simulated mechanism advanced once per cycle.
type Plant interface {
	Step(dt time.Duration)
}

// Indicator shows a module state, e.g. a status LED.
type Indicator interface {
	Show(p indicator.Pattern, tick uint64) error
	Off() error
}

// Unit is one steering module with the devices the runner drives for it.
type Unit struct {
	Module    *steering.Module
	Plants    []Plant   // nil on real hardware
	Indicator Indicator // nil when no LED is wired
}

// Config holds the runner parameters.
type Config struct {
	Period          time.Duration
	DriftCheckEvery int // cycles between drift checks, <= 0 disables them
	Observer        telemetry.CycleObserver
}

type command struct {
	fn   func() error
	done chan error
}

// Runner is the scheduling host: it runs the control cycle of every module
// from a single goroutine. Other goroutines reach the modules only through Do.
type Runner struct {
	cfg     Config
	units   []Unit
	byLabel map[string]*steering.Module
	cmds    chan command
	tick    uint64
}

// New creates a runner for units. Labels must be unique.
func New(cfg Config, units ...Unit) (*Runner, error) {
	if cfg.Period <= 0 {
		cfg.Period = 20 * time.Millisecond
	}
	r := &Runner{
		cfg:     cfg,
		units:   units,
		byLabel: make(map[string]*steering.Module, len(units)),
		cmds:    make(chan command, 16),
	}
	for _, u := range units {
		if u.Module == nil {
			return nil, fmt.Errorf("cycle: unit without module")
		}
		label := u.Module.Label()
		if _, dup := r.byLabel[label]; dup {
			return nil, fmt.Errorf("cycle: duplicate module label %q", label)
		}
		r.byLabel[label] = u.Module
	}
	return r, nil
}

// Labels returns the module labels in registration order.
func (r *Runner) Labels() []string {
	out := make([]string, len(r.units))
	for i, u := range r.units {
		out[i] = u.Module.Label()
	}
	return out
}

// Period returns the cycle period.
func (r *Runner) Period() time.Duration { return r.cfg.Period }

// Do runs fn on the cycle goroutine at the start of the next tick and
// returns its error. It gives up when ctx is done; fn may still run later.
func (r *Runner) Do(ctx context.Context, fn func() error) error {
	c := command{fn: fn, done: make(chan error, 1)}
	select {
	case r.cmds <- c:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-c.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) runCommands() {
	for {
		select {
		case c := <-r.cmds:
			c.done <- c.fn()
		default:
			return
		}
	}
}

// Tick runs one control cycle: queued commands, then for each module
// Refresh, the periodic drift check while stationary, Apply and Periodic,
// then the simulated plants. Errors of all modules are combined; one
// module's failure never skips the others.
func (r *Runner) Tick() error {
	start := time.Now()
	r.runCommands()

	checkDrift := r.cfg.DriftCheckEvery > 0 && r.tick%uint64(r.cfg.DriftCheckEvery) == 0
	var errs error
	for _, u := range r.units {
		m := u.Module
		m.Refresh()
		if checkDrift && m.Velocity() == 0 {
			errs = multierr.Append(errs, m.CalibrateFromAbsolute())
		}
		errs = multierr.Append(errs, m.Apply())
		m.Periodic()

		if u.Indicator != nil {
			p := indicator.PatternFor(m.IsCalibrated(), m.Health() == steering.Healthy)
			if err := u.Indicator.Show(p, r.tick); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("module %s: indicator: %w", m.Label(), err))
			}
		}
	}
	for _, u := range r.units {
		for _, p := range u.Plants {
			p.Step(r.cfg.Period)
		}
	}

	r.tick++
	if r.cfg.Observer != nil {
		r.cfg.Observer.ObserveCycle(time.Since(start))
	}
	return errs
}

// Ticks returns the number of completed cycles.
func (r *Runner) Ticks() uint64 { return r.tick }

// Run ticks every period until ctx is cancelled, then stops the motors and
// switches the indicators off.
func (r *Runner) Run(ctx context.Context) error {
	debug.Info("Control cycle started: %d module(s), period %v", len(r.units), r.cfg.Period)
	ticker := time.NewTicker(r.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return r.stop()
		case <-ticker.C:
			if err := r.Tick(); err != nil {
				debug.Errorf("Cycle %d: %v", r.tick, err)
			}
		}
	}
}

func (r *Runner) stop() error {
	debug.Info("Control cycle stopping after %d cycles", r.tick)
	var errs error
	for _, u := range r.units {
		errs = multierr.Append(errs, u.Module.SetPower(0))
		if u.Indicator != nil {
			errs = multierr.Append(errs, u.Indicator.Off())
		}
	}
	return errs
}

func (r *Runner) module(label string) (*steering.Module, error) {
	m, ok := r.byLabel[label]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModule, label)
	}
	return m, nil
}

// Statuses returns a snapshot of every module, taken on the cycle goroutine.
// If ctx ends first, the snapshot taken later is dropped.
func (r *Runner) Statuses(ctx context.Context) ([]steering.Status, error) {
	res := make(chan []steering.Status, 1)
	err := r.Do(ctx, func() error {
		out := make([]steering.Status, len(r.units))
		for i, u := range r.units {
			out[i] = u.Module.Status()
		}
		res <- out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return <-res, nil
}

// SetTarget sets the target heading of a module.
func (r *Runner) SetTarget(ctx context.Context, label string, deg float64) error {
	m, err := r.module(label)
	if err != nil {
		return err
	}
	return r.Do(ctx, func() error {
		m.SetTargetValue(deg)
		debug.Live("Module %s: target %.2f deg", label, deg)
		return nil
	})
}

// Calibrate runs one of the calibration operations on a module.
func (r *Runner) Calibrate(ctx context.Context, label, mode string) error {
	m, err := r.module(label)
	if err != nil {
		return err
	}
	var fn func() error
	switch mode {
	case CalibrateHere:
		fn = m.CalibrateHere
	case CalibrateAbsolute:
		fn = m.CalibrateFromAbsolute
	case CalibrateRecheck:
		fn = m.RecheckAbsoluteHealth
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCalibration, mode)
	}
	debug.Live("Module %s: calibration %q requested", label, mode)
	return r.Do(ctx, fn)
}
