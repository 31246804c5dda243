package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/cjeanneret/SteerGo/internal/config"
	"github.com/cjeanneret/SteerGo/internal/debug"
	"github.com/cjeanneret/SteerGo/internal/hw/actuator"
	"github.com/cjeanneret/SteerGo/internal/hw/encoder"
	"github.com/cjeanneret/SteerGo/internal/hw/gpio"
	"github.com/cjeanneret/SteerGo/internal/hw/indicator"
	"github.com/cjeanneret/SteerGo/internal/logic/cycle"
	"github.com/cjeanneret/SteerGo/internal/logic/steering"
	"github.com/cjeanneret/SteerGo/internal/telemetry"
	"github.com/cjeanneret/SteerGo/internal/web"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	debugLevel := flag.Int("debug_level", -1, "override debug level (0-4); -1 uses the config value")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if err := applyDebugOverride(cfg, *debugLevel); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", debug.Level())
	debug.Value("Cycle period", cfg.CyclePeriod())

	// Initialize GPIO driver
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	debug.Step(2, "Initializing telemetry")
	broadcaster := web.NewStatusBroadcaster()
	reg := prometheus.NewRegistry()
	prom, err := telemetry.NewPrometheus(reg)
	if err != nil {
		log.Fatalf("init metrics failed: %v", err)
	}
	sink := telemetry.Fanout(prom, telemetry.NewBroadcast(broadcaster, cfg.Defaults.BroadcastEvery))

	debug.Step(3, "Initializing steering modules")
	store := config.NewStore(cfg.Steering)
	debug.PrintStruct("Steering tunables", cfg.Steering)
	units, err := buildUnits(cfg, store, sink, gpioDriver)
	if err != nil {
		log.Fatalf("init modules failed: %v", err)
	}
	runner, err := cycle.New(cycle.Config{
		Period:          cfg.CyclePeriod(),
		DriftCheckEvery: cfg.Defaults.DriftCheckEvery,
		Observer:        prom,
	}, units...)
	if err != nil {
		log.Fatalf("init control cycle failed: %v", err)
	}

	go reloadOnHangup(ctx, store, *cfgPath)

	debug.Section("Running")
	var serverErr chan error
	if port := webPort.port(); port > 0 {
		webAddr := fmt.Sprintf(":%d", port)
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
		srv := web.NewServer(webAddr, broadcaster, runner, prom.Handler())
		serverErr = make(chan error, 1)
		go func() { serverErr <- srv.Run(ctx) }()
	}

	err = runner.Run(ctx)
	if serverErr != nil {
		err = multierr.Append(err, <-serverErr)
	}
	if err != nil {
		log.Fatalf("shutdown: %v", err)
	}
	debug.Info("Stopped")
}

// buildUnits creates one steering module per configured module, with its
// simulated hardware and status LED.
func buildUnits(cfg *config.Config, tun steering.Tunables, sink telemetry.Sink, g gpio.Driver) ([]cycle.Unit, error) {
	dpr := tun.Steering().DegreesPerMotorRotation
	units := make([]cycle.Unit, 0, len(cfg.Modules))
	for _, mc := range cfg.Modules {
		var (
			hw     steering.Hardware
			plants []cycle.Plant
			motor  *actuator.Sim
		)
		if mc.Actuator != nil {
			motor = actuator.NewSim(actuator.SimConfig{Name: mc.Label, FreeSpeedRPM: mc.Actuator.FreeSpeedRPM})
			hw.Motor = motor
			plants = append(plants, motor)
		}
		if mc.AbsoluteEncoder != nil {
			abs := encoder.NewSim(encoder.SimConfig{
				OffsetDeg: mc.AbsoluteEncoder.OffsetDeg,
				Unhealthy: mc.AbsoluteEncoder.Unhealthy,
			})
			if motor != nil {
				abs.Follow(motor, dpr)
			}
			hw.Absolute = abs
		}

		mod := steering.New(steering.Config{
			Label:    mc.Label,
			Tunables: tun,
			Sink:     sink,
		}, hw)
		unit := cycle.Unit{Module: mod, Plants: plants}

		if mc.IndicatorPin > 0 {
			led, err := indicator.New(g, mc.IndicatorPin)
			if err != nil {
				return nil, fmt.Errorf("module %s: indicator on pin %d: %w", mc.Label, mc.IndicatorPin, err)
			}
			unit.Indicator = led
		}
		debug.Info("Module %s: actuator=%v absolute=%v state=%s/%s",
			mc.Label, mod.HasActuator(), mod.HasAbsolute(), mod.Calibration(), mod.Health())
		units = append(units, unit)
	}
	return units, nil
}

// reloadOnHangup re-reads the steering tunables on SIGHUP. Modules pick
// them up on their next cycle.
func reloadOnHangup(ctx context.Context, store *config.Store, path string) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := store.Reload(path); err != nil {
				debug.Errorf("Reload %s: %v (keeping current tunables)", path, err)
				continue
			}
			debug.Info("Reloaded steering tunables from %s", path)
			debug.PrintStruct("Steering tunables", store.Steering())
		}
	}
}

// applyDebugOverride sets the debug level from the CLI. -1 keeps the config value.
func applyDebugOverride(cfg *config.Config, level int) error {
	if level == -1 {
		return nil
	}
	if level < 0 || level > debug.LevelTrace {
		return fmt.Errorf("debug_level must be between 0 and 4, got %d", level)
	}
	cfg.Defaults.DebugLevel = level
	return nil
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
