package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes bounds the size of a config file read by Load.
const MaxConfigFileBytes = 1 << 20

// Hardware types understood by the module builder.
const (
	HardwareSim = "sim"
)

// PIDGains holds the software PID gains. They are per control cycle, not
// per second: I accumulates the scaled error once per cycle and D acts on
// its change between two consecutive cycles.
type PIDGains struct {
	P float64 `yaml:"p"`
	I float64 `yaml:"i"`
	D float64 `yaml:"d"`
}

// OnboardPIDConfig holds the gains written to the motor controller's
// internal position loop.
type OnboardPIDConfig struct {
	P                  float64 `yaml:"p"`
	I                  float64 `yaml:"i"`
	D                  float64 `yaml:"d"`
	FF                 float64 `yaml:"ff"`
	OutputMin          float64 `yaml:"output_min"`
	OutputMax          float64 `yaml:"output_max"`
	ClosedLoopRampRate float64 `yaml:"closed_loop_ramp_rate"` // seconds from 0 to full output
	OpenLoopRampRate   float64 `yaml:"open_loop_ramp_rate"`
}

// Steering holds the tunable parameters shared by every steering module.
// Modules read a copy once per control cycle and never write it.
type Steering struct {
	PowerScaleFactor        float64           `yaml:"power_scale_factor"`
	DegreesPerMotorRotation float64           `yaml:"degrees_per_motor_rotation"`
	UseOnboardPID           *bool             `yaml:"use_onboard_pid"`
	MaxDriftDegrees         float64           `yaml:"max_drift_degrees"`
	NegateOutput            *bool             `yaml:"negate_output"` // PID output sign depends on actuator polarity
	PID                     *PIDGains         `yaml:"pid"`
	OnboardPID              *OnboardPIDConfig `yaml:"onboard_pid"`
}

// ActuatorConfig selects the steering motor implementation.
type ActuatorConfig struct {
	Type         string  `yaml:"type"`           // e.g., "sim"
	FreeSpeedRPM float64 `yaml:"free_speed_rpm"` // sim only: motor speed at full power
}

// EncoderConfig selects the absolute encoder implementation.
// A module without an absolute_encoder section runs on the motor encoder only.
type EncoderConfig struct {
	Type      string  `yaml:"type"`       // e.g., "sim"
	OffsetDeg float64 `yaml:"offset_deg"` // sim only: magnet offset
	Unhealthy bool    `yaml:"unhealthy"`  // sim only: report Unhealthy at startup
}

// ModuleConfig describes one steerable wheel.
type ModuleConfig struct {
	Label           string          `yaml:"label"`
	Actuator        *ActuatorConfig `yaml:"actuator,omitempty"`
	AbsoluteEncoder *EncoderConfig  `yaml:"absolute_encoder,omitempty"`
	IndicatorPin    int             `yaml:"indicator_pin"` // status LED (BCM). 0 = not used.
}

// DefaultsConfig contains generic parameters (cycle timing, logging, etc.).
type DefaultsConfig struct {
	CyclePeriodMs   int  `yaml:"cycle_period_ms"`   // control cycle period
	DriftCheckEvery int  `yaml:"drift_check_every"` // cycles between drift checks (0 = default 50, -1 = never)
	BroadcastEvery  int  `yaml:"broadcast_every"`   // cycles between SSE diagnostic samples
	DebugLevel      int  `yaml:"debug_level"`       // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO        bool `yaml:"mock_gpio"`         // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Steering Steering       `yaml:"steering"`
	Modules  []ModuleConfig `yaml:"modules"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath checks that path names a .yaml file directly inside a
// configs/ directory and does not try to escape it.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	if strings.Contains(filepath.ToSlash(path), "..") {
		return fmt.Errorf("config path %q must not contain '..'", path)
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	data, err := readLimited(path)
	if err != nil {
		return nil, err
	}

	cfg := Config{Steering: baseSteering()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := cfg.Steering.applyDefaults(); err != nil {
		return nil, err
	}

	if len(cfg.Modules) == 0 {
		return nil, fmt.Errorf("at least one module is required")
	}
	seen := make(map[string]bool, len(cfg.Modules))
	for i := range cfg.Modules {
		m := &cfg.Modules[i]
		if m.Label == "" {
			return nil, fmt.Errorf("modules[%d].label is required", i)
		}
		if seen[m.Label] {
			return nil, fmt.Errorf("duplicate module label %q", m.Label)
		}
		seen[m.Label] = true
		if m.Actuator != nil {
			if m.Actuator.Type != HardwareSim {
				return nil, fmt.Errorf("module %s: unsupported actuator type: %q", m.Label, m.Actuator.Type)
			}
			if m.Actuator.FreeSpeedRPM <= 0 {
				m.Actuator.FreeSpeedRPM = 5676 // NEO free speed
			}
		}
		if m.AbsoluteEncoder != nil && m.AbsoluteEncoder.Type != HardwareSim {
			return nil, fmt.Errorf("module %s: unsupported absolute_encoder type: %q", m.Label, m.AbsoluteEncoder.Type)
		}
		if m.IndicatorPin < 0 {
			return nil, fmt.Errorf("module %s: indicator_pin must be >= 0, got %d", m.Label, m.IndicatorPin)
		}
	}

	if cfg.Defaults.CyclePeriodMs <= 0 {
		cfg.Defaults.CyclePeriodMs = 20 // 50 Hz
	}
	switch {
	case cfg.Defaults.DriftCheckEvery == 0:
		cfg.Defaults.DriftCheckEvery = 50 // once a second at 50 Hz
	case cfg.Defaults.DriftCheckEvery < -1:
		return nil, fmt.Errorf("drift_check_every must be >= -1, got %d", cfg.Defaults.DriftCheckEvery)
	}
	if cfg.Defaults.BroadcastEvery <= 0 {
		cfg.Defaults.BroadcastEvery = 25
	}
	if cfg.Defaults.DebugLevel < 0 || cfg.Defaults.DebugLevel > 4 {
		return nil, fmt.Errorf("debug_level must be between 0 and 4, got %d", cfg.Defaults.DebugLevel)
	}

	return &cfg, nil
}

// LoadSteering reads only the steering section of a config file.
// Used for live tuning: module wiring is fixed for the session.
func LoadSteering(path string) (Steering, error) {
	data, err := readLimited(path)
	if err != nil {
		return Steering{}, err
	}
	cfg := Config{Steering: baseSteering()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Steering{}, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.Steering.applyDefaults(); err != nil {
		return Steering{}, err
	}
	return cfg.Steering, nil
}

func readLimited(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", MaxConfigFileBytes)
	}
	return data, nil
}

// DefaultSteering returns the tunables used when the steering section is empty.
func DefaultSteering() Steering {
	s := baseSteering()
	_ = s.applyDefaults()
	return s
}

// baseSteering seeds the scalar tunables before the file is decoded, so a
// key left out keeps its default while an explicit 0 is kept as written.
func baseSteering() Steering {
	return Steering{
		PowerScaleFactor:        5,
		DegreesPerMotorRotation: 28.1503,
		MaxDriftDegrees:         1.0,
	}
}

func (s *Steering) applyDefaults() error {
	if s.PowerScaleFactor < 0 {
		return fmt.Errorf("power_scale_factor must be >= 0, got %.4f", s.PowerScaleFactor)
	}
	if s.DegreesPerMotorRotation <= 0 {
		return fmt.Errorf("degrees_per_motor_rotation must be > 0, got %.4f", s.DegreesPerMotorRotation)
	}
	if s.MaxDriftDegrees < 0 {
		return fmt.Errorf("max_drift_degrees must be >= 0, got %.4f", s.MaxDriftDegrees)
	}
	if s.UseOnboardPID == nil {
		s.UseOnboardPID = boolPtr(true)
	}
	if s.NegateOutput == nil {
		s.NegateOutput = boolPtr(true)
	}
	if s.PID == nil {
		s.PID = &PIDGains{P: 0.2, I: 0, D: 0.005}
	}
	if s.OnboardPID == nil {
		s.OnboardPID = &OnboardPIDConfig{
			P:                  0.5,
			OutputMin:          -1,
			OutputMax:          1,
			ClosedLoopRampRate: 0.02,
			OpenLoopRampRate:   0.05,
		}
	}
	if s.OnboardPID.OutputMin == 0 && s.OnboardPID.OutputMax == 0 {
		s.OnboardPID.OutputMin, s.OnboardPID.OutputMax = -1, 1
	}
	if s.OnboardPID.OutputMin > s.OnboardPID.OutputMax {
		return fmt.Errorf("onboard_pid.output_min (%.2f) must be <= output_max (%.2f)",
			s.OnboardPID.OutputMin, s.OnboardPID.OutputMax)
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }

// OnboardPIDEnabled reports whether the motor controller's position loop is used.
func (s Steering) OnboardPIDEnabled() bool {
	return s.UseOnboardPID == nil || *s.UseOnboardPID
}

// OutputSign returns the sign applied to the software PID output.
func (s Steering) OutputSign() float64 {
	if s.NegateOutput == nil || *s.NegateOutput {
		return -1
	}
	return 1
}

// SoftwareGains returns the software PID gains, falling back to defaults.
func (s Steering) SoftwareGains() PIDGains {
	if s.PID == nil {
		return *DefaultSteering().PID
	}
	return *s.PID
}

// OnboardGains returns the onboard PID parameters, falling back to defaults.
func (s Steering) OnboardGains() OnboardPIDConfig {
	if s.OnboardPID == nil {
		return *DefaultSteering().OnboardPID
	}
	return *s.OnboardPID
}

// CyclePeriod returns the control cycle period.
func (c *Config) CyclePeriod() time.Duration {
	return time.Duration(c.Defaults.CyclePeriodMs) * time.Millisecond
}
