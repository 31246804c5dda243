package actuator

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestSim_SetPositionRezeroesEncoder(t *testing.T) {
	s := NewSim(SimConfig{Name: "test"})
	s.SetState(2.0, 0)

	if err := s.SetPosition(5.0); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	if got := s.Position(); got != 5.0 {
		t.Errorf("Position() after SetPosition = %v, want 5.0", got)
	}
	if got := s.Rotor(); got != 2.0 {
		t.Errorf("Rotor() = %v, want 2.0 (re-zeroing must not move the rotor)", got)
	}

	if err := s.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := s.Position(); got != 5.0 {
		t.Errorf("Position() after Refresh = %v, want 5.0", got)
	}
}

func TestSim_FrameIsCachedUntilRefresh(t *testing.T) {
	s := NewSim(SimConfig{})
	if err := s.Set(1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	s.Step(100 * time.Millisecond)

	if got := s.Position(); got != 0 {
		t.Errorf("Position() before Refresh = %v, want 0", got)
	}
	if err := s.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := s.Position(); got <= 0 {
		t.Errorf("Position() after Refresh = %v, want > 0", got)
	}
	if got := s.Velocity(); math.Abs(got-5676) > 1e-9 {
		t.Errorf("Velocity() = %v, want 5676", got)
	}
}

func TestSim_FailedRefreshKeepsLastFrame(t *testing.T) {
	s := NewSim(SimConfig{})
	s.SetState(1.5, 0)
	s.FailRefresh(ErrNoFrame)
	s.Slip(10)

	if err := s.Refresh(); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("Refresh error = %v, want ErrNoFrame", err)
	}
	if got := s.Position(); got != 1.5 {
		t.Errorf("Position() = %v, want last cached 1.5", got)
	}
}

func TestSim_RejectIsOneShot(t *testing.T) {
	s := NewSim(SimConfig{})
	s.Reject(OpSetPosition, CodeCANError)

	err := s.SetPosition(3)
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("SetPosition error = %v, want ErrRejected", err)
	}
	var we *WriteError
	if !errors.As(err, &we) || we.Code != CodeCANError || we.Op != OpSetPosition {
		t.Errorf("error = %#v, want WriteError{set_position, can_error}", err)
	}
	if got := s.Position(); got != 0 {
		t.Errorf("rejected write changed position to %v", got)
	}

	if err := s.SetPosition(3); err != nil {
		t.Errorf("second SetPosition: %v", err)
	}
}

func TestSim_StictionHoldsRotor(t *testing.T) {
	s := NewSim(SimConfig{})
	_ = s.Set(0.01)
	s.Step(time.Second)
	if s.Rotor() != 0 {
		t.Errorf("rotor moved to %v under stiction", s.Rotor())
	}
	if err := s.Refresh(); err != nil {
		t.Fatal(err)
	}
	if s.Velocity() != 0 {
		t.Errorf("velocity = %v, want 0", s.Velocity())
	}
}

func TestSim_PositionModeConverges(t *testing.T) {
	s := NewSim(SimConfig{})
	if err := s.ConfigurePositionPID(PositionPID{P: 0.5, OutputMin: -1, OutputMax: 1}); err != nil {
		t.Fatalf("ConfigurePositionPID: %v", err)
	}
	if err := s.SetReference(3); err != nil {
		t.Fatalf("SetReference: %v", err)
	}
	for i := 0; i < 500; i++ {
		s.Step(20 * time.Millisecond)
	}
	// Stiction leaves a small steady-state error: 0.02 / 0.5 = 0.04 rev.
	if got := s.Rotor(); math.Abs(got-3) > 0.05 {
		t.Errorf("Rotor() = %v, want ~3", got)
	}
	if !s.InPositionMode() {
		t.Error("expected position mode")
	}
}

func TestSim_ConfigureRejectsInvertedRange(t *testing.T) {
	s := NewSim(SimConfig{})
	err := s.ConfigurePositionPID(PositionPID{OutputMin: 1, OutputMax: -1})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("error = %v, want ErrRejected", err)
	}
	if s.ConfigureCount() != 0 {
		t.Errorf("ConfigureCount() = %d, want 0", s.ConfigureCount())
	}
}

func TestSim_OpenLoopRamp(t *testing.T) {
	s := NewSim(SimConfig{})
	_ = s.ConfigurePositionPID(PositionPID{OutputMin: -1, OutputMax: 1, OpenLoopRampRate: 1})
	_ = s.Set(1)
	s.Step(100 * time.Millisecond)
	_ = s.Refresh()
	// One second to full output: after 0.1s the applied power is 0.1.
	if got := s.Velocity(); math.Abs(got-0.1*5676) > 1e-6 {
		t.Errorf("Velocity() = %v, want %v", got, 0.1*5676)
	}
}

func TestCode_String(t *testing.T) {
	cases := map[Code]string{
		CodeOK:               "ok",
		CodeTimeout:          "timeout",
		CodeInvalidParameter: "invalid_parameter",
		CodeCANError:         "can_error",
		CodeHALError:         "hal_error",
		Code(42):             "code(42)",
	}
	for c, want := range cases {
		if got := c.String(); got != want {
			t.Errorf("Code(%d).String() = %q, want %q", int(c), got, want)
		}
	}
}
