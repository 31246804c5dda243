package gpio

import "testing"

func TestNewDriver_Mock(t *testing.T) {
	d, err := NewDriver(true)
	if err != nil {
		t.Fatalf("NewDriver(true): %v", err)
	}
	if _, ok := d.(*MockDriver); !ok {
		t.Fatalf("NewDriver(true) = %T, want *MockDriver", d)
	}
}

func TestMockDriver_WriteRead(t *testing.T) {
	m := NewMockDriver()
	if err := m.SetupPin(22, Output); err != nil {
		t.Fatal(err)
	}
	if mode, ok := m.Mode(22); !ok || mode != Output {
		t.Errorf("Mode(22) = %v, %v", mode, ok)
	}
	if _, ok := m.Mode(23); ok {
		t.Error("Mode(23) reported set up")
	}

	if err := m.WritePin(22, High); err != nil {
		t.Fatal(err)
	}
	if lvl, _ := m.ReadPin(22); lvl != High {
		t.Errorf("ReadPin(22) = %v, want High", lvl)
	}
}

func TestMockDriver_CloseDrivesLow(t *testing.T) {
	m := NewMockDriver()
	m.WritePin(5, High)
	m.WritePin(6, High)
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	for _, pin := range []int{5, 6} {
		if lvl, _ := m.ReadPin(pin); lvl != Low {
			t.Errorf("pin %d = %v after Close, want Low", pin, lvl)
		}
	}
}
