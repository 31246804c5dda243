package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cjeanneret/SteerGo/internal/logic/cycle"
	"github.com/cjeanneret/SteerGo/internal/logic/steering"
)

// ---------- ValidateTarget ----------

func TestValidateTarget_Valid(t *testing.T) {
	for _, deg := range []float64{0, 90, -180, 179.99, 720, -3600, 3600} {
		if err := ValidateTarget(deg); err != nil {
			t.Errorf("ValidateTarget(%v) = %v, want nil", deg, err)
		}
	}
}

func TestValidateTarget_Invalid(t *testing.T) {
	cases := []struct {
		name string
		deg  float64
	}{
		{"NaN", math.NaN()},
		{"+Inf", math.Inf(1)},
		{"-Inf", math.Inf(-1)},
		{"too_large", 3600.5},
		{"too_small", -4000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateTarget(tc.deg); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

// ---------- Handler helpers ----------

// fakeSteering records commands and returns canned errors.
type fakeSteering struct {
	statuses  []steering.Status
	err       error
	targets   map[string]float64
	calibrate []string
}

func newFakeSteering() *fakeSteering {
	return &fakeSteering{
		statuses: []steering.Status{
			{Label: "FrontLeft", Calibration: steering.Calibrated, Health: steering.Healthy, Mode: steering.ModeOnboardPID},
			{Label: "FrontRight", Calibration: steering.Uncalibrated, Health: steering.Degraded, Mode: steering.ModeOnboardPID},
		},
		targets: make(map[string]float64),
	}
}

func (f *fakeSteering) known(label string) error {
	for _, s := range f.statuses {
		if s.Label == label {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", cycle.ErrUnknownModule, label)
}

func (f *fakeSteering) Statuses(context.Context) ([]steering.Status, error) {
	return f.statuses, f.err
}

func (f *fakeSteering) SetTarget(_ context.Context, label string, deg float64) error {
	if err := f.known(label); err != nil {
		return err
	}
	if f.err != nil {
		return f.err
	}
	f.targets[label] = deg
	return nil
}

func (f *fakeSteering) Calibrate(_ context.Context, label, mode string) error {
	if err := f.known(label); err != nil {
		return err
	}
	if f.err != nil {
		return f.err
	}
	f.calibrate = append(f.calibrate, label+":"+mode)
	return nil
}

func newTestServer(s Steering, metrics http.Handler) (*Server, *StatusBroadcaster) {
	b := NewStatusBroadcaster()
	return NewServer(":0", b, s, metrics), b
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// ---------- GET /modules ----------

func TestHandleModules(t *testing.T) {
	srv, _ := newTestServer(newFakeSteering(), nil)
	w := do(t, srv.Mux(), http.MethodGet, "/modules", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d modules, want 2", len(got))
	}
	if got[0]["label"] != "FrontLeft" || got[0]["calibration"] != "calibrated" || got[0]["mode"] != "onboard_pid" {
		t.Errorf("module 0 = %v", got[0])
	}
	if got[1]["health"] != "degraded" {
		t.Errorf("module 1 health = %v, want degraded", got[1]["health"])
	}
}

func TestHandleModules_CycleNotRunning(t *testing.T) {
	fake := newFakeSteering()
	fake.err = context.DeadlineExceeded
	srv, _ := newTestServer(fake, nil)

	w := do(t, srv.Mux(), http.MethodGet, "/modules", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

// ---------- POST /modules/{label}/target ----------

func TestHandleTarget_Valid(t *testing.T) {
	fake := newFakeSteering()
	srv, _ := newTestServer(fake, nil)

	w := do(t, srv.Mux(), http.MethodPost, "/modules/FrontLeft/target", `{"deg": -135.5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if fake.targets["FrontLeft"] != -135.5 {
		t.Errorf("target = %v, want -135.5", fake.targets["FrontLeft"])
	}
}

func TestHandleTarget_Errors(t *testing.T) {
	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown_module", http.MethodPost, "/modules/Nope/target", `{"deg": 10}`, http.StatusNotFound},
		{"invalid_json", http.MethodPost, "/modules/FrontLeft/target", "not json", http.StatusBadRequest},
		{"unknown_field", http.MethodPost, "/modules/FrontLeft/target", `{"heading": 10}`, http.StatusBadRequest},
		{"out_of_range", http.MethodPost, "/modules/FrontLeft/target", `{"deg": 1e9}`, http.StatusBadRequest},
		{"get_not_allowed", http.MethodGet, "/modules/FrontLeft/target", "", http.StatusMethodNotAllowed},
		{"oversized_body", http.MethodPost, "/modules/FrontLeft/target", strings.Repeat("x", 2<<20), http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newTestServer(newFakeSteering(), nil)
			w := do(t, srv.Mux(), tc.method, tc.path, tc.body)
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}

// ---------- POST /modules/{label}/calibrate ----------

func TestHandleCalibrate_Valid(t *testing.T) {
	fake := newFakeSteering()
	srv, b := newTestServer(fake, nil)
	ch, unsub := b.Subscribe()
	defer unsub()

	w := do(t, srv.Mux(), http.MethodPost, "/modules/FrontRight/calibrate", `{"mode": "here"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if len(fake.calibrate) != 1 || fake.calibrate[0] != "FrontRight:here" {
		t.Errorf("calibrate calls = %v", fake.calibrate)
	}

	select {
	case msg := <-ch:
		if !strings.Contains(msg, "FrontRight") {
			t.Errorf("broadcast = %s, want module label", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no broadcast after calibration")
	}
}

func TestHandleCalibrate_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"bad_mode", fmt.Errorf("%w: %q", cycle.ErrUnknownCalibration, "x"), http.StatusBadRequest},
		{"moving", fmt.Errorf("module FrontLeft: %w", steering.ErrDriftWhileMoving), http.StatusConflict},
		{"unhealthy", fmt.Errorf("module FrontLeft: %w", steering.ErrSensorUnhealthy), http.StatusConflict},
		{"rejected", fmt.Errorf("module FrontLeft: %w", steering.ErrActuatorWriteRejected), http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake := newFakeSteering()
			fake.err = tc.err
			srv, _ := newTestServer(fake, nil)
			w := do(t, srv.Mux(), http.MethodPost, "/modules/FrontLeft/calibrate", `{"mode": "absolute"}`)
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}

// ---------- GET /metrics ----------

func TestHandleMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("steering_sample 1\n"))
	})
	srv, _ := newTestServer(newFakeSteering(), metrics)
	w := do(t, srv.Mux(), http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "steering_sample") {
		t.Errorf("status = %d body = %q", w.Code, w.Body.String())
	}

	bare, _ := newTestServer(newFakeSteering(), nil)
	if w := do(t, bare.Mux(), http.MethodGet, "/metrics", ""); w.Code != http.StatusNotFound {
		t.Errorf("status without metrics = %d, want 404", w.Code)
	}
}

// ---------- GET /status/stream ----------

func TestHandleStatusStream(t *testing.T) {
	srv, b := newTestServer(newFakeSteering(), nil)
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/status/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	// Wait for the subscription before broadcasting.
	for b.Subscribers() == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("client never subscribed")
		case <-time.After(5 * time.Millisecond):
		}
	}
	b.Broadcast(LevelEvent, "FrontLeft: drift_reanchor")

	buf := make([]byte, 0, 512)
	chunk := make([]byte, 256)
	for !bytes.Contains(buf, []byte("drift_reanchor")) {
		n, err := resp.Body.Read(chunk)
		if err != nil {
			t.Fatalf("read stream: %v (got %q)", err, buf)
		}
		buf = append(buf, chunk[:n]...)
	}
	if !bytes.Contains(buf, []byte(": connected")) {
		t.Errorf("stream = %q, want connect comment", buf)
	}
}
