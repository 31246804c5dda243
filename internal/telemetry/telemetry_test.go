package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheus_RecordAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg)
	if err != nil {
		t.Fatalf("NewPrometheus: %v", err)
	}

	p.Record("FrontLeft", BestEncoderPositionDegrees, 12.5)
	p.Record("FrontLeft", BestEncoderPositionDegrees, 13.5)
	p.Count("FrontLeft", EventDriftReanchor)
	p.Count("FrontLeft", EventDriftReanchor)

	if got := testutil.ToFloat64(p.Samples.WithLabelValues("FrontLeft", BestEncoderPositionDegrees)); got != 13.5 {
		t.Errorf("steering_sample = %v, want 13.5", got)
	}
	if got := testutil.ToFloat64(p.Events.WithLabelValues("FrontLeft", EventDriftReanchor)); got != 2 {
		t.Errorf("steering_events_total = %v, want 2", got)
	}
}

func TestPrometheus_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPrometheus(reg); err != nil {
		t.Fatalf("first NewPrometheus: %v", err)
	}
	if _, err := NewPrometheus(reg); err == nil {
		t.Error("expected error registering twice on the same registry")
	}
}

func TestPrometheus_HandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg)
	if err != nil {
		t.Fatalf("NewPrometheus: %v", err)
	}
	p.Record("RearRight", TargetDegrees, 90)
	p.ObserveCycle(3 * time.Millisecond)

	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`steering_sample{module="RearRight",name="TargetDegrees"} 90`,
		"steering_cycle_duration_seconds_count 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestPrometheus_NilIsSafe(t *testing.T) {
	var p *Prometheus
	p.Record("a", "b", 1)
	p.Count("a", "b")
	p.ObserveCycle(time.Millisecond)
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recordingPublisher) Broadcast(level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, level+" "+msg)
}

func TestBroadcast_Decimates(t *testing.T) {
	pub := &recordingPublisher{}
	b := NewBroadcast(pub, 3)

	for i := 0; i < 7; i++ {
		b.Record("FL", OutputPower, float64(i))
	}
	// Records 0, 3 and 6 are published.
	want := []string{"sample FL/OutputPower=0.000", "sample FL/OutputPower=3.000", "sample FL/OutputPower=6.000"}
	if len(pub.msgs) != len(want) {
		t.Fatalf("published %d messages, want %d: %v", len(pub.msgs), len(want), pub.msgs)
	}
	for i := range want {
		if pub.msgs[i] != want[i] {
			t.Errorf("msg[%d] = %q, want %q", i, pub.msgs[i], want[i])
		}
	}
}

func TestBroadcast_EventsAlwaysPublished(t *testing.T) {
	pub := &recordingPublisher{}
	b := NewBroadcast(pub, 100)
	b.Count("FL", EventWriteRejected)
	b.Count("FL", EventWriteRejected)
	if len(pub.msgs) != 2 {
		t.Fatalf("published %d events, want 2", len(pub.msgs))
	}
	if pub.msgs[0] != "event FL: write_rejected" {
		t.Errorf("msg = %q", pub.msgs[0])
	}
}

type countingSink struct {
	records, counts int
}

func (c *countingSink) Record(string, string, float64) { c.records++ }
func (c *countingSink) Count(string, string)           { c.counts++ }

func TestFanout(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	f := Fanout(a, nil, b)
	f.Record("m", "n", 1)
	f.Count("m", "e")
	if a.records != 1 || b.records != 1 || a.counts != 1 || b.counts != 1 {
		t.Errorf("fanout did not reach every sink: a=%+v b=%+v", a, b)
	}
	Noop().Record("m", "n", 1)
	Noop().Count("m", "e")
}

func TestBool(t *testing.T) {
	if Bool(true) != 1 || Bool(false) != 0 {
		t.Error("Bool conversion wrong")
	}
}
