package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus exposes steering diagnostics as Prometheus metrics.
type Prometheus struct {
	gatherer prometheus.Gatherer

	Samples *prometheus.GaugeVec
	Events  *prometheus.CounterVec
	Cycles  prometheus.Histogram
}

// NewPrometheus registers the steering metrics against reg, defaulting to
// the global Prometheus registry when nil.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	samples := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "steering_sample",
		Help: "Latest diagnostic sample of a steering module, labeled by module and sample name.",
	}, []string{"module", "name"})
	if err := register(reg, samples, "steering_sample"); err != nil {
		return nil, err
	}

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "steering_events_total",
		Help: "Steering module events (re-anchoring, rejected writes, refresh failures).",
	}, []string{"module", "event"})
	if err := register(reg, events, "steering_events_total"); err != nil {
		return nil, err
	}

	cycles := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "steering_cycle_duration_seconds",
		Help:    "Wall time spent in one control cycle for all modules.",
		Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02, 0.05},
	})
	if err := register(reg, cycles, "steering_cycle_duration_seconds"); err != nil {
		return nil, err
	}

	return &Prometheus{
		gatherer: gatherer,
		Samples:  samples,
		Events:   events,
		Cycles:   cycles,
	}, nil
}

// Record implements Sink.
func (p *Prometheus) Record(module, name string, value float64) {
	if p == nil {
		return
	}
	p.Samples.WithLabelValues(module, name).Set(value)
}

// Count implements Sink.
func (p *Prometheus) Count(module, event string) {
	if p == nil {
		return
	}
	p.Events.WithLabelValues(module, event).Inc()
}

// ObserveCycle implements CycleObserver.
func (p *Prometheus) ObserveCycle(d time.Duration) {
	if p == nil {
		return
	}
	p.Cycles.Observe(d.Seconds())
}

// Handler exposes a ready-to-use /metrics handler.
func (p *Prometheus) Handler() http.Handler {
	gatherer := p.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func register(reg prometheus.Registerer, c prometheus.Collector, name string) error {
	if err := reg.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return fmt.Errorf("collector %s already registered", name)
		}
		return err
	}
	return nil
}
