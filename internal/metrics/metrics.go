// Package metrics exposes pipeline counters to Prometheus and tracks
// audit stream health.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crimson-sun/quill/internal/writer"
)

const namespace = "quill"

// Sources are read on every scrape. Nil entries are not exported.
type Sources struct {
	Writer   func() writer.Stats
	Pending  func() int
	Auditor  func() (emitted, filtered uint64)
	Recorder func() (recorded, dropped, failed uint64)
	Rotation func() (rotations, failures uint64)
}

// Metrics owns a private Prometheus registry for one pipeline.
type Metrics struct {
	reg         *prometheus.Registry
	health      *Health
	writeErrors prometheus.Counter
}

// New registers collectors for src.
func New(src Sources, health *Health) *Metrics {
	if health == nil {
		health = NewHealth(time.Now)
	}
	m := &Metrics{
		reg:    prometheus.NewRegistry(),
		health: health,
		writeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_write_errors_total",
			Help:      "Audit sink write, sync and close failures.",
		}),
	}
	m.reg.MustRegister(m.writeErrors)
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "health_degraded",
		Help:        "1 while the audit stream is degraded.",
		ConstLabels: prometheus.Labels{"instance_id": health.instance},
	}, func() float64 {
		if health.Degraded() {
			return 1
		}
		return 0
	}))

	if src.Writer != nil {
		stat := src.Writer
		m.counter("audit_written_total", "Audit lines written to the sink.", func() uint64 { return stat().Written })
		m.counter("audit_dropped_total", "Audit events dropped because the queue was full.", func() uint64 { return stat().Dropped })
		m.counter("audit_duplicates_total", "Identical audit lines suppressed before writing.", func() uint64 { return stat().Duplicates })
		m.gauge("audit_pending_high_water", "Largest observed audit queue length.", func() float64 { return float64(stat().HighWater) })
	}
	if src.Pending != nil {
		pending := src.Pending
		m.gauge("audit_pending", "Audit events queued and not yet written.", func() float64 { return float64(pending()) })
	}
	if src.Auditor != nil {
		stat := src.Auditor
		m.counter("audit_emitted_total", "Audit events accepted by the filter.", func() uint64 { e, _ := stat(); return e })
		m.counter("audit_filtered_total", "Audit events suppressed by the filter.", func() uint64 { _, f := stat(); return f })
	}
	if src.Recorder != nil {
		stat := src.Recorder
		m.counter("profile_recorded_total", "Profile records stored.", func() uint64 { r, _, _ := stat(); return r })
		m.counter("profile_dropped_total", "Profile records dropped under pressure.", func() uint64 { _, d, _ := stat(); return d })
		m.counter("profile_failed_total", "Profile store insert failures.", func() uint64 { _, _, f := stat(); return f })
	}
	if src.Rotation != nil {
		stat := src.Rotation
		m.counter("rotations_total", "Completed audit log rotations.", func() uint64 { r, _ := stat(); return r })
		m.counter("rotation_failures_total", "Failed audit log rotations.", func() uint64 { _, f := stat(); return f })
	}
	return m
}

func (m *Metrics) counter(name, help string, f func() uint64) {
	m.reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(f()) }))
}

func (m *Metrics) gauge(name, help string, f func() float64) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, f))
}

// WriteFailed counts a sink failure and marks health degraded.
func (m *Metrics) WriteFailed(err error) {
	m.writeErrors.Inc()
	m.health.Degrade(err)
}

func (m *Metrics) Health() *Health {
	return m.health
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
