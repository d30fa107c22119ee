// Package metrics records agent activity.
//
// Collector is implemented by Nop, which discards everything, and by
// Prometheus, which exports counters for scraping.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector receives agent measurements.
type Collector interface {
	// RecordInvocation counts one invocation by outcome and observes its
	// latency.
	RecordInvocation(outcome string, elapsed time.Duration)
	// RecordError counts one error by class (transient, integrity, fatal).
	RecordError(class string)
	// SetDeadline exports the current shared deadline.
	SetDeadline(deadline int64)
	// RecordNotify counts liveness posts by result.
	RecordNotify(ok bool)
}

// Nop discards all metrics.
type Nop struct{}

var _ Collector = Nop{}

func (Nop) RecordInvocation(string, time.Duration) {}
func (Nop) RecordError(string)                    {}
func (Nop) SetDeadline(int64)                     {}
func (Nop) RecordNotify(bool)                     {}

// Prometheus is a Collector backed by client_golang.
type Prometheus struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	invocations *prometheus.CounterVec
	latency     prometheus.Histogram
	errors      *prometheus.CounterVec
	deadline    prometheus.Gauge
	notify      *prometheus.CounterVec
}

var _ Collector = (*Prometheus)(nil)

// NewPrometheus creates a Prometheus collector. A nil registerer selects
// prometheus.DefaultRegisterer; an empty namespace selects "txtclock".
func NewPrometheus(reg prometheus.Registerer, namespace string) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "txtclock"
	}
	return &Prometheus{reg: reg, namespace: namespace}
}

func (p *Prometheus) ensureRegistered() {
	p.once.Do(func() {
		p.invocations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "agent",
			Name:      "invocations_total",
			Help:      "Invocations by outcome (created, advanced, pending, malformed, ...).",
		}, []string{"outcome"})
		p.latency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "agent",
			Name:      "invocation_seconds",
			Help:      "Wall time of one invocation.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
		})
		p.errors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "agent",
			Name:      "errors_total",
			Help:      "Errors by class.",
		}, []string{"class"})
		p.deadline = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "record",
			Name:      "deadline_seconds",
			Help:      "Deadline held by the local snapshot, as a Unix timestamp.",
		})
		p.notify = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "notifier",
			Name:      "posts_total",
			Help:      "Liveness posts by result.",
		}, []string{"result"})

		p.reg.MustRegister(p.invocations, p.latency, p.errors, p.deadline, p.notify)
	})
}

// RecordInvocation implements Collector.
func (p *Prometheus) RecordInvocation(outcome string, elapsed time.Duration) {
	p.ensureRegistered()
	p.invocations.WithLabelValues(outcome).Inc()
	p.latency.Observe(elapsed.Seconds())
}

// RecordError implements Collector.
func (p *Prometheus) RecordError(class string) {
	p.ensureRegistered()
	p.errors.WithLabelValues(class).Inc()
}

// SetDeadline implements Collector.
func (p *Prometheus) SetDeadline(deadline int64) {
	p.ensureRegistered()
	p.deadline.Set(float64(deadline))
}

// RecordNotify implements Collector.
func (p *Prometheus) RecordNotify(ok bool) {
	p.ensureRegistered()
	result := "failure"
	if ok {
		result = "success"
	}
	p.notify.WithLabelValues(result).Inc()
}
