// ABOUTME: Prometheus instrumentation for registry operations and the HTTP façade
// ABOUTME: Components depend on the Recorder interface so metrics stay optional

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vpn"

// Recorder receives operation outcomes. Implementations must be safe for concurrent use.
type Recorder interface {
	// ObserveOperation records one registry operation and its outcome.
	ObserveOperation(op, result string, elapsed time.Duration)
	// ObserveRequest records one HTTP request.
	ObserveRequest(route, method string, status int)
}

// Nop discards everything.
type Nop struct{}

func (Nop) ObserveOperation(string, string, time.Duration) {}
func (Nop) ObserveRequest(string, string, int)             {}

// Prometheus records into its own prometheus.Registry.
type Prometheus struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	requests   *prometheus.CounterVec
}

// NewPrometheus creates a Recorder with a private registry, so tests and
// multiple gateways in one process never collide on registration.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "operations_total",
				Help:      "Count of registry operations by operation and result.",
			},
			[]string{"op", "result"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "operation_duration_seconds",
				Help:      "Latency of registry operations, including store round trips.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"op"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Count of HTTP requests by route, method, and status code.",
			},
			[]string{"route", "method", "code"},
		),
	}
	p.registry.MustRegister(p.operations, p.latency, p.requests)
	return p
}

// ObserveOperation implements Recorder.
func (p *Prometheus) ObserveOperation(op, result string, elapsed time.Duration) {
	p.operations.WithLabelValues(op, result).Inc()
	p.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveRequest implements Recorder.
func (p *Prometheus) ObserveRequest(route, method string, status int) {
	p.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}

// Handler serves the exposition format for this recorder's registry.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}
