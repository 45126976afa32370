// Package metrics exposes Prometheus collectors for cache traffic.
//
// A Recorder owns a private registry, so tests and multiple apps in one
// process never collide on the global default registerer. Scraping goes
// through Handler, which the server mounts under the /-/ diagnostics prefix.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "anycache"

// Direction labels for byte counters.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Recorder records per-request outcomes, latency and transferred bytes.
type Recorder struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	bytes    *prometheus.CounterVec
}

// New builds a Recorder with Go runtime and process collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Cache requests by namespace, method and outcome.",
		}, []string{"namespace", "method", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time spent serving cache requests, including body streaming.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		}, []string{"namespace", "method"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Payload bytes received (in) and served (out).",
		}, []string{"namespace", "direction"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.requests,
		r.duration,
		r.bytes,
	)
	return r
}

// Observe records one finished request. A nil Recorder is a no-op.
func (r *Recorder) Observe(ns, method, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(ns, method, outcome).Inc()
	r.duration.WithLabelValues(ns, method).Observe(elapsed.Seconds())
}

// AddBytes adds n payload bytes for the namespace and direction.
func (r *Recorder) AddBytes(ns, direction string, n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.bytes.WithLabelValues(ns, direction).Add(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
