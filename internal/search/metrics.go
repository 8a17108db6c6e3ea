package search

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricRequests = "search_index_requests_total"
	MetricErrors   = "search_index_errors_total"
	MetricUpserts  = "search_index_upserts_total"
	MetricLatency  = "search_index_latency_seconds"
)

// Metrics contains Prometheus metrics for the search index client.
// All operations are thread-safe.
type Metrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	upserts  prometheus.Counter
	latency  prometheus.Histogram
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register
// them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRequests,
			Help: "Total number of successful search index requests",
		}, []string{"method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricErrors,
			Help: "Total number of failed search index request attempts",
		}, []string{"method"}),
		upserts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricUpserts,
			Help: "Total number of documents pushed to the search index",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricLatency,
			Help:    "Histogram of search index request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncRequests increments the successful request counter for a method.
func (m *Metrics) IncRequests(method string) {
	m.requests.WithLabelValues(method).Inc()
}

// IncErrors increments the failed attempt counter for a method.
func (m *Metrics) IncErrors(method string) {
	m.errors.WithLabelValues(method).Inc()
}

// AddUpserts adds n to the pushed-document counter.
func (m *Metrics) AddUpserts(n int) {
	m.upserts.Add(float64(n))
}

// ObserveLatency records a request latency sample.
func (m *Metrics) ObserveLatency(seconds float64) {
	m.latency.Observe(seconds)
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.requests,
		m.errors,
		m.upserts,
		m.latency,
	}
}
