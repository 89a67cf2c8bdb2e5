package carepulse

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "carepulse"

// Request outcomes recorded in the requests counter.
const (
	outcomeSuccess        = "success"
	outcomeServerError    = "server_error"
	outcomeNetworkFailure = "network_failure"
)

// clientMetrics holds the Prometheus collectors of a [Client]. It also
// receives cache events as a querycache.Metrics.
type clientMetrics struct {
	cacheEvents *prometheus.CounterVec
	requests    *prometheus.CounterVec
	retries     *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

func newClientMetrics(reg prometheus.Registerer) (*clientMetrics, error) {
	m := &clientMetrics{
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "events_total",
			Help:      "Query cache events by type (hit, miss, shared, evicted).",
		}, []string{"event"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "API requests by resource and outcome.",
		}, []string{"resource", "outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "api",
			Name:      "retries_total",
			Help:      "API requests retried after a failure, by resource.",
		}, []string{"resource"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "API request latency by resource.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"resource"}),
	}

	for _, c := range []prometheus.Collector{m.cacheEvents, m.requests, m.retries, m.latency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *clientMetrics) Hit()     { m.cacheEvents.WithLabelValues("hit").Inc() }
func (m *clientMetrics) Miss()    { m.cacheEvents.WithLabelValues("miss").Inc() }
func (m *clientMetrics) Shared()  { m.cacheEvents.WithLabelValues("shared").Inc() }
func (m *clientMetrics) Evicted() { m.cacheEvents.WithLabelValues("evicted").Inc() }

func (m *clientMetrics) observeRequest(resource, outcome string, latency time.Duration) {
	m.requests.WithLabelValues(resource, outcome).Inc()
	m.latency.WithLabelValues(resource).Observe(latency.Seconds())
}

func (m *clientMetrics) retry(resource string) {
	m.retries.WithLabelValues(resource).Inc()
}
