/**
 * @description
 * Prometheus instrumentation for the reseller-service. One Collector owns
 * every metric; the app and api layers talk to it through the Recorder
 * interface so tests can swap in a no-op.
 *
 * @dependencies
 * - github.com/prometheus/client_golang/prometheus: Metric primitives.
 * - github.com/prometheus/client_golang/prometheus/promhttp: Scrape handler.
 */

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the interface the application layers use to record metrics.
type Recorder interface {
	RecordLedgerOperation(operation string, outcome string)
	RecordWebhookDispatch(eventType string, outcome string)
	RecordWebhookLatency(duration time.Duration)
	RecordHTTPRequest(method string, status int)
}

// Collector is the Prometheus-backed Recorder implementation.
type Collector struct {
	ledgerOps      *prometheus.CounterVec
	webhookTotal   *prometheus.CounterVec
	webhookLatency prometheus.Histogram
	httpRequests   *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ledgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reseller_ledger_operations_total",
			Help: "Ledger operations by type and outcome.",
		}, []string{"operation", "outcome"}),
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reseller_webhook_dispatch_total",
			Help: "Lifecycle webhook dispatch attempts by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		webhookLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reseller_webhook_latency_seconds",
			Help:    "Latency of lifecycle webhook deliveries.",
			Buckets: prometheus.DefBuckets,
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reseller_http_requests_total",
			Help: "HTTP requests by method and status code.",
		}, []string{"method", "status"}),
	}

	reg.MustRegister(
		c.ledgerOps,
		c.webhookTotal,
		c.webhookLatency,
		c.httpRequests,
	)

	return c
}

// RecordLedgerOperation counts one ledger operation.
func (c *Collector) RecordLedgerOperation(operation string, outcome string) {
	c.ledgerOps.WithLabelValues(operation, outcome).Inc()
}

// RecordWebhookDispatch counts one lifecycle webhook attempt.
func (c *Collector) RecordWebhookDispatch(eventType string, outcome string) {
	c.webhookTotal.WithLabelValues(eventType, outcome).Inc()
}

// RecordWebhookLatency observes one webhook delivery duration.
func (c *Collector) RecordWebhookLatency(duration time.Duration) {
	c.webhookLatency.Observe(duration.Seconds())
}

// RecordHTTPRequest counts one served HTTP request.
func (c *Collector) RecordHTTPRequest(method string, status int) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// Handler returns the HTTP handler Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Noop is a Recorder that records nothing; used by tests.
type Noop struct{}

func (Noop) RecordLedgerOperation(operation string, outcome string) {}

func (Noop) RecordWebhookDispatch(eventType string, outcome string) {}

func (Noop) RecordWebhookLatency(duration time.Duration) {}

func (Noop) RecordHTTPRequest(method string, status int) {}
