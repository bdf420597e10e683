// Package metrics exposes request, payment and report counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	payments *prometheus.CounterVec
	reports  prometheus.Counter
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spendtrack_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spendtrack_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spendtrack_payments_total",
			Help: "Payment flow outcomes.",
		}, []string{"outcome"}),
		reports: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spendtrack_reports_generated_total",
			Help: "Expense reports served for download.",
		}),
	}
	reg.MustRegister(c.requests, c.latency, c.payments, c.reports)
	return c
}

func (c *Collector) RecordRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.latency.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordPayment counts one payment step, e.g. "intent", "verified", "rejected", "error".
func (c *Collector) RecordPayment(outcome string) {
	c.payments.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordReport() {
	c.reports.Inc()
}

// Handler serves the Prometheus scrape endpoint.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
