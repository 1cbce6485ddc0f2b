// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package httpx

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsHTTP holds Prometheus metrics for downstream HTTP calls.
type metricsHTTP struct {
	once sync.Once

	requests *prometheus.CounterVec
	retries  *prometheus.CounterVec
	timeouts *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var httpMetrics metricsHTTP

func (m *metricsHTTP) init() {
	m.once.Do(func() {
		m.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omnintel_http_requests_total", Help: "Downstream HTTP requests by service and outcome",
		}, []string{"service", "outcome"})
		m.retries = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omnintel_http_retries_total", Help: "Downstream HTTP retries attempted",
		}, []string{"service"})
		m.timeouts = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omnintel_http_timeouts_total", Help: "Downstream HTTP timeout errors",
		}, []string{"service"})
		m.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "omnintel_http_request_seconds",
			Help:    "Downstream HTTP request duration",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"service"})

		prometheus.MustRegister(m.requests, m.retries, m.timeouts, m.duration)
	})
}

func recordRequest(service string, ok bool) {
	httpMetrics.init()
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	httpMetrics.requests.WithLabelValues(service, outcome).Inc()
}

func recordRetry(service string)   { httpMetrics.init(); httpMetrics.retries.WithLabelValues(service).Inc() }
func recordTimeout(service string) { httpMetrics.init(); httpMetrics.timeouts.WithLabelValues(service).Inc() }

func observeDuration(service string, d time.Duration) {
	httpMetrics.init()
	httpMetrics.duration.WithLabelValues(service).Observe(d.Seconds())
}
