// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package runtimehost

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type metricsHost struct {
	once sync.Once

	handled    *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	semWait    prometheus.Histogram
	saturation prometheus.Counter
	reinjected *prometheus.CounterVec
}

var hostMetrics metricsHost

func (m *metricsHost) init() {
	m.once.Do(func() {
		m.handled = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omnintel_host_handled_total", Help: "Handler invocations, by handler and outcome",
		}, []string{"handler", "outcome"})
		m.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "omnintel_host_handle_duration_seconds",
			Help:    "Handler invocation latency, by handler",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"handler"})
		m.semWait = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "omnintel_host_in_flight_wait_seconds",
			Help:    "Time spent waiting for an in-flight slot",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		})
		m.saturation = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "omnintel_host_max_in_flight_reached_total",
			Help: "Fetches that found every in-flight slot occupied",
		})
		m.reinjected = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omnintel_host_reinjected_total", Help: "Retry re-injections, by topic",
		}, []string{"topic"})

		prometheus.MustRegister(m.handled, m.duration, m.semWait, m.saturation, m.reinjected)
	})
}

func recordHandled(handler, outcome string, d time.Duration) {
	hostMetrics.init()
	hostMetrics.handled.WithLabelValues(handler, outcome).Inc()
	hostMetrics.duration.WithLabelValues(handler).Observe(d.Seconds())
}

func observeSemWait(d time.Duration) {
	hostMetrics.init()
	hostMetrics.semWait.Observe(d.Seconds())
}

func recordSaturation() { hostMetrics.init(); hostMetrics.saturation.Inc() }

func recordReinjected(topic string) {
	hostMetrics.init()
	hostMetrics.reinjected.WithLabelValues(topic).Inc()
}
