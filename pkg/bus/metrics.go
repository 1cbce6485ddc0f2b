// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package bus

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsBus holds Prometheus metrics for the transport layer.
type metricsBus struct {
	once sync.Once

	published    *prometheus.CounterVec
	consumed     *prometheus.CounterVec
	deadLettered *prometheus.CounterVec
}

var busMetrics metricsBus

func (m *metricsBus) init() {
	m.once.Do(func() {
		m.published = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omnintel_bus_published_total", Help: "Records published, by topic",
		}, []string{"topic"})
		m.consumed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omnintel_bus_consumed_total", Help: "Records fetched, by topic",
		}, []string{"topic"})
		m.deadLettered = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omnintel_bus_dead_lettered_total", Help: "Records routed to the dead-letter topic, by reason",
		}, []string{"reason"})

		prometheus.MustRegister(m.published, m.consumed, m.deadLettered)
	})
}

func recordPublished(topic string) { busMetrics.init(); busMetrics.published.WithLabelValues(topic).Inc() }
func recordConsumed(topic string)  { busMetrics.init(); busMetrics.consumed.WithLabelValues(topic).Inc() }
func recordDeadLettered(reason string) {
	busMetrics.init()
	busMetrics.deadLettered.WithLabelValues(reason).Inc()
}
