// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package embed

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsEmbed holds Prometheus metrics for the embedding producer.
type metricsEmbed struct {
	once sync.Once

	skips   *prometheus.CounterVec
	retries prometheus.Counter
}

var embedMetrics metricsEmbed

func (m *metricsEmbed) init() {
	m.once.Do(func() {
		m.skips = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omnintel_embed_skipped_total", Help: "Files or chunks skipped, by reason",
		}, []string{"reason"})
		m.retries = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "omnintel_embed_retries_total", Help: "Embedding attempts retried",
		})

		prometheus.MustRegister(m.skips, m.retries)
	})
}

func recordSkip(reason string) { embedMetrics.init(); embedMetrics.skips.WithLabelValues(reason).Inc() }
func recordRetry()             { embedMetrics.init(); embedMetrics.retries.Inc() }
