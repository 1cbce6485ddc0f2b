// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package indexer

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsIndexer holds Prometheus metrics for document indexing.
type metricsIndexer struct {
	once sync.Once

	documents *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

var ixMetrics metricsIndexer

func (m *metricsIndexer) init() {
	m.once.Do(func() {
		m.documents = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omnintel_indexer_documents_total", Help: "Documents processed, by outcome",
		}, []string{"outcome"})
		m.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "omnintel_indexer_duration_seconds",
			Help:    "End-to-end document indexing time, by outcome",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"})

		prometheus.MustRegister(m.documents, m.duration)
	})
}

func recordDocument(outcome string, d time.Duration) {
	ixMetrics.init()
	ixMetrics.documents.WithLabelValues(outcome).Inc()
	ixMetrics.duration.WithLabelValues(outcome).Observe(d.Seconds())
}
