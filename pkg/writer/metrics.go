// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package writer

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsWriter holds Prometheus metrics for the context-item writer.
type metricsWriter struct {
	once sync.Once

	chunks   *prometheus.CounterVec
	duration prometheus.Histogram
}

var writerMetrics metricsWriter

func (m *metricsWriter) init() {
	m.once.Do(func() {
		m.chunks = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omnintel_writer_chunks_total", Help: "Chunks written, by status",
		}, []string{"status"})
		m.duration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "omnintel_writer_batch_duration_seconds",
			Help:    "WriteBatch wall time",
			Buckets: prometheus.DefBuckets,
		})

		prometheus.MustRegister(m.chunks, m.duration)
	})
}

func recordChunkStatus(status string) {
	writerMetrics.init()
	writerMetrics.chunks.WithLabelValues(status).Inc()
}

func recordBatch(d time.Duration) {
	writerMetrics.init()
	writerMetrics.duration.Observe(d.Seconds())
}
