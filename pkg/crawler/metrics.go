// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package crawler

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsCrawler holds Prometheus metrics for repository scans.
type metricsCrawler struct {
	once sync.Once

	files   *prometheus.CounterVec
	batches prometheus.Counter
}

var crawlerMetrics metricsCrawler

func (m *metricsCrawler) init() {
	m.once.Do(func() {
		m.files = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omnintel_crawler_files_total", Help: "Files seen by scans, by disposition",
		}, []string{"disposition"})
		m.batches = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "omnintel_crawler_batches_total", Help: "Fan-out batches published",
		})

		prometheus.MustRegister(m.files, m.batches)
	})
}

func recordScan(discovered, published, skipped int) {
	crawlerMetrics.init()
	crawlerMetrics.files.WithLabelValues("discovered").Add(float64(discovered))
	crawlerMetrics.files.WithLabelValues("published").Add(float64(published))
	crawlerMetrics.files.WithLabelValues("skipped").Add(float64(skipped))
}

func recordBatch() { crawlerMetrics.init(); crawlerMetrics.batches.Inc() }
