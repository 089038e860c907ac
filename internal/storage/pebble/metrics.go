package pebblestore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PromMetrics reports storage latencies to Prometheus.
type PromMetrics struct {
	readSeconds   prometheus.Histogram
	scanSeconds   prometheus.Histogram
	commitSeconds *prometheus.HistogramVec
	commitBytes   prometheus.Counter
}

// NewPromMetrics registers storage collectors with reg. A nil registerer
// leaves the collectors unregistered.
func NewPromMetrics(reg prometheus.Registerer) *PromMetrics {
	f := promauto.With(reg)
	return &PromMetrics{
		readSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "remq_store_read_duration_seconds",
			Help:    "Point read latency against the store",
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 8),
		}),
		scanSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "remq_store_scan_duration_seconds",
			Help:    "Range scan latency against the store",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		commitSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "remq_store_commit_duration_seconds",
			Help:    "Batch commit latency against the store",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"result"}),
		commitBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "remq_store_commit_bytes_total",
			Help: "Bytes committed to the store",
		}),
	}
}

func (m *PromMetrics) ObserveRead(d time.Duration, _ int) { m.readSeconds.Observe(d.Seconds()) }

func (m *PromMetrics) ObserveScan(d time.Duration) { m.scanSeconds.Observe(d.Seconds()) }

func (m *PromMetrics) ObserveBatchCommit(d time.Duration, bytes int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.commitSeconds.WithLabelValues(result).Observe(d.Seconds())
	if err == nil {
		m.commitBytes.Add(float64(bytes))
	}
}
