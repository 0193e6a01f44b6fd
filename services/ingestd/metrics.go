package ingestd

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts pipeline outcomes for the /metrics endpoint.
type Metrics struct {
	jobs     *prometheus.CounterVec
	bytes    prometheus.Counter
	duration prometheus.Histogram
}

// NewMetrics registers the worker's collectors on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		jobs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_jobs_total",
			Help: "Ingest pipeline runs by outcome.",
		}, []string{"outcome"}),
		bytes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ingest_uploaded_bytes_total",
			Help: "Total archive bytes uploaded to object storage.",
		}),
		duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ingest_duration_seconds",
			Help:    "Wall time per pipeline run.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
	}
}

func (m *Metrics) observe(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(outcome).Inc()
	m.duration.Observe(seconds)
}

func (m *Metrics) addUploaded(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytes.Add(float64(n))
}
