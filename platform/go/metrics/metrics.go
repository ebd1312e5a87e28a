package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "tenancy"
	subsystem = "provisioning"
)

// ProvisioningMetrics records tenant database operations (create, rename, drop).
// A nil *ProvisioningMetrics is valid and records nothing.
type ProvisioningMetrics struct {
	calls        *prometheus.CounterVec
	errs         *prometheus.CounterVec
	durs         *prometheus.HistogramVec
	tablesCopied prometheus.Counter
	rowsCopied   prometheus.Counter
}

// NewProvisioningMetrics builds the collectors; register them with PrometheusCollectors.
func NewProvisioningMetrics() *ProvisioningMetrics {
	return &ProvisioningMetrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "call_total",
			Help:      "Number of tenant database operations",
		}, []string{"op"}),
		errs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "error_total",
			Help:      "Number of failed tenant database operations",
		}, []string{"op"}),
		durs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "duration_seconds",
			Help:      "Duration of tenant database operations",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"op"}),
		tablesCopied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tables_copied_total",
			Help:      "Number of tables copied while renaming tenant databases",
		}),
		rowsCopied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rows_copied_total",
			Help:      "Number of rows copied while renaming tenant databases",
		}),
	}
}

// PrometheusCollectors returns all collectors for registration.
func (m *ProvisioningMetrics) PrometheusCollectors() []prometheus.Collector {
	if m == nil {
		return nil
	}
	return []prometheus.Collector{m.calls, m.errs, m.durs, m.tablesCopied, m.rowsCopied}
}

// Observe records the outcome of op started at start.
func (m *ProvisioningMetrics) Observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(op).Inc()
	m.durs.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		m.errs.WithLabelValues(op).Inc()
	}
}

// TableCopied records one copied table and its row count.
func (m *ProvisioningMetrics) TableCopied(rows int64) {
	if m == nil {
		return
	}
	m.tablesCopied.Inc()
	m.rowsCopied.Add(float64(rows))
}
