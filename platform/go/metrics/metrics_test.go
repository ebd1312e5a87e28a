package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveCountsCallsAndErrors(t *testing.T) {
	t.Parallel()

	m := NewProvisioningMetrics()
	reg := prometheus.NewRegistry()
	reg.MustRegister(m.PrometheusCollectors()...)

	m.Observe("rename", time.Now(), nil)
	m.Observe("rename", time.Now(), errors.New("boom"))
	m.TableCopied(42)

	require.Equal(t, float64(2), testutil.ToFloat64(m.calls.WithLabelValues("rename")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.errs.WithLabelValues("rename")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.tablesCopied))
	require.Equal(t, float64(42), testutil.ToFloat64(m.rowsCopied))
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *ProvisioningMetrics
	require.NotPanics(t, func() {
		m.Observe("create", time.Now(), nil)
		m.TableCopied(1)
	})
	require.Nil(t, m.PrometheusCollectors())
}
