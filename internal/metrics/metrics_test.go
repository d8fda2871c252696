package metrics_test

import (
	"testing"

	"github.com/jrsteele09/go-session-client/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.RefreshAttempt("success")
	m.RefreshAttempt("success")
	m.RefreshAttempt("failure")
	m.GuardCheck(false)
	m.LifecycleValidation("skipped")
	m.StorageRetry("set")

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 4)

	count, err := testutil.GatherAndCount(reg, "slater_session_refresh_attempts_total")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics
	require.NotPanics(t, func() {
		m.RefreshAttempt("success")
		m.GuardCheck(true)
		m.LifecycleValidation("valid")
		m.StorageRetry("get")
	})
}
