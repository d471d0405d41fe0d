package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsRecordsRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	end := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	m.ObserveRun("auction-finalization", 250*time.Millisecond, end, nil)
	m.ObserveRun("auction-finalization", time.Second, end.Add(time.Minute), errors.New("db down"))
	m.AddSweepItems("auction-finalization", 3, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("auction-finalization", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("auction-finalization", "failure")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.items.WithLabelValues("auction-finalization", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.items.WithLabelValues("auction-finalization", "failure")))
	// failed runs leave the last success untouched
	assert.Equal(t, float64(end.Unix()), testutil.ToFloat64(m.lastSuccess.WithLabelValues("auction-finalization")))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	sum, err := fetchHistogramSum(mfs, "auctionhouse_cron_job_duration_seconds", "job", "auction-finalization")
	require.NoError(t, err)
	assert.InDelta(t, 1.25, sum, 1e-9)
}

func TestCronJobMetricsBlankJobName(t *testing.T) {
	m := NewCronJobMetrics(prometheus.NewRegistry())
	m.AddSweepItems("", 2, 0)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.items.WithLabelValues("unknown", "success")))
}

func TestNilCronJobMetricsIsNoop(t *testing.T) {
	var m *CronJobMetrics
	assert.NotPanics(t, func() {
		m.ObserveRun("job", time.Second, time.Now(), nil)
		m.AddSweepItems("job", 1, 1)
		NewCronJobMetrics(nil).ObserveRun("job", time.Second, time.Now(), errors.New("x"))
	})
}
