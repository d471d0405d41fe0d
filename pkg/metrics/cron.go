package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics instruments the cron worker's sweeps.
type CronJobMetrics struct {
	duration    *prometheus.HistogramVec
	runs        *prometheus.CounterVec
	items       *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "job_duration_seconds",
			Help:      "Wall time of one job run.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60},
		}, []string{"job"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "job_runs_total",
			Help:      "Job runs, by result (success or failure).",
		}, []string{"job", "result"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "sweep_items_total",
			Help:      "Items processed by sweep jobs, by result.",
		}, []string{"job", "result"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "job_last_success_timestamp_seconds",
			Help:      "Unix time of the job's last successful run.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.duration, m.runs, m.items, m.lastSuccess)
	return m
}

// ObserveRun records one run of job finishing at end after d.
func (c *CronJobMetrics) ObserveRun(job string, d time.Duration, end time.Time, err error) {
	if c == nil || c.runs == nil {
		return
	}
	job = normalizeLabel(job)
	c.duration.WithLabelValues(job).Observe(d.Seconds())
	if err != nil {
		c.runs.WithLabelValues(job, "failure").Inc()
		return
	}
	c.runs.WithLabelValues(job, "success").Inc()
	c.lastSuccess.WithLabelValues(job).Set(float64(end.Unix()))
}

// AddSweepItems records per-item outcomes of a sweep run.
func (c *CronJobMetrics) AddSweepItems(job string, succeeded, failed int) {
	if c == nil || c.items == nil {
		return
	}
	job = normalizeLabel(job)
	c.items.WithLabelValues(job, "success").Add(float64(succeeded))
	c.items.WithLabelValues(job, "failure").Add(float64(failed))
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
