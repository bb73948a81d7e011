package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cribnosh"

const (
	jobSucceeded = "success"
	jobFailed    = "failure"
)

// CronJobMetrics records scheduled job runs. A zero value is a no-op.
type CronJobMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	affected    *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

// NewCronJobMetrics registers the cron job metrics on reg. A nil registerer yields no-op metrics.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "runs_total",
			Help:      "Cron job runs by outcome.",
		}, []string{"job", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "run_duration_seconds",
			Help:      "Cron job run time.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"job"}),
		affected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "rows_affected_total",
			Help:      "Rows touched by cron jobs.",
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.runs, m.duration, m.affected, m.lastSuccess)
	return m
}

// ObserveRun records one finished run. Rows affected count even when the run
// failed part way.
func (c *CronJobMetrics) ObserveRun(job string, took time.Duration, affected int64, err error) {
	if c == nil || c.runs == nil {
		return
	}
	job = normalizeLabel(job)
	c.duration.WithLabelValues(job).Observe(took.Seconds())
	if affected > 0 {
		c.affected.WithLabelValues(job).Add(float64(affected))
	}
	if err != nil {
		c.runs.WithLabelValues(job, jobFailed).Inc()
		return
	}
	c.runs.WithLabelValues(job, jobSucceeded).Inc()
	c.lastSuccess.WithLabelValues(job).SetToCurrentTime()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
