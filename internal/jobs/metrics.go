package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors shared by ledger background jobs.
type Metrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	scanned     *prometheus.CounterVec
	anomalies   *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers job collectors on registerer, or once on the
// Prometheus default registerer when it is nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return register(registerer)
	}
	defaultOnce.Do(func() {
		defaultMetrics = register(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// Run measures a single job execution.
type Run struct {
	metrics *Metrics
	job     string
	started time.Time
}

// Start opens a Run for job. A nil receiver yields a Run that records nothing.
func (m *Metrics) Start(job string) *Run {
	return &Run{metrics: m, job: job, started: time.Now()}
}

// Institution counts one institution handled by the run.
func (r *Run) Institution() {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.scanned.WithLabelValues(r.job).Inc()
}

// Finish records outcome and duration and hands err back.
func (r *Run) Finish(err error) error {
	if r == nil || r.metrics == nil {
		return err
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	} else {
		r.metrics.lastSuccess.WithLabelValues(r.job).SetToCurrentTime()
	}
	r.metrics.runs.WithLabelValues(r.job, outcome).Inc()
	r.metrics.duration.WithLabelValues(r.job).Observe(time.Since(r.started).Seconds())
	return err
}

// AddAnomalies counts findings of a check for one institution.
func (m *Metrics) AddAnomalies(check, institutionID string, count int) {
	if m == nil || count <= 0 {
		return
	}
	if institutionID == "" {
		institutionID = "all"
	}
	m.anomalies.WithLabelValues(check, institutionID).Add(float64(count))
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_job_runs_total",
			Help: "Ledger job executions by job and outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_job_duration_seconds",
			Help:    "Wall time of ledger job executions.",
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ledger_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"}),
		scanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_job_institutions_scanned_total",
			Help: "Institutions processed by ledger jobs.",
		}, []string{"job"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_integrity_anomalies_total",
			Help: "Ledger anomalies found by background checks, by check and institution.",
		}, []string{"check", "institution"}),
	}
	registerer.MustRegister(m.runs, m.duration, m.lastSuccess, m.scanned, m.anomalies)
	return m
}
