package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ChecksTotal counts every probe attempt by kind and outcome (OK/FAIL)
	ChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uptimed_checks_total",
			Help: "Total number of service checks performed by kind and result",
		},
		[]string{"kind", "result"},
	)

	CheckDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "uptimed_check_duration_seconds",
			Help:    "Time taken to run a single service check",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	NotifyFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "uptimed_notify_failures_total",
			Help: "Total number of backend notify calls that failed and forced a status reset",
		},
	)

	TasksTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "uptimed_tasks_total",
			Help: "Current number of monitoring tasks in the monitor",
		},
	)

	ServicesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "uptimed_services_total",
			Help: "Current number of services monitored, by probe kind",
		},
		[]string{"kind"},
	)

	ConsolidationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "uptimed_consolidation_duration_seconds",
			Help:    "Time taken to consolidate a single SLA period",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	ConsolidationWatermark = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "uptimed_consolidation_watermark_seconds",
			Help: "Unix timestamp of the next period the consolidation watermark will process",
		},
		[]string{"kind"},
	)

	InstanceIsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "uptimed_instance_is_active",
			Help: "Whether this process holds the active instance lock (1) or is standing by (0)",
		},
	)

	SLAPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "uptimed_sla_percent",
			Help: "Most recently consolidated SLA percentage by period kind",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(ChecksTotal)
	prometheus.MustRegister(CheckDuration)
	prometheus.MustRegister(NotifyFailuresTotal)
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(ServicesTotal)
	prometheus.MustRegister(ConsolidationDuration)
	prometheus.MustRegister(ConsolidationWatermark)
	prometheus.MustRegister(InstanceIsActive)
	prometheus.MustRegister(SLAPercent)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
