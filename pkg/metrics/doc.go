/*
Package metrics defines and registers uptimed's Prometheus metrics and a
small JSON health/readiness surface, served together by cmd/uptimed's
serve command.

	┌─────────────── METRICS SYSTEM ───────────────┐
	│  prometheus.MustRegister at package init      │
	│                                                │
	│  uptimed_checks_total{kind,result}             │
	│  uptimed_check_duration_seconds{kind}          │
	│  uptimed_notify_failures_total                 │
	│  uptimed_tasks_total                           │
	│  uptimed_services_total{kind}                  │
	│  uptimed_consolidation_duration_seconds{kind}  │
	│  uptimed_consolidation_watermark_seconds{kind} │
	│  uptimed_instance_is_active                    │
	│  uptimed_sla_percent{kind}                     │
	└────────────────────────────────────────────────┘

Handler() exposes these over /metrics. HealthHandler/ReadyHandler/
LivenessHandler expose a JSON status surface built around the daemon's
election role: a standby replica is healthy but deliberately not ready
(it holds no heartbeat and monitors nothing), an active one is ready only
while its backend is reachable and the scheduler is running. Storage and
scheduler conditions are pulled through probe functions at request time,
so the endpoints report live state rather than the last transition.

# Usage

	timer := metrics.NewTimer()
	result := svc.Check(ctx)
	timer.ObserveDurationVec(metrics.CheckDuration, string(svc.Kind()))
	metrics.ChecksTotal.WithLabelValues(string(svc.Kind()), result.Status.String()).Inc()
*/
package metrics
