package sidecar

import "github.com/prometheus/client_golang/prometheus"

// metrics mirrors pkg/operator.metricOperatorSyncLatency's pattern of package-level collectors
// registered once at construction time rather than on every call site.
type metrics struct {
	filesWritten      prometheus.Counter
	filesRemoved      prometheus.Counter
	notifySuccess     prometheus.Counter
	notifyFailure     prometheus.Counter
	reconnects        prometheus.Counter
	reconcilePasses   prometheus.Counter
}

// NewMetrics constructs and registers the package's Prometheus collectors against reg. reg may
// be nil, in which case metrics are tracked in memory but never exposed.
func NewMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		filesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sidecar_files_written_total",
			Help: "Number of files written to the destination folder because their content changed.",
		}),
		filesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sidecar_files_removed_total",
			Help: "Number of files removed from the destination folder.",
		}),
		notifySuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sidecar_notifications_total",
			Help: "Number of outbound notifications delivered successfully.",
		}),
		notifyFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sidecar_notification_failures_total",
			Help: "Number of outbound notifications that failed after exhausting retries.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sidecar_watch_reconnects_total",
			Help: "Number of times a watch loop had to reconnect after an error.",
		}),
		reconcilePasses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sidecar_reconcile_passes_total",
			Help: "Number of reconciliation passes (single-event or full-set) completed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.filesWritten,
			m.filesRemoved,
			m.notifySuccess,
			m.notifyFailure,
			m.reconnects,
			m.reconcilePasses,
		)
	}
	return m
}
