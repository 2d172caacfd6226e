package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	JobsEnqueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_jobs_enqueued_total",
			Help: "Total email jobs enqueued",
		},
	)

	EmailsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Total emails sent",
		},
	)

	EmailFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_failures_total",
			Help: "Total emails abandoned after a permanent failure or attempt ceiling",
		},
	)

	EmailRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_retries_total",
			Help: "Total emails requeued after a transient failure",
		},
	)

	EmailOpens = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_opens_total",
			Help: "Total unique email opens recorded by the tracking pixel",
		},
	)

	DispatchPasses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_passes_total",
			Help: "Total dispatch passes executed",
		},
	)
)

func Init() {
	prometheus.MustRegister(
		JobsEnqueued,
		EmailsSent,
		EmailFailures,
		EmailRetries,
		EmailOpens,
		DispatchPasses,
	)
}
