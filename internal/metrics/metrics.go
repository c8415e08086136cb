package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Auth flow metrics

	SignUpsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "authgate",
		Name:      "signups_total",
		Help:      "Total accounts created.",
	})

	SignInsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authgate",
		Name:      "signins_total",
		Help:      "Total sign-in attempts, by outcome.",
	}, []string{"outcome"})

	VerificationEmailsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authgate",
		Name:      "verification_emails_total",
		Help:      "Verification emails attempted, by outcome.",
	}, []string{"outcome"})

	EmailsVerifiedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "authgate",
		Name:      "emails_verified_total",
		Help:      "Total successful email verifications.",
	})

	SessionsResolvedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authgate",
		Name:      "sessions_resolved_total",
		Help:      "Session resolutions, by source (cache, store, absent).",
	}, []string{"source"})

	// Purger metrics

	PurgedRowsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authgate",
		Name:      "purged_rows_total",
		Help:      "Expired rows removed by the purger, by kind.",
	}, []string{"kind"})

	PurgeCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "authgate",
		Name:      "purge_cycle_duration_seconds",
		Help:      "Time taken for one purge cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "authgate",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authgate",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		SignUpsTotal,
		SignInsTotal,
		VerificationEmailsTotal,
		EmailsVerifiedTotal,
		SessionsResolvedTotal,
		PurgedRowsTotal,
		PurgeCycleDuration,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}
