// Package metrics holds the Prometheus collectors shared by the service.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var CertificatesIssuedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "ironcert_certificates_issued_total",
		Help: "Total number of certificates issued",
	},
)

var IssueFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ironcert_issue_failures_total",
		Help: "Total number of failed issuances by reason",
	},
	[]string{"reason"},
)

var ValidationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ironcert_validations_total",
		Help: "Total number of certificate validations by outcome",
	},
	[]string{"outcome"},
)

var DownloadsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ironcert_downloads_total",
		Help: "Total number of certificate download attempts by status",
	},
	[]string{"status"},
)

var NotificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ironcert_notifications_total",
		Help: "Total number of issuance notifications by sink and status",
	},
	[]string{"sink", "status"},
)

var HTTPRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ironcert_http_requests_total",
		Help: "Total number of HTTP requests received",
	},
	[]string{"route", "method", "status"},
)

var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "ironcert_http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"route", "method"},
)

var RateLimitRejectionsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "ironcert_rate_limit_rejections_total",
		Help: "Total number of requests rejected by the verification rate limiter",
	},
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		CertificatesIssuedTotal,
		IssueFailuresTotal,
		ValidationsTotal,
		DownloadsTotal,
		NotificationsTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		RateLimitRejectionsTotal,
	}
}

// Register adds every collector to reg. Collectors already registered with
// reg are skipped, so Register may be called more than once.
func Register(reg prometheus.Registerer) error {
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}
