package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	Submissions        = prometheus.NewCounter(prometheus.CounterOpts{Name: "relay_submissions_total", Help: "Accepted transform submissions"})
	SubmissionRejects  = prometheus.NewCounter(prometheus.CounterOpts{Name: "relay_submission_rejects_total", Help: "Submissions rejected before reaching the provider"})
	RateLimitRejects   = prometheus.NewCounter(prometheus.CounterOpts{Name: "relay_rate_limit_rejects_total", Help: "Submissions rejected by the rate limiter"})
	WebhookSucceeded   = prometheus.NewCounter(prometheus.CounterOpts{Name: "relay_webhook_succeeded_total", Help: "Webhook deliveries reporting success"})
	WebhookFailed      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "relay_webhook_failed_total", Help: "Webhook deliveries reporting failure, by classified kind"}, []string{"kind"})
	NotificationsSent  = prometheus.NewCounter(prometheus.CounterOpts{Name: "relay_notifications_sent_total", Help: "Result-ready emails dispatched"})
	NotificationErrors = prometheus.NewCounter(prometheus.CounterOpts{Name: "relay_notification_errors_total", Help: "Result-ready emails that failed to send"})
	ArchiveErrors      = prometheus.NewCounter(prometheus.CounterOpts{Name: "relay_archive_errors_total", Help: "Failed durable-copy writes"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			Submissions,
			SubmissionRejects,
			RateLimitRejects,
			WebhookSucceeded,
			WebhookFailed,
			NotificationsSent,
			NotificationErrors,
			ArchiveErrors,
		)
	})
	return promhttp.Handler()
}
