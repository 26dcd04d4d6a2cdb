// Package metrics registers the Prometheus collectors served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conference_checkout_sessions_total",
		Help: "Checkout sessions requested from the payment gateway by provider and result.",
	}, []string{"provider", "result"})

	PaymentsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conference_payments_completed_total",
		Help: "Registrations marked paid, by source (callback or webhook).",
	}, []string{"source"})

	RevenueCents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conference_revenue_cents_total",
		Help: "Paid registration totals in minor units, by currency.",
	}, []string{"currency"})

	WebhookRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conference_webhook_rejected_total",
		Help: "Webhook deliveries rejected before processing.",
	}, []string{"reason"})

	FXFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conference_fx_fallback_total",
		Help: "Currency conversions that used the fallback rate.",
	})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conference_http_rate_limited_total",
		Help: "Requests rejected by the rate limiter.",
	})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conference_notifications_total",
		Help: "Notification emails handled by the dispatcher, by type and result.",
	}, []string{"type", "result"})
)
