// Package metrics exposes Prometheus collectors for the alerting core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the dispatcher's counters. A nil *Metrics is valid and
// records nothing, so tests and callers that don't care can pass nil.
type Metrics struct {
	NotificationsDelivered  prometheus.Counter
	NotificationsQueued     prometheus.Counter
	NotificationsSuppressed prometheus.Counter
	DeliveryFailures        prometheus.Counter
	MailAlertsCreated       prometheus.Counter
}

// New registers the collectors on the given registerer and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		NotificationsDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "alerttrail_notifications_delivered_total",
			Help: "Push payloads accepted by the delivery gateway.",
		}),
		NotificationsQueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "alerttrail_notifications_queued_total",
			Help: "Notifications deferred to the per-user queue.",
		}),
		NotificationsSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Name: "alerttrail_notifications_suppressed_total",
			Help: "Notifications dropped by the eligibility or push-enabled gate.",
		}),
		DeliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "alerttrail_delivery_failures_total",
			Help: "Failed delivery-gateway calls (the queue is kept for retry).",
		}),
		MailAlertsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "alerttrail_mail_alerts_created_total",
			Help: "Mail alerts persisted for risky scanned messages.",
		}),
	}
}

// Delivered records one successful flush delivery.
func (m *Metrics) Delivered() {
	if m != nil {
		m.NotificationsDelivered.Inc()
	}
}

// Queued records one deferred notification.
func (m *Metrics) Queued() {
	if m != nil {
		m.NotificationsQueued.Inc()
	}
}

// Suppressed records one gated notification.
func (m *Metrics) Suppressed() {
	if m != nil {
		m.NotificationsSuppressed.Inc()
	}
}

// DeliveryFailed records one failed gateway call.
func (m *Metrics) DeliveryFailed() {
	if m != nil {
		m.DeliveryFailures.Inc()
	}
}

// MailAlert records one persisted mail alert.
func (m *Metrics) MailAlert() {
	if m != nil {
		m.MailAlertsCreated.Inc()
	}
}
