package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is nil-safe: every recording method is a no-op on a nil receiver so
// components can be built without a registry in tests.
type Metrics struct {
	registry        *prometheus.Registry
	webhookEntries  *prometheus.CounterVec
	webhookRequests *prometheus.CounterVec
	profileRequests *prometheus.CounterVec
	backfillRuns    *prometheus.CounterVec
	adminActions    *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		webhookEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leaderboard_webhook_entries_total",
			Help: "Result entries processed by the webhook, by outcome.",
		}, []string{"outcome"}),
		webhookRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leaderboard_webhook_requests_total",
			Help: "Webhook deliveries, by response status class.",
		}, []string{"status"}),
		profileRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leaderboard_profile_requests_total",
			Help: "Calls to the external profile API, by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		backfillRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leaderboard_avatar_backfill_runs_total",
			Help: "Avatar backfill runs, by outcome.",
		}, []string{"outcome"}),
		adminActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leaderboard_admin_actions_total",
			Help: "Admin mutations, by action and outcome.",
		}, []string{"action", "outcome"}),
	}

	registry.MustRegister(
		m.webhookEntries,
		m.webhookRequests,
		m.profileRequests,
		m.backfillRuns,
		m.adminActions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) WebhookEntries(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.webhookEntries.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) WebhookRequest(status string) {
	if m == nil {
		return
	}
	m.webhookRequests.WithLabelValues(status).Inc()
}

func (m *Metrics) ProfileRequest(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.profileRequests.WithLabelValues(endpoint, outcome).Inc()
}

func (m *Metrics) BackfillRun(outcome string) {
	if m == nil {
		return
	}
	m.backfillRuns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AdminAction(action, outcome string) {
	if m == nil {
		return
	}
	m.adminActions.WithLabelValues(action, outcome).Inc()
}
