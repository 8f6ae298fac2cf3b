// Package metrics provides Prometheus metric collection and exposition.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metric-recording surface used by the service and worker
// layers.
type Recorder interface {
	RecordWebhookEvent(eventType, outcome string)
	RecordSyncRun(provider, outcome string)
	RecordSyncRecords(provider string, count int)
	RecordSyncLatency(provider string, duration time.Duration)
}

// Collector implements Recorder on a Prometheus registry.
type Collector struct {
	webhookEvents *prometheus.CounterVec
	syncRuns      *prometheus.CounterVec
	syncRecords   *prometheus.CounterVec
	syncLatency   *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "focusdock_webhook_events_total",
			Help: "Stripe webhook deliveries by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "focusdock_sync_runs_total",
			Help: "Activity sync runs by provider and outcome.",
		}, []string{"provider", "outcome"}),
		syncRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "focusdock_sync_records_total",
			Help: "Activity records written by sync runs, by provider.",
		}, []string{"provider"}),
		syncLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "focusdock_sync_duration_seconds",
			Help:    "Wall-clock duration of activity sync runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
	}

	reg.MustRegister(
		c.webhookEvents,
		c.syncRuns,
		c.syncRecords,
		c.syncLatency,
	)

	return c
}

// RecordWebhookEvent counts one webhook delivery. outcome is one of
// processed, duplicate, ignored, or failed.
func (c *Collector) RecordWebhookEvent(eventType, outcome string) {
	c.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordSyncRun counts one sync run. outcome is success or failure.
func (c *Collector) RecordSyncRun(provider, outcome string) {
	c.syncRuns.WithLabelValues(provider, outcome).Inc()
}

// RecordSyncRecords counts records written by a sync run.
func (c *Collector) RecordSyncRecords(provider string, count int) {
	c.syncRecords.WithLabelValues(provider).Add(float64(count))
}

// RecordSyncLatency observes the duration of a sync run.
func (c *Collector) RecordSyncLatency(provider string, duration time.Duration) {
	c.syncLatency.WithLabelValues(provider).Observe(duration.Seconds())
}

// Handler returns the Prometheus scrape handler for the gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
