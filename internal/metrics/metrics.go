// Package metrics holds the Prometheus collectors shared by the server and worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chimeo"

type Metrics struct {
	Deliveries     *prometheus.CounterVec
	FanOutDuration prometheus.Histogram
	AlertsPosted   *prometheus.CounterVec
	Reviews        *prometheus.CounterVec
	Follows        *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "deliveries_total",
			Help:      "Push deliveries by outcome (sent, failed, skipped)",
		}, []string{"status"}),

		FanOutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "fanout_duration_seconds",
			Help:      "Time spent fanning one alert out to every recipient",
			Buckets:   prometheus.ExponentialBuckets(1e-2, 4, 7),
		}),

		AlertsPosted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "posted_total",
			Help:      "Alerts posted by severity",
		}, []string{"severity"}),

		Reviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "requests",
			Name:      "reviews_total",
			Help:      "Organization request reviews by decision",
		}, []string{"decision"}),

		Follows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "followers",
			Name:      "changes_total",
			Help:      "Follow edges created or removed",
		}, []string{"op"}),

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method and status class",
		}, []string{"method", "code"}),
	}
}

func (m *Metrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Deliveries,
		m.FanOutDuration,
		m.AlertsPosted,
		m.Reviews,
		m.Follows,
		m.HTTPRequests,
	}
}

// MustRegister registers every collector with reg.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.PrometheusCollectors()...)
}
