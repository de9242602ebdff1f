// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	webhookNamespace        = "webhook"
	webhookSubsystemDeliver = "delivery"
	webhookSubsystemTrigger = "trigger"
	webhookSubsystemBreaker = "breaker"
)

// DeliveryMetrics holds all of the metrics needed to properly instrument
// the webhook delivery server.
type DeliveryMetrics struct {
	DeliveryAttemptsCounter   *prometheus.CounterVec
	DeliveryDurationHist      prometheus.Histogram
	EventsDeadLetteredCounter prometheus.Counter

	QueueDepthGauge prometheus.Gauge

	EventsTranslatedCounter prometheus.Counter

	BreakerStateGauge *prometheus.GaugeVec
}

// New creates a new Prometheus-based DeliveryMetrics object registered with
// the default registry.
func New() *DeliveryMetrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a DeliveryMetrics object registered with the given
// registry. Tests use a fresh registry to avoid duplicate registration.
func NewWithRegistry(registerer prometheus.Registerer) *DeliveryMetrics {
	factory := promauto.With(registerer)

	return &DeliveryMetrics{
		DeliveryAttemptsCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: webhookNamespace,
				Subsystem: webhookSubsystemDeliver,
				Name:      "attempts_total",
				Help:      "The number of delivery attempts by outcome",
			},
			[]string{"outcome"},
		),

		DeliveryDurationHist: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: webhookNamespace,
				Subsystem: webhookSubsystemDeliver,
				Name:      "duration_seconds",
				Help:      "The duration of webhook delivery attempts",
				Buckets:   standardDurationBuckets(),
			},
		),

		EventsDeadLetteredCounter: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: webhookNamespace,
				Subsystem: webhookSubsystemDeliver,
				Name:      "dead_lettered_total",
				Help:      "The number of events dead-lettered after exhausting delivery",
			},
		),

		QueueDepthGauge: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: webhookNamespace,
				Subsystem: webhookSubsystemDeliver,
				Name:      "queue_depth",
				Help:      "The number of due events seen by the last scheduler tick",
			},
		),

		EventsTranslatedCounter: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: webhookNamespace,
				Subsystem: webhookSubsystemTrigger,
				Name:      "events_total",
				Help:      "The number of events produced by the change translator",
			},
		),

		BreakerStateGauge: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: webhookNamespace,
				Subsystem: webhookSubsystemBreaker,
				Name:      "state",
				Help:      "Breaker state per endpoint: 0 closed, 1 half-open, 2 open",
			},
			[]string{"url"},
		),
	}
}

// standardDurationBuckets provides buckets from fast local responses up to
// the 30s default delivery timeout.
func standardDurationBuckets() []float64 {
	return []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
}
