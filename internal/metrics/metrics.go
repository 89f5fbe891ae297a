package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service-level Prometheus collectors. A single instance
// is created in main and passed to the components that record into it.
type Metrics struct {
	EventsIngested  *prometheus.CounterVec
	EventsProcessed *prometheus.CounterVec
	PointsApplied   *prometheus.CounterVec
	BadgesAwarded   *prometheus.CounterVec
	QueueDepth      prometheus.Gauge
}

// New creates and registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamification_events_ingested_total",
				Help: "Inbound webhook deliveries by event type and intake outcome",
			},
			[]string{"event_type", "outcome"},
		),
		EventsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamification_events_processed_total",
				Help: "Evaluated events by terminal status",
			},
			[]string{"status"},
		),
		PointsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamification_points_applied_total",
				Help: "Ledger entries written, by rule key",
			},
			[]string{"rule_key"},
		),
		BadgesAwarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamification_badges_awarded_total",
				Help: "UserBadge upserts by badge key",
			},
			[]string{"badge_key"},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gamification_evaluation_queue_depth",
				Help: "Delivery ids waiting for a worker",
			},
		),
	}

	reg.MustRegister(
		m.EventsIngested,
		m.EventsProcessed,
		m.PointsApplied,
		m.BadgesAwarded,
		m.QueueDepth,
	)

	return m
}
