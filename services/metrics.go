package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts dispatched commands by outcome.
type Metrics struct {
	CommandCounter  *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CommandCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "puzzlebot",
				Name:      "commands_total",
				Help:      "Total number of dispatched commands",
			},
			[]string{"command", "outcome"},
		),
		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "puzzlebot",
				Name:      "command_duration_seconds",
				Help:      "Command dispatch duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"command"},
		),
	}
}

func (m *Metrics) observe(command, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CommandCounter.WithLabelValues(command, outcome).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}
