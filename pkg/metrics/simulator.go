package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SimulatorMetrics contains Prometheus metrics for simulation runs.
type SimulatorMetrics struct {
	ReadingsGenerated *prometheus.CounterVec
	AnomaliesDetected *prometheus.CounterVec
	AlertsCreated     *prometheus.CounterVec
	TickFailures      *prometheus.CounterVec
	RunDuration       *prometheus.HistogramVec
	ActiveRuns        prometheus.Gauge
	ScheduledRuns     *prometheus.CounterVec
}

// NewSimulatorMetrics creates and registers simulator metrics.
func NewSimulatorMetrics(namespace string) *SimulatorMetrics {
	m := &SimulatorMetrics{
		ReadingsGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "readings_generated_total",
				Help:      "Total number of readings persisted",
			},
			[]string{"mode", "status"}, // mode: snapshot, historical
		),
		AnomaliesDetected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "anomalies_detected_total",
				Help:      "Total number of anomalous readings",
			},
			[]string{"mode", "status"},
		),
		AlertsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "alerts_created_total",
				Help:      "Total number of alerts raised",
			},
			[]string{"type", "severity"},
		),
		TickFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "tick_failures_total",
				Help:      "Total number of endpoint ticks that failed",
			},
			[]string{"mode", "reason"}, // reason: topology, synthesize, persist, alert
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "run_duration_seconds",
				Help:      "Duration of simulation runs",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "active_runs",
				Help:      "Number of simulation runs in progress",
			},
		),
		ScheduledRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "scheduled_runs_total",
				Help:      "Total number of runs started by the scheduler",
			},
			[]string{"status"}, // status: success, partial, error, canceled
		),
	}

	MustRegister(
		m.ReadingsGenerated,
		m.AnomaliesDetected,
		m.AlertsCreated,
		m.TickFailures,
		m.RunDuration,
		m.ActiveRuns,
		m.ScheduledRuns,
	)

	return m
}
