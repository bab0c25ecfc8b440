package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/socialpulse/followwatch/internal/models"
)

// Metrics exposes Prometheus metrics for monitoring cycles
type Metrics struct {
	registry *prometheus.Registry

	cycles          prometheus.Counter
	cycleDuration   prometheus.Histogram
	profileOutcomes *prometheus.CounterVec
	alertsTriggered prometheus.Counter
	notifications   *prometheus.CounterVec
	lastCycle       prometheus.Gauge
	samplesPruned   prometheus.Counter
}

// NewMetrics registers the collectors on a private registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "followwatch",
			Subsystem: "monitoring",
			Name:      "cycles_total",
			Help:      "Total number of completed monitoring cycles.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "followwatch",
			Subsystem: "monitoring",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of monitoring cycles.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		profileOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "followwatch",
			Subsystem: "monitoring",
			Name:      "profile_checks_total",
			Help:      "Profile checks by outcome status.",
		}, []string{"status"}),
		alertsTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "followwatch",
			Subsystem: "alerts",
			Name:      "triggered_total",
			Help:      "Alerts transitioned to triggered.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "followwatch",
			Subsystem: "alerts",
			Name:      "notifications_total",
			Help:      "Milestone notification attempts by result.",
		}, []string{"result"}),
		lastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "followwatch",
			Subsystem: "monitoring",
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time the last cycle finished.",
		}),
		samplesPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "followwatch",
			Subsystem: "storage",
			Name:      "samples_pruned_total",
			Help:      "Samples removed by retention pruning.",
		}),
	}

	registry.MustRegister(
		m.cycles,
		m.cycleDuration,
		m.profileOutcomes,
		m.alertsTriggered,
		m.notifications,
		m.lastCycle,
		m.samplesPruned,
	)
	return m
}

// Handler returns an HTTP handler for exposing Prometheus metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeCycle(report *models.CycleReport) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	m.cycleDuration.Observe(report.DurationSeconds)
	m.lastCycle.Set(float64(report.FinishedAt.Unix()))
	for _, outcome := range report.Profiles {
		m.profileOutcomes.WithLabelValues(outcome.Status).Inc()
	}
}

func (m *Metrics) observeTriggered(n int) {
	if m == nil {
		return
	}
	m.alertsTriggered.Add(float64(n))
}

func (m *Metrics) observeNotification(sent bool) {
	if m == nil {
		return
	}
	result := "failed"
	if sent {
		result = "sent"
	}
	m.notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) observePruned(n int64) {
	if m == nil {
		return
	}
	m.samplesPruned.Add(float64(n))
}
