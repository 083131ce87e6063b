// Package metrics exposes Prometheus instrumentation for the dev loop:
// build counts and durations, reload pushes, classified filesystem
// events and connected reload clients.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors for one dev-loop process.
type Metrics struct {
	buildsTotal   *prometheus.CounterVec
	buildDuration *prometheus.HistogramVec
	reloadsTotal  *prometheus.CounterVec
	fsEventsTotal *prometheus.CounterVec
	syncsTotal    *prometheus.CounterVec
	reloadClients prometheus.Gauge
}

// Config configures metric registration.
type Config struct {
	// Namespace is the metrics namespace (default: "sitewatch").
	Namespace string

	// Buckets are the histogram buckets for build duration. Builds run
	// seconds, not milliseconds, so the default buckets skew long.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// Default returns the process-wide metrics, registering them on the
// default registry on first use.
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = New(Config{})
	})
	return defaultMetrics
}

// New registers the collectors and returns them.
func New(cfg Config) *Metrics {
	if cfg.Namespace == "" {
		cfg.Namespace = "sitewatch"
	}
	if cfg.Buckets == nil {
		cfg.Buckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(cfg.Registry)

	return &Metrics{
		buildsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "builds_total",
			Help:      "Pipeline runs by outcome",
		}, []string{"outcome"}),

		buildDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "build_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   cfg.Buckets,
		}, []string{"stage"}),

		reloadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "reloads_total",
			Help:      "Reload pushes to connected browsers by reason",
		}, []string{"reason"}),

		fsEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "fs_events_total",
			Help:      "Classified filesystem changes by route",
		}, []string{"route"}),

		syncsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "asset_syncs_total",
			Help:      "Asset synchronizations by kind (incremental or full)",
		}, []string{"kind"}),

		reloadClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "reload_clients",
			Help:      "Browsers currently connected to the reload endpoint",
		}),
	}
}

// RecordBuild records one finished pipeline run.
func (m *Metrics) RecordBuild(outcome string) {
	m.buildsTotal.WithLabelValues(outcome).Inc()
}

// RecordStageDuration records one stage's wall time.
func (m *Metrics) RecordStageDuration(stage string, seconds float64) {
	m.buildDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordReload records one reload push.
func (m *Metrics) RecordReload(reason string) {
	m.reloadsTotal.WithLabelValues(reason).Inc()
}

// RecordFSEvent records one classified filesystem change.
func (m *Metrics) RecordFSEvent(route string) {
	m.fsEventsTotal.WithLabelValues(route).Inc()
}

// RecordSync records one asset synchronization.
func (m *Metrics) RecordSync(kind string) {
	m.syncsTotal.WithLabelValues(kind).Inc()
}

// ClientConnected records a reload client attaching.
func (m *Metrics) ClientConnected() {
	m.reloadClients.Inc()
}

// ClientDisconnected records a reload client detaching.
func (m *Metrics) ClientDisconnected() {
	m.reloadClients.Dec()
}
