// internal/migration/metrics.go
package migration

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the migration Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	MigrationsStarted  *prometheus.CounterVec
	MigrationsFinished *prometheus.CounterVec
	MigrationDuration  *prometheus.HistogramVec
	Rows               *prometheus.CounterVec
	TablesVerified     *prometheus.CounterVec
	BackendStarts      *prometheus.CounterVec
}

// NewMetrics creates the metrics on a private registry.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		MigrationsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "migrations_started_total",
				Help:      "Total number of migrations started",
			},
			[]string{"type"},
		),
		MigrationsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "migrations_finished_total",
				Help:      "Total number of migrations finished, by outcome",
			},
			[]string{"type", "outcome"},
		),
		MigrationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "migration_duration_seconds",
				Help:      "Migration duration in seconds",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"type"},
		),
		Rows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "migration_rows_total",
				Help:      "Rows reported by migration streams, by kind",
			},
			[]string{"kind"},
		),
		TablesVerified: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tables_verified_total",
				Help:      "Post-migration table verifications, by outcome",
			},
			[]string{"outcome"},
		),
		BackendStarts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_autostart_total",
				Help:      "Backend auto-start attempts, by outcome",
			},
			[]string{"outcome"},
		),
	}

	m.registry.MustRegister(
		m.MigrationsStarted,
		m.MigrationsFinished,
		m.MigrationDuration,
		m.Rows,
		m.TablesVerified,
		m.BackendStarts,
	)
	return m
}

// Handler returns the HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordMigration records a finished run. A nil Metrics is a no-op.
func (m *Metrics) RecordMigration(t Type, outcome string, started time.Time, r *Result) {
	if m == nil {
		return
	}
	m.MigrationsFinished.WithLabelValues(string(t), outcome).Inc()
	m.MigrationDuration.WithLabelValues(string(t)).Observe(time.Since(started).Seconds())
	if r != nil {
		m.Rows.WithLabelValues("migrated").Add(float64(r.TotalRowsMigrated))
		m.Rows.WithLabelValues("skipped").Add(float64(r.TotalRowsSkipped))
		m.Rows.WithLabelValues("errored").Add(float64(r.TotalErrors))
	}
}

func (m *Metrics) startedMigration(t Type) {
	if m != nil {
		m.MigrationsStarted.WithLabelValues(string(t)).Inc()
	}
}

func (m *Metrics) verified(outcome string) {
	if m != nil {
		m.TablesVerified.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) backendStart(outcome string) {
	if m != nil {
		m.BackendStarts.WithLabelValues(outcome).Inc()
	}
}
