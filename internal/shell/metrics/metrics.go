// Package metrics exposes provisioning lifecycle metrics to Prometheus.
// It implements the orchestrator's MetricsRecorder interface; the daemon
// registers everything against one registry and serves it on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/domain"
	"github.com/michaelayoade/dotmac-framework-sub020/internal/shell/provision"
)

// Provisioning runs take seconds to minutes; the default buckets top out
// far too early for them.
var durationBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200}

// Metrics holds the provisioning collectors.
type Metrics struct {
	started   *prometheus.CounterVec
	finished  *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	rollbacks *prometheus.CounterVec
	active    prometheus.Gauge
}

var _ provision.MetricsRecorder = (*Metrics)(nil)

// New creates and registers the provisioning collectors. A nil registerer
// falls back to the process default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		started: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dotmac_provisioner_operations_started_total",
				Help: "Total number of provisioning operations started, by infrastructure.",
			},
			[]string{"infrastructure"},
		),
		finished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dotmac_provisioner_operations_finished_total",
				Help: "Total number of finished provisioning operations, by infrastructure and final status.",
			},
			[]string{"infrastructure", "status"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dotmac_provisioner_failures_total",
				Help: "Total number of failed provisioning operations, by infrastructure and failing stage.",
			},
			[]string{"infrastructure", "stage"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dotmac_provisioner_operation_duration_seconds",
				Help:    "End-to-end provisioning duration in seconds, by infrastructure and final status.",
				Buckets: durationBuckets,
			},
			[]string{"infrastructure", "status"},
		),
		rollbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dotmac_provisioner_rollbacks_total",
				Help: "Total number of rollbacks, by infrastructure and whether teardown completed.",
			},
			[]string{"infrastructure", "completed"},
		),
		active: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dotmac_provisioner_active_operations",
				Help: "Number of provisioning operations currently in flight.",
			},
		),
	}
}

// OperationStarted records the start of a provisioning run.
func (m *Metrics) OperationStarted(infra domain.InfrastructureType) {
	m.started.WithLabelValues(string(infra)).Inc()
	m.active.Inc()
}

// OperationFinished records the outcome and duration of a finished run. The
// stage is only set for failed runs.
func (m *Metrics) OperationFinished(infra domain.InfrastructureType, status domain.ProvisioningStatus, stage domain.ProvisioningStage, duration time.Duration) {
	m.finished.WithLabelValues(string(infra), string(status)).Inc()
	m.duration.WithLabelValues(string(infra), string(status)).Observe(duration.Seconds())
	if stage != "" {
		m.failures.WithLabelValues(string(infra), string(stage)).Inc()
	}
	m.active.Dec()
}

// RollbackRecorded records a rollback and whether it removed everything.
func (m *Metrics) RollbackRecorded(infra domain.InfrastructureType, completed bool) {
	m.rollbacks.WithLabelValues(string(infra), strconv.FormatBool(completed)).Inc()
}

// Handler returns the scrape handler for a registry. A nil gatherer serves
// the process default registry.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
