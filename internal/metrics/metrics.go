// Package metrics exports the order engine's counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kingrea/layerdeck/internal/layer"
	"github.com/kingrea/layerdeck/internal/order"
)

const namespace = "layerdeck"

// PrometheusRecorder implements order.Recorder on its own registry so tests
// and multiple workspaces never collide on the global one.
type PrometheusRecorder struct {
	registry      *prometheus.Registry
	commitsTotal  *prometheus.CounterVec
	rebuildsTotal *prometheus.CounterVec
	rebuildIssues prometheus.Histogram
	verifyFaults  prometheus.Counter
	verifications prometheus.Counter
	surfaceSkips  *prometheus.CounterVec
}

var _ order.Recorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder registers the engine metrics plus the Go and process
// collectors.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	r := &PrometheusRecorder{
		registry: registry,
		commitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Reorder commits by how much of the stack was updated (none, full, view-only).",
		}, []string{"applied"}),
		rebuildsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rebuilds_total",
			Help:      "Order rebuilds by trigger.",
		}, []string{"trigger"}),
		rebuildIssues: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rebuild_remaining_issues",
			Help:      "Verification findings left after a rebuild.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25},
		}),
		verifyFaults: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verification_faults_total",
			Help:      "Verification findings across all verification passes.",
		}),
		verifications: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Verification passes run.",
		}),
		surfaceSkips: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "surface_skips_total",
			Help:      "Entries the z-index assigner skipped, by kind and reason.",
		}, []string{"kind", "reason"}),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveCommit counts one reorder commit.
func (p *PrometheusRecorder) ObserveCommit(mode order.Applied) {
	p.commitsTotal.WithLabelValues(string(mode)).Inc()
}

// ObserveRebuild counts one rebuild and the issues it could not fix.
func (p *PrometheusRecorder) ObserveRebuild(trigger string, issues int) {
	if trigger == "" {
		trigger = "unknown"
	}
	p.rebuildsTotal.WithLabelValues(trigger).Inc()
	p.rebuildIssues.Observe(float64(issues))
}

// ObserveVerification counts one verification pass.
func (p *PrometheusRecorder) ObserveVerification(issues int) {
	p.verifications.Inc()
	if issues > 0 {
		p.verifyFaults.Add(float64(issues))
	}
}

// ObserveSurfaceSkip counts one entry left without a paint index.
func (p *PrometheusRecorder) ObserveSurfaceSkip(kind layer.Kind, reason string) {
	p.surfaceSkips.WithLabelValues(kind.String(), reason).Inc()
}

// Registry exposes the registry for tests and extra collectors.
func (p *PrometheusRecorder) Registry() *prometheus.Registry { return p.registry }

// Handler serves the registry in the Prometheus text format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}
