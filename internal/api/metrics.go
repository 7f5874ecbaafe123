package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mayuresh141/urbanhcf/internal/model"
	"github.com/mayuresh141/urbanhcf/internal/pipeline"
)

// Metrics holds the server's Prometheus collectors. Each Metrics owns its
// registry so that several servers (and tests) never collide.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	AnalyzeTotal    *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	GeocodeTotal    *prometheus.CounterVec
	SlotsInUse      prometheus.Gauge
}

// NewMetrics creates the collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),

		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"route"},
		),

		AnalyzeTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analyze_total",
				Help:      "Analysis runs by outcome and error kind",
			},
			[]string{"outcome", "kind"},
		),

		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pipeline_stage_duration_seconds",
				Help:      "Pipeline stage duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"stage", "outcome"},
		),

		GeocodeTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "geocode_total",
				Help:      "Geocode lookups by outcome",
			},
			[]string{"outcome"},
		),

		SlotsInUse: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "analyze_slots_in_use",
				Help:      "Analysis worker slots currently held",
			},
		),
	}
}

// ObserveStage records one pipeline stage. It satisfies pipeline.StageObserver.
func (m *Metrics) ObserveStage(stage pipeline.Stage, d time.Duration, err error) {
	m.StageDuration.WithLabelValues(string(stage), outcome(err)).Observe(d.Seconds())
}

// RecordAnalyze counts one finished analysis.
func (m *Metrics) RecordAnalyze(err error) {
	kind := string(model.KindOf(err))
	if err != nil && kind == "" {
		kind = "internal"
	}
	m.AnalyzeTotal.WithLabelValues(outcome(err), kind).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
