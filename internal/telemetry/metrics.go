// Package telemetry exposes the engine's Prometheus metrics and adapts
// them to the transform system's Recorder hook.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"idle-engine/core/internal/transform"
)

// Metrics owns the engine's metric registry.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal        *prometheus.CounterVec
	blockedTotal     *prometheus.CounterVec
	batchesScheduled *prometheus.CounterVec
	batchesDelivered *prometheus.CounterVec
	missionOutcomes  *prometheus.CounterVec
	stepsTotal       prometheus.Counter
}

// NewMetrics builds and registers the engine metrics on a private
// registry so tests can run side by side.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_transform_runs_total",
			Help: "Committed transform runs by transform and mode.",
		}, []string{"transform", "mode"}),
		blockedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_transform_blocked_total",
			Help: "Gated trigger-driven attempts by transform and error code.",
		}, []string{"transform", "code"}),
		batchesScheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_transform_batches_scheduled_total",
			Help: "Scheduled batch and mission completions by transform.",
		}, []string{"transform"}),
		batchesDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_transform_batches_delivered_total",
			Help: "Delivered batch and mission completions by transform.",
		}, []string{"transform"}),
		missionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_transform_mission_outcomes_total",
			Help: "Rolled mission outcomes by transform and result.",
		}, []string{"transform", "outcome"}),
		stepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_steps_total",
			Help: "Completed simulation steps.",
		}),
	}
	registry.MustRegister(
		m.runsTotal,
		m.blockedTotal,
		m.batchesScheduled,
		m.batchesDelivered,
		m.missionOutcomes,
		m.stepsTotal,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StepCompleted counts one finished simulation step.
func (m *Metrics) StepCompleted() {
	if m == nil {
		return
	}
	m.stepsTotal.Inc()
}

// TransformExecuted implements transform.Recorder.
func (m *Metrics) TransformExecuted(id string, mode transform.Mode) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(id, string(mode)).Inc()
}

// TransformBlocked implements transform.Recorder.
func (m *Metrics) TransformBlocked(id string, code transform.ErrorCode) {
	if m == nil {
		return
	}
	m.blockedTotal.WithLabelValues(id, string(code)).Inc()
}

// BatchScheduled implements transform.Recorder.
func (m *Metrics) BatchScheduled(id string) {
	if m == nil {
		return
	}
	m.batchesScheduled.WithLabelValues(id).Inc()
}

// BatchDelivered implements transform.Recorder.
func (m *Metrics) BatchDelivered(id string) {
	if m == nil {
		return
	}
	m.batchesDelivered.WithLabelValues(id).Inc()
}

// MissionResolved implements transform.Recorder.
func (m *Metrics) MissionResolved(id string, outcome bool) {
	if m == nil {
		return
	}
	label := "failure"
	if outcome {
		label = "success"
	}
	m.missionOutcomes.WithLabelValues(id, label).Inc()
}

var _ transform.Recorder = (*Metrics)(nil)
