// Package metrics provides Prometheus instrumentation for assistant turns.
//
// All recorders are safe to call on a nil *Metrics, so components can run
// uninstrumented in tests and one-shot commands.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "textanddrive"

// Metrics holds every collector the assistant records into.
type Metrics struct {
	// TurnsTotal counts turns by outcome (ok, error).
	TurnsTotal *prometheus.CounterVec

	// TurnDurationSeconds measures a whole turn.
	TurnDurationSeconds prometheus.Histogram

	// LLMCallsTotal counts LLM calls by stage (decide, confirm) and reply kind
	// (function_call, text, error).
	LLMCallsTotal *prometheus.CounterVec

	// LLMCallDurationSeconds measures LLM calls by stage.
	LLMCallDurationSeconds *prometheus.HistogramVec

	// ToolCallsTotal counts dispatched tools by name and status (ok, error).
	ToolCallsTotal *prometheus.CounterVec

	// ConfirmationsTotal counts which rung of the fallback ladder produced the
	// spoken text (confirm, send_result, decide, canned, none).
	ConfirmationsTotal *prometheus.CounterVec

	// SpeechCallsTotal counts transcription and synthesis calls by status.
	SpeechCallsTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TurnsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Assistant turns by outcome",
		}, []string{"outcome"}),
		TurnDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Duration of a complete assistant turn",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		LLMCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "LLM calls by stage and reply kind",
		}, []string{"stage", "kind"}),
		LLMCallDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "LLM call latency by stage",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		ToolCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tools",
			Name:      "calls_total",
			Help:      "Tool dispatches by tool and status",
		}, []string{"tool", "status"}),
		ConfirmationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirmations_total",
			Help:      "Spoken confirmations by source",
		}, []string{"source"}),
		SpeechCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "speech",
			Name:      "calls_total",
			Help:      "Transcription and synthesis calls by operation and status",
		}, []string{"op", "status"}),
	}
}

func (m *Metrics) ObserveTurn(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(outcome(err)).Inc()
	m.TurnDurationSeconds.Observe(d.Seconds())
}

func (m *Metrics) ObserveLLMCall(stage, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.LLMCallsTotal.WithLabelValues(stage, kind).Inc()
	m.LLMCallDurationSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) ObserveToolCall(tool string, failed bool) {
	if m == nil {
		return
	}
	status := "ok"
	if failed {
		status = "error"
	}
	m.ToolCallsTotal.WithLabelValues(tool, status).Inc()
}

func (m *Metrics) ObserveConfirmation(source string) {
	if m == nil {
		return
	}
	m.ConfirmationsTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveSpeech(op string, err error) {
	if m == nil {
		return
	}
	m.SpeechCallsTotal.WithLabelValues(op, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
