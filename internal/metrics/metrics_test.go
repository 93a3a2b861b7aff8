package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveTurn(2*time.Second, nil)
	m.ObserveTurn(time.Second, errors.New("boom"))
	m.ObserveLLMCall("decide", "function_call", 300*time.Millisecond)
	m.ObserveToolCall("send_message", false)
	m.ObserveToolCall("send_message", true)
	m.ObserveConfirmation("confirm")
	m.ObserveSpeech("synthesize", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LLMCallsTotal.WithLabelValues("decide", "function_call")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("send_message", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConfirmationsTotal.WithLabelValues("confirm")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SpeechCallsTotal.WithLabelValues("synthesize", "ok")))

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "textanddrive_turn_duration_seconds")
	assert.Contains(t, names, "textanddrive_llm_call_duration_seconds")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTurn(time.Second, nil)
		m.ObserveLLMCall("confirm", "text", time.Second)
		m.ObserveToolCall("get_chats", false)
		m.ObserveConfirmation("none")
		m.ObserveSpeech("transcribe", nil)
	})
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
