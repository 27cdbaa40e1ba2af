// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// ============================================================================
// Test Helper: Create isolated metrics for testing
// ============================================================================

// newTestMetrics creates a StreamingMetrics instance with a custom registry.
// This avoids conflicts with the global Prometheus registry and allows
// parallel testing.
func newTestMetrics(t *testing.T) *StreamingMetrics {
	t.Helper()

	reg := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: streamingSubsystem,
			Name:      "requests_total",
			Help:      "Total number of requests by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: streamingSubsystem,
			Name:      "events_total",
			Help:      "Total emitted events by endpoint and event type",
		},
		[]string{"endpoint", "type"},
	)

	candidateTokens := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: streamingSubsystem,
			Name:      "candidate_tokens",
			Help:      "Communication token score per evaluated rule",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
	)

	streamDurationSeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: streamingSubsystem,
			Name:      "stream_duration_seconds",
			Help:      "Total stream duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"endpoint", "status"},
	)

	activeStreams := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: streamingSubsystem,
			Name:      "active_streams",
			Help:      "Number of currently active streaming connections",
		},
		[]string{"endpoint"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: streamingSubsystem,
			Name:      "errors_total",
			Help:      "Total errors by type and endpoint",
		},
		[]string{"endpoint", "error_code"},
	)

	keepAlivesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: streamingSubsystem,
			Name:      "keepalives_total",
			Help:      "Total keepalive pings sent",
		},
		[]string{"endpoint"},
	)

	clientDisconnectsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: streamingSubsystem,
			Name:      "client_disconnects_total",
			Help:      "Total client disconnections during streaming",
		},
		[]string{"endpoint"},
	)

	reg.MustRegister(
		requestsTotal,
		eventsTotal,
		candidateTokens,
		streamDurationSeconds,
		activeStreams,
		errorsTotal,
		keepAlivesTotal,
		clientDisconnectsTotal,
	)

	return &StreamingMetrics{
		RequestsTotal:          requestsTotal,
		EventsTotal:            eventsTotal,
		CandidateTokens:        candidateTokens,
		StreamDurationSeconds:  streamDurationSeconds,
		ActiveStreams:          activeStreams,
		ErrorsTotal:            errorsTotal,
		KeepAlivesTotal:        keepAlivesTotal,
		ClientDisconnectsTotal: clientDisconnectsTotal,
	}
}

// ============================================================================
// InitMetrics Tests
// ============================================================================

// Note: InitMetrics uses promauto which registers with the default Prometheus
// registry. Registration happens on the first call only; later calls hand
// back the same instance.
func TestInitMetrics(t *testing.T) {
	result := InitMetrics()

	if result == nil {
		t.Fatal("InitMetrics() returned nil")
	}
	if DefaultMetrics == nil {
		t.Fatal("DefaultMetrics should be set after InitMetrics()")
	}
	if DefaultMetrics != result {
		t.Error("DefaultMetrics should equal the returned value")
	}

	if result.RequestsTotal == nil {
		t.Error("RequestsTotal should not be nil")
	}
	if result.EventsTotal == nil {
		t.Error("EventsTotal should not be nil")
	}
	if result.CandidateTokens == nil {
		t.Error("CandidateTokens should not be nil")
	}
	if result.StreamDurationSeconds == nil {
		t.Error("StreamDurationSeconds should not be nil")
	}
	if result.ActiveStreams == nil {
		t.Error("ActiveStreams should not be nil")
	}
	if result.ErrorsTotal == nil {
		t.Error("ErrorsTotal should not be nil")
	}
	if result.KeepAlivesTotal == nil {
		t.Error("KeepAlivesTotal should not be nil")
	}
	if result.ClientDisconnectsTotal == nil {
		t.Error("ClientDisconnectsTotal should not be nil")
	}

	// Verify the singleton is usable
	result.RecordRequest(EndpointRun, true)
	result.RecordError(EndpointOptimizeStream, ErrorCodeTimeout)
	result.RecordEvent(EndpointOptimizeStream, "candidate_evaluated")
	result.RecordCandidateTokens(120)
	result.StreamStarted(EndpointRunStream)
	result.StreamEnded(EndpointRunStream)

	// A second call must not re-register collectors.
	if again := InitMetrics(); again != result {
		t.Error("InitMetrics() should return the same instance on repeat calls")
	}
}

// ============================================================================
// Constants Tests
// ============================================================================

func TestConstants(t *testing.T) {
	if metricsNamespace != "optcom" {
		t.Errorf("metricsNamespace = %q, want %q", metricsNamespace, "optcom")
	}
	if streamingSubsystem != "streaming" {
		t.Errorf("streamingSubsystem = %q, want %q", streamingSubsystem, "streaming")
	}
}

func TestEndpointConstants(t *testing.T) {
	tests := []struct {
		endpoint Endpoint
		want     string
	}{
		{EndpointRun, "run"},
		{EndpointRunStream, "run_stream"},
		{EndpointOptimize, "optimize"},
		{EndpointOptimizeStream, "optimize_stream"},
		{EndpointTTS, "tts"},
	}

	for _, tt := range tests {
		if string(tt.endpoint) != tt.want {
			t.Errorf("Endpoint = %q, want %q", tt.endpoint, tt.want)
		}
	}
}

func TestErrorCodeConstants(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{ErrorCodeValidation, "validation"},
		{ErrorCodeLLMError, "llm_error"},
		{ErrorCodeProviderError, "provider_error"},
		{ErrorCodeTimeout, "timeout"},
		{ErrorCodeInternal, "internal"},
		{ErrorCodeClientDisconnect, "client_disconnect"},
	}

	for _, tt := range tests {
		if string(tt.code) != tt.want {
			t.Errorf("ErrorCode = %q, want %q", tt.code, tt.want)
		}
	}
}

// ============================================================================
// Counter Tests
// ============================================================================

func TestStreamingMetrics_RecordRequest(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordRequest(EndpointRun, true)
	m.RecordRequest(EndpointRun, true)
	m.RecordRequest(EndpointRun, false)
	m.RecordRequest(EndpointTTS, true)

	successVal := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("run", "success"))
	if successVal != 2 {
		t.Errorf("RequestsTotal[run,success] = %f, want 2", successVal)
	}
	errorVal := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("run", "error"))
	if errorVal != 1 {
		t.Errorf("RequestsTotal[run,error] = %f, want 1", errorVal)
	}
	ttsVal := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("tts", "success"))
	if ttsVal != 1 {
		t.Errorf("RequestsTotal[tts,success] = %f, want 1", ttsVal)
	}
}

func TestStreamingMetrics_RecordError(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordError(EndpointOptimizeStream, ErrorCodeLLMError)
	m.RecordError(EndpointOptimizeStream, ErrorCodeLLMError)
	m.RecordError(EndpointTTS, ErrorCodeProviderError)

	llmVal := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("optimize_stream", "llm_error"))
	if llmVal != 2 {
		t.Errorf("ErrorsTotal[optimize_stream,llm_error] = %f, want 2", llmVal)
	}
	providerVal := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("tts", "provider_error"))
	if providerVal != 1 {
		t.Errorf("ErrorsTotal[tts,provider_error] = %f, want 1", providerVal)
	}
}

func TestStreamingMetrics_RecordEvent(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordEvent(EndpointOptimizeStream, "base_evaluated")
	m.RecordEvent(EndpointOptimizeStream, "candidate_evaluated")
	m.RecordEvent(EndpointOptimizeStream, "candidate_evaluated")
	m.RecordEvent(EndpointRunStream, "agent_message")

	candidateVal := testutil.ToFloat64(m.EventsTotal.WithLabelValues("optimize_stream", "candidate_evaluated"))
	if candidateVal != 2 {
		t.Errorf("EventsTotal[optimize_stream,candidate_evaluated] = %f, want 2", candidateVal)
	}
	messageVal := testutil.ToFloat64(m.EventsTotal.WithLabelValues("run_stream", "agent_message"))
	if messageVal != 1 {
		t.Errorf("EventsTotal[run_stream,agent_message] = %f, want 1", messageVal)
	}
}

// ============================================================================
// Gauge and Histogram Tests
// ============================================================================

func TestStreamingMetrics_StreamLifecycle(t *testing.T) {
	m := newTestMetrics(t)

	m.StreamStarted(EndpointOptimizeStream)
	m.StreamStarted(EndpointOptimizeStream)

	val := testutil.ToFloat64(m.ActiveStreams.WithLabelValues("optimize_stream"))
	if val != 2 {
		t.Errorf("After 2 starts: ActiveStreams = %f, want 2", val)
	}

	m.StreamEnded(EndpointOptimizeStream)
	m.StreamEnded(EndpointOptimizeStream)

	val = testutil.ToFloat64(m.ActiveStreams.WithLabelValues("optimize_stream"))
	if val != 0 {
		t.Errorf("After all ends: ActiveStreams = %f, want 0", val)
	}
}

func TestStreamingMetrics_RecordCandidateTokens(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordCandidateTokens(42)
	m.RecordCandidateTokens(730)

	count := testutil.CollectAndCount(m.CandidateTokens)
	if count == 0 {
		t.Error("Expected the candidate tokens histogram to be collected")
	}
}

func TestStreamingMetrics_RecordStreamDuration(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordStreamDuration(EndpointRunStream, 12.0, true)
	m.RecordStreamDuration(EndpointOptimizeStream, 240.0, false)

	// Just verify no panics; histogram internals are prometheus's concern.
}

func TestStreamingMetrics_RecordKeepAlive(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordKeepAlive(EndpointOptimizeStream)
	m.RecordKeepAlive(EndpointOptimizeStream)

	val := testutil.ToFloat64(m.KeepAlivesTotal.WithLabelValues("optimize_stream"))
	if val != 2 {
		t.Errorf("KeepAlivesTotal[optimize_stream] = %f, want 2", val)
	}
}

func TestStreamingMetrics_RecordClientDisconnect(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordClientDisconnect(EndpointRunStream)

	val := testutil.ToFloat64(m.ClientDisconnectsTotal.WithLabelValues("run_stream"))
	if val != 1 {
		t.Errorf("ClientDisconnectsTotal[run_stream] = %f, want 1", val)
	}
}

// ============================================================================
// Scenario Tests
// ============================================================================

func TestStreamingMetrics_CompleteOptimizationScenario(t *testing.T) {
	m := newTestMetrics(t)

	m.StreamStarted(EndpointOptimizeStream)
	m.RecordEvent(EndpointOptimizeStream, "base_evaluated")
	m.RecordCandidateTokens(310)
	m.RecordKeepAlive(EndpointOptimizeStream)
	m.RecordEvent(EndpointOptimizeStream, "candidate_evaluated")
	m.RecordCandidateTokens(120)
	m.RecordEvent(EndpointOptimizeStream, "best_updated")
	m.RecordEvent(EndpointOptimizeStream, "done")
	m.RecordStreamDuration(EndpointOptimizeStream, 95.0, true)
	m.StreamEnded(EndpointOptimizeStream)
	m.RecordRequest(EndpointOptimizeStream, true)

	activeVal := testutil.ToFloat64(m.ActiveStreams.WithLabelValues("optimize_stream"))
	if activeVal != 0 {
		t.Errorf("ActiveStreams should be 0 after stream ended, got %f", activeVal)
	}
	requestsVal := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("optimize_stream", "success"))
	if requestsVal != 1 {
		t.Errorf("RequestsTotal[success] should be 1, got %f", requestsVal)
	}
	doneVal := testutil.ToFloat64(m.EventsTotal.WithLabelValues("optimize_stream", "done"))
	if doneVal != 1 {
		t.Errorf("EventsTotal[done] should be 1, got %f", doneVal)
	}
}

// ============================================================================
// Concurrent Safety Tests
// ============================================================================

func TestStreamingMetrics_ConcurrentSafety(t *testing.T) {
	m := newTestMetrics(t)

	done := make(chan bool, 60)

	for i := 0; i < 20; i++ {
		go func() {
			m.RecordRequest(EndpointRun, true)
			done <- true
		}()
	}
	for i := 0; i < 20; i++ {
		go func() {
			m.RecordEvent(EndpointOptimizeStream, "candidate_evaluated")
			m.RecordCandidateTokens(50)
			done <- true
		}()
	}
	for i := 0; i < 20; i++ {
		go func() {
			m.StreamStarted(EndpointRunStream)
			m.StreamEnded(EndpointRunStream)
			done <- true
		}()
	}

	for i := 0; i < 60; i++ {
		<-done
	}

	requestsVal := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("run", "success"))
	if requestsVal != 20 {
		t.Errorf("RequestsTotal[run,success] = %f, want 20", requestsVal)
	}
	eventsVal := testutil.ToFloat64(m.EventsTotal.WithLabelValues("optimize_stream", "candidate_evaluated"))
	if eventsVal != 20 {
		t.Errorf("EventsTotal[optimize_stream,candidate_evaluated] = %f, want 20", eventsVal)
	}
	activeVal := testutil.ToFloat64(m.ActiveStreams.WithLabelValues("run_stream"))
	if activeVal != 0 {
		t.Errorf("ActiveStreams[run_stream] = %f, want 0", activeVal)
	}
}
