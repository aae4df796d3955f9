// Package observe provides application-wide observability primitives for
// SignConnect: OpenTelemetry metrics with a Prometheus exporter bridge so the
// standard /metrics endpoint keeps working.
//
// A package-level default Metrics instance (DefaultMetrics) is provided for
// convenience; tests should use NewMetrics with a custom
// metric.MeterProvider to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all SignConnect metrics.
const meterName = "github.com/HowDiggy/signconnect"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// SuggestionDuration tracks end-to-end suggestion generation latency,
	// from transcript to suggestion list.
	SuggestionDuration metric.Float64Histogram

	// EmbeddingDuration tracks embedding API latency.
	EmbeddingDuration metric.Float64Histogram

	// LLMDuration tracks LLM completion latency.
	LLMDuration metric.Float64Histogram

	// --- Counters ---

	// TranscriptEvents counts transcript events delivered to clients.
	// Use with attribute.String("kind", "interim"|"final").
	TranscriptEvents metric.Int64Counter

	// SessionRestarts counts invisible STT session restarts.
	// Use with attribute.String("reason", "transient"|"inactivity").
	SessionRestarts metric.Int64Counter

	// AudioFramesDropped counts audio frames discarded because the
	// ingestion queue was full.
	AudioFramesDropped metric.Int64Counter

	// SuggestionFallbacks counts suggestion requests answered with the
	// static fallback list.
	SuggestionFallbacks metric.Int64Counter

	// AuthFailures counts rejected websocket handshakes.
	// Use with attribute.String("reason", ...).
	AuthFailures metric.Int64Counter

	// --- Gauges ---

	// ActiveConnections tracks the number of live websocket connections.
	ActiveConnections metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// conversational latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised Metrics struct using the given
// metric.MeterProvider. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SuggestionDuration, err = m.Float64Histogram("signconnect.suggestion.duration",
		metric.WithDescription("End-to-end latency of suggestion generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbeddingDuration, err = m.Float64Histogram("signconnect.embedding.duration",
		metric.WithDescription("Latency of embedding requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("signconnect.llm.duration",
		metric.WithDescription("Latency of LLM completions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.TranscriptEvents, err = m.Int64Counter("signconnect.transcript.events",
		metric.WithDescription("Transcript events delivered to clients by kind."),
	); err != nil {
		return nil, err
	}
	if met.SessionRestarts, err = m.Int64Counter("signconnect.stt.session_restarts",
		metric.WithDescription("Invisible STT session restarts by reason."),
	); err != nil {
		return nil, err
	}
	if met.AudioFramesDropped, err = m.Int64Counter("signconnect.audio.frames_dropped",
		metric.WithDescription("Audio frames discarded because the ingestion queue was full."),
	); err != nil {
		return nil, err
	}
	if met.SuggestionFallbacks, err = m.Int64Counter("signconnect.suggestion.fallbacks",
		metric.WithDescription("Suggestion requests answered with the static fallback list."),
	); err != nil {
		return nil, err
	}
	if met.AuthFailures, err = m.Int64Counter("signconnect.auth.failures",
		metric.WithDescription("Rejected websocket handshakes by reason."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveConnections, err = m.Int64UpDownCounter("signconnect.active_connections",
		metric.WithDescription("Number of live websocket connections."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level Metrics instance, creating it on
// first call using otel.GetMeterProvider. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordTranscriptEvent records one delivered transcript event. A nil
// receiver is a no-op so pipeline components can run unmetered in tests.
func (m *Metrics) RecordTranscriptEvent(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.TranscriptEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordSessionRestart records one STT session restart. Nil-receiver no-op.
func (m *Metrics) RecordSessionRestart(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.SessionRestarts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordDroppedFrames records n discarded audio frames. Nil-receiver no-op.
func (m *Metrics) RecordDroppedFrames(ctx context.Context, n int64) {
	if m == nil || n == 0 {
		return
	}
	m.AudioFramesDropped.Add(ctx, n)
}

// RecordSuggestionFallback records one fallback suggestion response.
// Nil-receiver no-op.
func (m *Metrics) RecordSuggestionFallback(ctx context.Context) {
	if m == nil {
		return
	}
	m.SuggestionFallbacks.Add(ctx, 1)
}

// RecordAuthFailure records one rejected handshake. Nil-receiver no-op.
func (m *Metrics) RecordAuthFailure(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.AuthFailures.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)))
}

// ConnectionOpened increments the active connection gauge. Nil-receiver no-op.
func (m *Metrics) ConnectionOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveConnections.Add(ctx, 1)
}

// ConnectionClosed decrements the active connection gauge. Nil-receiver no-op.
func (m *Metrics) ConnectionClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveConnections.Add(ctx, -1)
}
