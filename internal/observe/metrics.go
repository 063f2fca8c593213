// Package observe provides application-wide observability primitives for
// Tacet: OpenTelemetry metrics, tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Tacet metrics.
const meterName = "github.com/tacetio/tacet"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// WaveDuration tracks end-to-end correction wave latency.
	WaveDuration metric.Float64Histogram

	// StageDuration tracks per-stage model latency. Use with attribute:
	//   attribute.String("stage", ...)
	StageDuration metric.Float64Histogram

	// SweepDuration tracks how long the visual sweep animation ran before the
	// atomic text swap.
	SweepDuration metric.Float64Histogram

	// HTTPRequestDuration tracks bridge HTTP request processing time. Use
	// with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// RegionBytes tracks the size of computed active regions.
	RegionBytes metric.Int64Histogram

	// --- Counters ---

	// WavesStarted counts correction waves entered.
	WavesStarted metric.Int64Counter

	// WavesCompleted counts finished waves. Use with attribute:
	//   attribute.String("status", ...) — corrected, no_change, empty_region,
	//   model_not_loaded, cancelled, timeout, abandoned
	WavesCompleted metric.Int64Counter

	// StagesSkipped counts stages that produced no correction. Use with
	// attributes:
	//   attribute.String("stage", ...), attribute.String("reason", ...)
	StagesSkipped metric.Int64Counter

	// CorrectionsApplied counts corrections committed to the document. Use
	// with attribute:
	//   attribute.String("source", ...) — sweep or forced
	CorrectionsApplied metric.Int64Counter

	// CompletionTokens counts tokens exchanged with the model. Use with
	// attribute:
	//   attribute.String("kind", ...) — prompt or completion
	CompletionTokens metric.Int64Counter

	// EventsDropped counts monitor events discarded because a subscriber fell
	// behind.
	EventsDropped metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live bridge streaming sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for keystroke-to-correction latencies.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// regionBuckets defines bucket boundaries (in bytes) for active region sizes.
// The policy caps regions at 500 bytes, so the top bucket catches cap hits.
var regionBuckets = []float64{
	16, 32, 64, 128, 256, 512,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.WaveDuration, err = m.Float64Histogram("tacet.wave.duration",
		metric.WithDescription("End-to-end latency of a correction wave."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StageDuration, err = m.Float64Histogram("tacet.stage.duration",
		metric.WithDescription("Latency of one correction stage by stage name."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SweepDuration, err = m.Float64Histogram("tacet.sweep.duration",
		metric.WithDescription("Duration of the sweep preceding an atomic swap."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("tacet.http.request.duration",
		metric.WithDescription("Bridge HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.RegionBytes, err = m.Int64Histogram("tacet.region.bytes",
		metric.WithDescription("Size of computed active regions in bytes."),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(regionBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.WavesStarted, err = m.Int64Counter("tacet.waves.started",
		metric.WithDescription("Total correction waves entered."),
	); err != nil {
		return nil, err
	}
	if met.WavesCompleted, err = m.Int64Counter("tacet.waves.completed",
		metric.WithDescription("Total correction waves finished by status."),
	); err != nil {
		return nil, err
	}
	if met.StagesSkipped, err = m.Int64Counter("tacet.stage.skipped",
		metric.WithDescription("Total stages skipped by stage name and reason."),
	); err != nil {
		return nil, err
	}
	if met.CorrectionsApplied, err = m.Int64Counter("tacet.corrections.applied",
		metric.WithDescription("Total corrections committed to the document by source."),
	); err != nil {
		return nil, err
	}
	if met.CompletionTokens, err = m.Int64Counter("tacet.completion.tokens",
		metric.WithDescription("Total tokens exchanged with the model by kind."),
	); err != nil {
		return nil, err
	}
	if met.EventsDropped, err = m.Int64Counter("tacet.events.dropped",
		metric.WithDescription("Total monitor events dropped on slow subscribers."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("tacet.bridge.sessions",
		metric.WithDescription("Number of live bridge streaming sessions."),
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordWaveStarted increments the started-waves counter.
func (m *Metrics) RecordWaveStarted(ctx context.Context) {
	m.WavesStarted.Add(ctx, 1)
}

// RecordWaveCompleted records one finished wave with its duration and status.
func (m *Metrics) RecordWaveCompleted(ctx context.Context, status string, d time.Duration) {
	m.WavesCompleted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
	m.WaveDuration.Record(ctx, d.Seconds())
}

// RecordStageDuration records the latency of one correction stage.
func (m *Metrics) RecordStageDuration(ctx context.Context, stage string, d time.Duration) {
	m.StageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordStageSkipped counts a stage that produced no correction.
func (m *Metrics) RecordStageSkipped(ctx context.Context, stage, reason string) {
	m.StagesSkipped.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("reason", reason),
		),
	)
}

// RecordRegionBytes records the size of a computed active region.
func (m *Metrics) RecordRegionBytes(ctx context.Context, n int) {
	m.RegionBytes.Record(ctx, int64(n))
}

// RecordTokens records prompt and completion token usage for one model call.
func (m *Metrics) RecordTokens(ctx context.Context, prompt, completion int) {
	if prompt > 0 {
		m.CompletionTokens.Add(ctx, int64(prompt),
			metric.WithAttributes(attribute.String("kind", "prompt")),
		)
	}
	if completion > 0 {
		m.CompletionTokens.Add(ctx, int64(completion),
			metric.WithAttributes(attribute.String("kind", "completion")),
		)
	}
}

// RecordCorrectionApplied counts one correction committed to the document.
func (m *Metrics) RecordCorrectionApplied(ctx context.Context, source string) {
	m.CorrectionsApplied.Add(ctx, 1,
		metric.WithAttributes(attribute.String("source", source)),
	)
}

// RecordSweepDuration records how long a sweep ran before its swap.
func (m *Metrics) RecordSweepDuration(ctx context.Context, d time.Duration) {
	m.SweepDuration.Record(ctx, d.Seconds())
}

// RecordEventsDropped counts monitor events discarded on a slow subscriber.
func (m *Metrics) RecordEventsDropped(ctx context.Context, n int) {
	if n > 0 {
		m.EventsDropped.Add(ctx, int64(n))
	}
}

// AddActiveSessions moves the live streaming session gauge by delta. Pass 1
// when a session opens and -1 when it closes.
func (m *Metrics) AddActiveSessions(ctx context.Context, delta int64) {
	m.ActiveSessions.Add(ctx, delta)
}
