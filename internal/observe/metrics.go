// Package observe provides application-wide observability primitives for
// voxcast: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxcast metrics.
const meterName = "github.com/MrWong99/voxcast"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// STTDuration tracks how long a listening session took to produce its
	// transcript.
	STTDuration metric.Float64Histogram

	// TickDuration tracks the wall time spent in one authoritative tick.
	TickDuration metric.Float64Histogram

	// --- Counters ---

	// CastRequests counts cast requests by pipeline outcome. Use with attributes:
	//   attribute.String("outcome", ...), attribute.String("spell", ...)
	CastRequests metric.Int64Counter

	// CastRefunds counts mana refunds. Use with attribute:
	//   attribute.String("reason", ...)
	CastRefunds metric.Int64Counter

	// ListenSessions counts started listening sessions. Use with attribute:
	//   attribute.String("kind", ...)
	ListenSessions metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActorsConnected tracks the number of connected actors.
	ActorsConnected metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// recognition latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 6, 10,
}

// tickBuckets covers the sub-tick range of a 20 Hz loop.
var tickBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("voxcast.stt.duration",
		metric.WithDescription("Latency of a listening session from start to transcript."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TickDuration, err = m.Float64Histogram("voxcast.tick.duration",
		metric.WithDescription("Wall time of one authoritative tick."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(tickBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.CastRequests, err = m.Int64Counter("voxcast.cast.requests",
		metric.WithDescription("Total cast requests by outcome and spell."),
	); err != nil {
		return nil, err
	}
	if met.CastRefunds, err = m.Int64Counter("voxcast.cast.refunds",
		metric.WithDescription("Total mana refunds by reason."),
	); err != nil {
		return nil, err
	}
	if met.ListenSessions, err = m.Int64Counter("voxcast.listen.sessions",
		metric.WithDescription("Total listening sessions by session kind."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("voxcast.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("voxcast.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActorsConnected, err = m.Int64UpDownCounter("voxcast.actors.connected",
		metric.WithDescription("Number of connected actors."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxcast.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// RecordCast records one cast request with its pipeline outcome.
func (m *Metrics) RecordCast(ctx context.Context, outcome, spell string) {
	m.CastRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.String("spell", spell),
		),
	)
}

// RecordRefund records one mana refund.
func (m *Metrics) RecordRefund(ctx context.Context, reason string) {
	m.CastRefunds.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordListenSession records a started listening session of the given kind
// ("engine" or "stub").
func (m *Metrics) RecordListenSession(ctx context.Context, kind string) {
	m.ListenSessions.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
