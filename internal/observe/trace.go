package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/voxcast"

// Span attribute keys recorded on cast spans.
const (
	KeyActor   = attribute.Key("voxcast.actor")
	KeyNonce   = attribute.Key("voxcast.nonce")
	KeySpell   = attribute.Key("voxcast.spell")
	KeyOutcome = attribute.Key("voxcast.outcome")
)

// StartSpan starts a span on the global voxcast tracer. The caller must end
// it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// StartCastSpan starts the span covering one cast request.
func StartCastSpan(ctx context.Context, actor string, nonce int64) (context.Context, trace.Span) {
	return StartSpan(ctx, "cast.Handle", trace.WithAttributes(
		KeyActor.String(actor),
		KeyNonce.Int64(nonce),
	))
}

// EndCastSpan records how the request resolved and ends span.
func EndCastSpan(span trace.Span, spell, outcome string) {
	span.SetAttributes(KeySpell.String(spell), KeyOutcome.String(outcome))
	span.End()
}

// Logger returns the default logger with trace_id and span_id taken from
// the span in ctx. Without a span it is the default logger unchanged.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}

// CorrelationID is the trace id of the span in ctx, or "".
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}
