package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"relquery/internal/logging"
	"relquery/internal/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "relquery/graphql"

// GraphQLTracingMiddleware wraps GraphQL execution in a graphql.execute span
// and adds the trace and span IDs to the request logger.
func GraphQLTracingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			analysis := analysisFor(r)
			if strings.TrimSpace(analysis.Envelope.Query) == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx, span := otel.Tracer(tracerName).Start(r.Context(), "graphql.execute")
			defer span.End()

			if spanCtx := span.SpanContext(); spanCtx.IsValid() {
				ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithFields(
					slog.String("trace_id", spanCtx.TraceID().String()),
					slog.String("span_id", spanCtx.SpanID().String()),
				))
			}
			if !span.IsRecording() {
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			span.SetAttributes(observability.GraphQLSpanAttributes(analysis)...)
			rec := newResponseRecorder(w, true)
			next.ServeHTTP(rec, r.WithContext(ctx))

			failed := rec.failed()
			span.SetAttributes(
				attribute.Int("http.response.status_code", rec.statusCode),
				attribute.Bool("graphql.response.has_errors", failed),
			)
			if failed {
				span.SetStatus(codes.Error, "graphql response carried errors")
			}
		})
	}
}
