package observability

import (
	"context"
	"log/slog"
	"strings"

	"relquery/internal/gqlrequest"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// GraphQLSpanAttributes returns span attributes describing the analyzed
// request.
func GraphQLSpanAttributes(analysis *gqlrequest.Analysis) []attribute.KeyValue {
	if analysis == nil {
		return nil
	}
	attrs := make([]attribute.KeyValue, 0, 9)
	if analysis.Envelope.OperationName != "" {
		attrs = append(attrs, attribute.String("graphql.operation.requested_name", analysis.Envelope.OperationName))
	}
	if analysis.OperationName != "" {
		attrs = append(attrs,
			attribute.String("graphql.operation.name", analysis.OperationName),
			attribute.String("graphql.operation.type", analysis.OperationType),
			attribute.String("graphql.operation.hash", analysis.OperationHash),
			attribute.StringSlice("graphql.query.root_fields", analysis.RootFields),
			attribute.Int("graphql.query.field_count", analysis.FieldCount),
			attribute.Int("graphql.query.depth", analysis.SelectionDepth),
			attribute.Int("graphql.query.variable_count", analysis.VariableCount),
		)
	}
	if analysis.Envelope.DocumentSizeBytes > 0 {
		attrs = append(attrs, attribute.Int("graphql.document.size_bytes", analysis.Envelope.DocumentSizeBytes))
	}
	return attrs
}

// GraphQLLogFields returns structured log fields for the analyzed request,
// plus the trace ID when ctx carries a valid span.
func GraphQLLogFields(ctx context.Context, analysis *gqlrequest.Analysis) []any {
	fields := make([]any, 0, 5)
	if analysis != nil && analysis.OperationName != "" {
		fields = append(fields,
			slog.String("operation_name", analysis.OperationName),
			slog.String("operation_type", analysis.OperationType),
			slog.String("operation_hash", analysis.OperationHash),
		)
		if len(analysis.RootFields) > 0 {
			fields = append(fields, slog.String("root_fields", strings.Join(analysis.RootFields, ",")))
		}
	}
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		fields = append(fields, slog.String("trace_id", spanCtx.TraceID().String()))
	}
	return fields
}
