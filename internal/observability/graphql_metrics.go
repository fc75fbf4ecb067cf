package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// GraphQLMetrics holds HTTP-level metrics for GraphQL requests. Per-entity
// execution metrics live in QueryMetrics.
type GraphQLMetrics struct {
	requestDuration metric.Float64Histogram
	requestCounter  metric.Int64Counter
	errorCounter    metric.Int64Counter
	queryDepth      metric.Int64Histogram
	documentSize    metric.Int64Histogram
}

// NewGraphQLMetrics creates the metrics on provider; nil uses the global
// provider.
func NewGraphQLMetrics(provider metric.MeterProvider) (*GraphQLMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter("relquery/graphql")

	requestDuration, err := meter.Float64Histogram(
		"graphql.request.duration",
		metric.WithDescription("Duration of GraphQL HTTP requests in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	requestCounter, err := meter.Int64Counter(
		"graphql.requests.total",
		metric.WithDescription("Total number of GraphQL requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"graphql.errors.total",
		metric.WithDescription("Total number of GraphQL responses carrying errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	queryDepth, err := meter.Int64Histogram(
		"graphql.query.depth",
		metric.WithDescription("Selection depth of GraphQL operations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create query depth histogram: %w", err)
	}

	documentSize, err := meter.Int64Histogram(
		"graphql.document.size",
		metric.WithDescription("Size of GraphQL documents in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create document size histogram: %w", err)
	}

	return &GraphQLMetrics{
		requestDuration: requestDuration,
		requestCounter:  requestCounter,
		errorCounter:    errorCounter,
		queryDepth:      queryDepth,
		documentSize:    documentSize,
	}, nil
}

// RecordRequest records one GraphQL HTTP exchange.
func (m *GraphQLMetrics) RecordRequest(ctx context.Context, duration time.Duration, operationType string, hasErrors bool, depth, size int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation_type", operationType),
		attribute.Bool("has_errors", hasErrors),
	)
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.requestCounter.Add(ctx, 1, attrs)
	if hasErrors {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("operation_type", operationType)))
	}
	if depth > 0 {
		m.queryDepth.Record(ctx, int64(depth), metric.WithAttributes(attribute.String("operation_type", operationType)))
	}
	if size > 0 {
		m.documentSize.Record(ctx, int64(size))
	}
}
