package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// QueryMetrics holds the query engine's custom metrics.
type QueryMetrics struct {
	requestDuration   metric.Float64Histogram
	requestCounter    metric.Int64Counter
	errorCounter      metric.Int64Counter
	activeRequests    metric.Int64UpDownCounter
	resultRows        metric.Int64Histogram
	batchKeyCount     metric.Int64Histogram
	batchResultRows   metric.Int64Histogram
	batchFetches      metric.Int64Counter
	batchQueriesSaved metric.Int64Counter
}

// NewQueryMetrics creates the metrics on the given meter provider; nil uses
// the global provider.
func NewQueryMetrics(provider metric.MeterProvider) (*QueryMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter("relquery")

	requestDuration, err := meter.Float64Histogram(
		"relquery.request.duration",
		metric.WithDescription("Duration of query requests in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	requestCounter, err := meter.Int64Counter(
		"relquery.requests.total",
		metric.WithDescription("Total number of query requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"relquery.errors.total",
		metric.WithDescription("Total number of failed query requests by error class"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"relquery.requests.active",
		metric.WithDescription("Number of in-flight query requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}

	resultRows, err := meter.Int64Histogram(
		"relquery.result.rows",
		metric.WithDescription("Number of top-level rows returned per request"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create result rows histogram: %w", err)
	}

	batchKeyCount, err := meter.Int64Histogram(
		"relquery.batch.key_count",
		metric.WithDescription("Number of distinct join keys in a relation batch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch key count histogram: %w", err)
	}

	batchResultRows, err := meter.Int64Histogram(
		"relquery.batch.result_rows",
		metric.WithDescription("Number of rows returned by a relation batch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch result rows histogram: %w", err)
	}

	batchFetches, err := meter.Int64Counter(
		"relquery.batch.fetches",
		metric.WithDescription("Number of relation batch fetches issued"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch fetch counter: %w", err)
	}

	batchQueriesSaved, err := meter.Int64Counter(
		"relquery.batch.queries_saved",
		metric.WithDescription("Number of per-row queries avoided by batching"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch queries saved counter: %w", err)
	}

	return &QueryMetrics{
		requestDuration:   requestDuration,
		requestCounter:    requestCounter,
		errorCounter:      errorCounter,
		activeRequests:    activeRequests,
		resultRows:        resultRows,
		batchKeyCount:     batchKeyCount,
		batchResultRows:   batchResultRows,
		batchFetches:      batchFetches,
		batchQueriesSaved: batchQueriesSaved,
	}, nil
}

// RecordRequest records one engine request with its duration and outcome.
// errorClass is empty on success.
func (m *QueryMetrics) RecordRequest(ctx context.Context, duration time.Duration, entity, mode, errorClass string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("entity", entity),
		attribute.String("pagination_mode", mode),
		attribute.Bool("has_errors", errorClass != ""),
	}
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	if errorClass != "" {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("entity", entity),
			attribute.String("error_class", errorClass),
		))
	}
}

// RecordResultRows records the number of rows in a page.
func (m *QueryMetrics) RecordResultRows(ctx context.Context, count int64, entity string) {
	if m == nil {
		return
	}
	m.resultRows.Record(ctx, count, metric.WithAttributes(attribute.String("entity", entity)))
}

// RecordBatch records one relation batch: the distinct keys it carried, the
// rows it returned, and the per-row queries it replaced.
func (m *QueryMetrics) RecordBatch(ctx context.Context, relation, cardinality string, parents, keys, rows int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("relation", relation),
		attribute.String("cardinality", cardinality),
	)
	m.batchFetches.Add(ctx, 1, attrs)
	m.batchKeyCount.Record(ctx, int64(keys), attrs)
	m.batchResultRows.Record(ctx, int64(rows), attrs)
	if saved := parents - 1; saved > 0 {
		m.batchQueriesSaved.Add(ctx, int64(saved), attrs)
	}
}

// IncrementActiveRequests increments the active requests counter
func (m *QueryMetrics) IncrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, 1)
}

// DecrementActiveRequests decrements the active requests counter
func (m *QueryMetrics) DecrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, -1)
}

// InitMetrics initializes the custom metrics on the global meter provider.
func InitMetrics(logger *slog.Logger) (*QueryMetrics, error) {
	metrics, err := NewQueryMetrics(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize query metrics: %w", err)
	}

	logger.Info("custom query metrics initialized")
	return metrics, nil
}

type queryMetricsContextKey struct{}

// ContextWithQueryMetrics stores metrics in the provided context.
func ContextWithQueryMetrics(ctx context.Context, metrics *QueryMetrics) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, queryMetricsContextKey{}, metrics)
}

// QueryMetricsFromContext retrieves metrics from the context. The result may
// be nil; every method is nil-safe.
func QueryMetricsFromContext(ctx context.Context) *QueryMetrics {
	if ctx == nil {
		return nil
	}
	metrics, _ := ctx.Value(queryMetricsContextKey{}).(*QueryMetrics)
	return metrics
}
