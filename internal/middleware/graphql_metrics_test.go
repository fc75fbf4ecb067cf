package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"relquery/internal/observability"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func setupGraphQLMetricsMiddleware(t *testing.T, next http.Handler) (http.Handler, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := observability.NewGraphQLMetrics(provider)
	require.NoError(t, err)
	return GraphQLMetricsMiddleware(metrics)(next), reader
}

func respond(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})
}

func postGraphQL(handler http.Handler, body string) {
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(httptest.NewRecorder(), req)
}

func sumInt64Value(t *testing.T, reader *sdkmetric.ManualReader, metricName, operationType string, hasErrors *bool) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != metricName {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, point := range sum.DataPoints {
				if !matchAttr(point.Attributes, "operation_type", attribute.StringValue(operationType)) {
					continue
				}
				if hasErrors != nil && !matchAttr(point.Attributes, "has_errors", attribute.BoolValue(*hasErrors)) {
					continue
				}
				total += point.Value
			}
		}
	}
	return total
}

func matchAttr(attrs attribute.Set, key attribute.Key, want attribute.Value) bool {
	got, ok := attrs.Value(key)
	return ok && got == want
}

func boolPtr(v bool) *bool { return &v }

func TestGraphQLMetricsMiddleware_Success(t *testing.T) {
	handler, reader := setupGraphQLMetricsMiddleware(t, respond(`{"data":{"payments":{"nodes":[]}}}`))
	postGraphQL(handler, paymentsQuery)

	if got := sumInt64Value(t, reader, "graphql.requests.total", "query", boolPtr(false)); got != 1 {
		t.Fatalf("graphql.requests.total query=false = %d, want 1", got)
	}
}

func TestGraphQLMetricsMiddleware_HTTP200WithGraphQLErrors(t *testing.T) {
	handler, reader := setupGraphQLMetricsMiddleware(t, respond(`{"data":null,"errors":[{"message":"boom"}]}`))
	postGraphQL(handler, paymentsQuery)

	if got := sumInt64Value(t, reader, "graphql.requests.total", "query", boolPtr(true)); got != 1 {
		t.Fatalf("graphql.requests.total query=true = %d, want 1", got)
	}
	if got := sumInt64Value(t, reader, "graphql.errors.total", "query", nil); got != 1 {
		t.Fatalf("graphql.errors.total query = %d, want 1", got)
	}
}

func TestGraphQLMetricsMiddleware_UnparseableRequestIsUnknown(t *testing.T) {
	handler, reader := setupGraphQLMetricsMiddleware(t, respond(`{"errors":[{"message":"bad request"}]}`))
	postGraphQL(handler, `{"query":`)

	if got := sumInt64Value(t, reader, "graphql.requests.total", "unknown", boolPtr(true)); got != 1 {
		t.Fatalf("graphql.requests.total unknown=true = %d, want 1", got)
	}
}

func TestGraphQLMetricsMiddleware_SkipsPageLoads(t *testing.T) {
	handler, reader := setupGraphQLMetricsMiddleware(t, respond(`<html></html>`))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/graphql", nil))

	if got := sumInt64Value(t, reader, "graphql.requests.total", "unknown", nil); got != 0 {
		t.Fatalf("graphql.requests.total = %d, want 0", got)
	}
}
