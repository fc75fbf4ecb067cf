package middleware

import (
	"net/http"
	"strings"
	"time"

	"relquery/internal/observability"
)

// GraphQLMetricsMiddleware records per-request GraphQL metrics. Requests
// without a document, such as GraphiQL page loads, are not counted.
func GraphQLMetricsMiddleware(metrics *observability.GraphQLMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			analysis := analysisFor(r)
			if strings.TrimSpace(analysis.Envelope.Query) == "" && analysis.Err == nil {
				next.ServeHTTP(w, r)
				return
			}

			operationType := analysis.OperationType
			if operationType == "" {
				operationType = "unknown"
			}

			start := time.Now()
			rec := newResponseRecorder(w, true)
			next.ServeHTTP(rec, r)

			metrics.RecordRequest(r.Context(), time.Since(start), operationType, rec.failed(),
				analysis.SelectionDepth, analysis.Envelope.DocumentSizeBytes)
		})
	}
}
