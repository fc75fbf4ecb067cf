package middleware

import (
	"net/http"

	"relquery/internal/gqlrequest"
	"relquery/internal/logging"
	"relquery/internal/observability"
)

// GraphQLRequestAnalysisMiddleware analyzes the GraphQL request once, stores
// the analysis in the request context and adds operation fields to the
// request logger.
func GraphQLRequestAnalysisMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			analysis := gqlrequest.Analyze(r)
			ctx := gqlrequest.WithAnalysis(r.Context(), analysis)

			if fields := observability.GraphQLLogFields(ctx, analysis); len(fields) > 0 {
				ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithFields(fields...))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func analysisFor(r *http.Request) *gqlrequest.Analysis {
	if analysis := gqlrequest.FromContext(r.Context()); analysis != nil {
		return analysis
	}
	return gqlrequest.Analyze(r)
}
