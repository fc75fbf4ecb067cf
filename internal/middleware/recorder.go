package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// responseRecorder captures the status code and, when captureBody is set, a
// copy of the response body.
type responseRecorder struct {
	http.ResponseWriter
	statusCode  int
	written     bool
	captureBody bool
	body        bytes.Buffer
}

func newResponseRecorder(w http.ResponseWriter, captureBody bool) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK, captureBody: captureBody}
}

func (rw *responseRecorder) WriteHeader(statusCode int) {
	if rw.written {
		return
	}
	rw.statusCode = statusCode
	rw.written = true
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseRecorder) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	if rw.captureBody {
		_, _ = rw.body.Write(b)
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *responseRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// failed reports whether the exchange ended in an HTTP error status or a
// GraphQL response with a non-empty errors array.
func (rw *responseRecorder) failed() bool {
	return rw.statusCode >= http.StatusBadRequest || responseHasGraphQLErrors(rw.body.Bytes())
}

func responseHasGraphQLErrors(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return false
	}
	var payload struct {
		Errors []json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return false
	}
	return len(payload.Errors) > 0
}
