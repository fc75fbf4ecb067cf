// Package gqlrequest decodes a GraphQL HTTP request once and derives the
// metadata that logging, tracing and metrics attach to it.
package gqlrequest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// MaxBodyBytes bounds how much of a request body is buffered for analysis.
const MaxBodyBytes = 1 << 20

// ErrBodyTooLarge is returned when a POST body exceeds MaxBodyBytes.
var ErrBodyTooLarge = errors.New("graphql request body too large")

// Envelope is the transport-independent part of a GraphQL request.
type Envelope struct {
	Method        string
	Query         string
	OperationName string
	Variables     json.RawMessage

	DocumentSizeBytes int
}

// DecodeEnvelope reads the query, operation name and variables from a GET
// query string or a POST body. The body is replaced with a fresh reader over
// the same bytes so the GraphQL handler can decode it again.
func DecodeEnvelope(r *http.Request) (Envelope, error) {
	if r == nil {
		return Envelope{}, fmt.Errorf("request is nil")
	}
	env := Envelope{Method: r.Method}

	switch r.Method {
	case http.MethodGet:
		params := r.URL.Query()
		env.Query = params.Get("query")
		env.OperationName = params.Get("operationName")
		if vars := params.Get("variables"); vars != "" {
			env.Variables = json.RawMessage(vars)
		}
	case http.MethodPost:
		if r.Body == nil {
			break
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
		if err != nil {
			return env, err
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		if len(body) > MaxBodyBytes {
			return env, ErrBodyTooLarge
		}
		if err := env.decodeBody(r.Header.Get("Content-Type"), body); err != nil {
			return env, err
		}
	}

	env.DocumentSizeBytes = len(env.Query)
	return env, nil
}

func (env *Envelope) decodeBody(contentType string, body []byte) error {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(contentType)
	}
	if mediaType == "application/graphql" {
		env.Query = string(body)
		return nil
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	var payload struct {
		Query         string          `json:"query"`
		OperationName string          `json:"operationName"`
		Variables     json.RawMessage `json:"variables"`
	}
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return err
	}
	env.Query = payload.Query
	env.OperationName = payload.OperationName
	if vars := bytes.TrimSpace(payload.Variables); len(vars) > 0 && !bytes.Equal(vars, []byte("null")) {
		env.Variables = append(json.RawMessage(nil), vars...)
	}
	return nil
}
