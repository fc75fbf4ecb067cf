package gqlrequest

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestDecodeEnvelope_GET(t *testing.T) {
	params := url.Values{}
	params.Set("query", "query Stores { stores { pages } }")
	params.Set("operationName", "Stores")
	params.Set("variables", `{"page":2}`)
	req := httptest.NewRequest(http.MethodGet, "/graphql?"+params.Encode(), nil)

	env, err := DecodeEnvelope(req)
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v", err)
	}
	if env.OperationName != "Stores" {
		t.Fatalf("operationName = %q, want Stores", env.OperationName)
	}
	if string(env.Variables) != `{"page":2}` {
		t.Fatalf("variables = %s", env.Variables)
	}
	if env.DocumentSizeBytes != len(env.Query) {
		t.Fatalf("DocumentSizeBytes = %d, want %d", env.DocumentSizeBytes, len(env.Query))
	}
}

func TestDecodeEnvelope_PostGraphQLRewindsBody(t *testing.T) {
	body := "{ stores { pages } }"
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/graphql; charset=utf-8")

	env, err := DecodeEnvelope(req)
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v", err)
	}
	if env.Query != body {
		t.Fatalf("query = %q, want %q", env.Query, body)
	}
	rewound, _ := io.ReadAll(req.Body)
	if string(rewound) != body {
		t.Fatalf("rewound body = %q, want %q", rewound, body)
	}
}

func TestDecodeEnvelope_PostJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/graphql",
		strings.NewReader(`{"query":"query P { payments { pages } }","operationName":"P","variables":null}`))
	req.Header.Set("Content-Type", "application/json")

	env, err := DecodeEnvelope(req)
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v", err)
	}
	if env.OperationName != "P" || env.Query == "" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if env.Variables != nil {
		t.Fatalf("null variables should be dropped, got %s", env.Variables)
	}
}

func TestDecodeEnvelope_PostMalformedJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":`))
	req.Header.Set("Content-Type", "application/json")
	if _, err := DecodeEnvelope(req); err == nil {
		t.Fatalf("expected error for malformed JSON body")
	}
}

func TestDecodeEnvelope_BodyTooLarge(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(strings.Repeat(" ", MaxBodyBytes+1)))
	_, err := DecodeEnvelope(req)
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("err = %v, want ErrBodyTooLarge", err)
	}
}
