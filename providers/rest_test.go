package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/ratelimit"
)

func TestRESTClient_ClassifiesResponses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			if r.Header.Get("Authorization") != "Bearer token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"id":"1"}`))
		case "/empty":
			w.WriteHeader(http.StatusNoContent)
		case "/unauthorized":
			w.WriteHeader(http.StatusUnauthorized)
		case "/marker":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":"expired"}}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`boom`))
		}
	}))
	defer server.Close()

	marker := func(status int, body []byte) (bool, string) {
		var payload struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		_ = json.Unmarshal(body, &payload)
		return payload.Error.Code == "expired", "marker"
	}
	client := NewRESTClient("testprov", server.URL+"/", server.Client(), marker)
	ctx := context.Background()

	result := client.Call(ctx, "token", RESTCall{Path: "ok"})
	if !result.IsSuccess() {
		t.Fatalf("expected success, got %+v", result)
	}
	if value := result.Value.(map[string]any); value["id"] != "1" {
		t.Fatalf("expected decoded json, got %#v", result.Value)
	}

	if result = client.Call(ctx, "token", RESTCall{Path: "/empty"}); !result.IsSuccess() || result.Value != nil {
		t.Fatalf("expected empty success, got %+v", result)
	}
	if result = client.Call(ctx, "token", RESTCall{Path: "/unauthorized"}); !result.IsTokenExpired() {
		t.Fatalf("expected 401 to be expiry, got %+v", result)
	}
	if result = client.Call(ctx, "token", RESTCall{Path: "/marker"}); !result.IsTokenExpired() || result.Reason != "marker" {
		t.Fatalf("expected marker expiry, got %+v", result)
	}
	result = client.Call(ctx, "token", RESTCall{Path: "/fail"})
	if !result.IsError() {
		t.Fatalf("expected error result, got %+v", result)
	}
	var statusErr *StatusError
	if !errors.As(result.Err, &statusErr) || statusErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected status error, got %v", result.Err)
	}
}

func TestRESTClient_TransportFailureIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	result := NewRESTClient("testprov", url, nil, nil).Call(context.Background(), "token", RESTCall{Path: "/x"})
	if !result.IsError() {
		t.Fatalf("expected transport failure to be an error result, got %+v", result)
	}
}

func TestRESTClient_OperationSendsJSONBody(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected json content type")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := NewRESTClient("testprov", server.URL, server.Client(), nil)
	op := client.Operation(func(params core.Params, internalID string) (RESTCall, error) {
		message, err := RequireParam(params, "message")
		if err != nil {
			return RESTCall{}, err
		}
		return RESTCall{Method: http.MethodPost, Path: "/" + internalID + "/feed", Body: map[string]any{"message": message}}, nil
	})

	result := op(context.Background(), "token", core.Params{"message": "hi"}, "page_1", core.Integration{})
	if !result.IsSuccess() {
		t.Fatalf("expected success, got %+v", result)
	}
	if got["message"] != "hi" {
		t.Fatalf("expected body forwarded, got %#v", got)
	}

	if result := op(context.Background(), "token", core.Params{}, "page_1", core.Integration{}); !result.IsError() {
		t.Fatalf("expected missing param to be an error result")
	}
}

func TestOptionalParams(t *testing.T) {
	out := OptionalParams(core.Params{"page_size": 25, "bookmark": "abc", "empty": " ", "other": true}, "page_size", "bookmark", "empty", "other", "missing")
	if len(out) != 2 || out["page_size"] != "25" || out["bookmark"] != "abc" {
		t.Fatalf("unexpected optional params: %#v", out)
	}
}

func TestRESTClient_RateLimitShortCircuitsThrottledIntegration(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	policy := ratelimit.NewAdaptivePolicy(ratelimit.NewMemoryStateStore())
	client := NewRESTClient("testprov", server.URL, server.Client(), nil).WithRateLimit(policy)
	op := client.Operation(func(core.Params, string) (RESTCall, error) {
		return RESTCall{Path: "/videos"}, nil
	})
	ctx := context.Background()
	integration := core.Integration{ID: "int_1"}

	first := op(ctx, "token", nil, "", integration)
	var statusErr *StatusError
	if !first.IsError() || !errors.As(first.Err, &statusErr) || statusErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 status failure, got %+v", first)
	}

	second := op(ctx, "token", nil, "", integration)
	var throttled ratelimit.ThrottledError
	if !second.IsError() || !errors.As(second.Err, &throttled) {
		t.Fatalf("expected throttled failure, got %+v", second)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected throttled call to skip the provider, got %d hits", hits.Load())
	}

	if other := op(ctx, "token", nil, "", core.Integration{ID: "int_2"}); errors.As(other.Err, &throttled) {
		t.Fatalf("expected a different integration to reach the provider")
	}
	if hits.Load() != 2 {
		t.Fatalf("expected second integration to hit the provider, got %d hits", hits.Load())
	}
}
