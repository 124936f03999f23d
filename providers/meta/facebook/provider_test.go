package facebook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goliatone/go-integrations/core"
)

func newGraphServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, core.ProviderDescriptor) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	descriptor, err := New(Config{
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     server.URL + "/oauth/access_token",
		GraphBaseURL: server.URL,
		HTTPClient:   server.Client(),
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return server, descriptor
}

func TestNew_DescribesCapabilities(t *testing.T) {
	descriptor, err := New(Config{ClientID: "client", ClientSecret: "secret"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if descriptor.Identifier != ProviderID {
		t.Fatalf("expected %q, got %q", ProviderID, descriptor.Identifier)
	}
	if descriptor.RefreshCooldownRequired {
		t.Fatalf("expected facebook not to require refresh cooldown")
	}
	names := descriptor.OperationNames()
	if len(names) != 3 || names[0] != OperationInsights || names[1] != OperationPages || names[2] != OperationPublish {
		t.Fatalf("unexpected operations: %v", names)
	}
}

func TestPublish_PostsToPageFeed(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	_, descriptor := newGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"id":"page_1_post_9"}`))
	})

	publish, _ := descriptor.Operation(OperationPublish)
	result := publish(context.Background(), "token", core.Params{"message": "hello"}, "page_1", core.Integration{})
	if !result.IsSuccess() {
		t.Fatalf("expected success, got %+v", result)
	}
	if gotPath != "/page_1/feed" || gotBody["message"] != "hello" {
		t.Fatalf("unexpected request %s %#v", gotPath, gotBody)
	}

	result = publish(context.Background(), "token", core.Params{}, "page_1", core.Integration{})
	if !result.IsError() {
		t.Fatalf("expected error without message or link")
	}
}

func TestGraphCode190IsExpiry(t *testing.T) {
	_, descriptor := newGraphServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Session has expired","type":"OAuthException","code":190,"error_subcode":463}}`))
	})

	pages, _ := descriptor.Operation(OperationPages)
	if result := pages(context.Background(), "token", nil, "", core.Integration{}); !result.IsTokenExpired() {
		t.Fatalf("expected token expired, got %+v", result)
	}
}

func TestInsights_DefaultsMetrics(t *testing.T) {
	var gotMetric string
	_, descriptor := newGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotMetric = r.URL.Query().Get("metric")
		_, _ = w.Write([]byte(`{"data":[]}`))
	})
	insights, _ := descriptor.Operation(OperationInsights)
	if result := insights(context.Background(), "token", nil, "page_1", core.Integration{}); !result.IsSuccess() {
		t.Fatalf("expected success, got %+v", result)
	}
	if gotMetric != "page_impressions,page_post_engagements,page_fans" {
		t.Fatalf("unexpected metric selector %q", gotMetric)
	}
}
