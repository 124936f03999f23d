package common

import (
	"net/http"
	"testing"
)

func TestDetectGraphExpiry(t *testing.T) {
	expired, reason := DetectGraphExpiry(http.StatusBadRequest,
		[]byte(`{"error":{"message":"Error validating access token","type":"OAuthException","code":190,"error_subcode":463}}`))
	if !expired || reason == "" {
		t.Fatalf("expected code 190 to be expiry")
	}

	expired, _ = DetectGraphExpiry(http.StatusBadRequest,
		[]byte(`{"error":{"message":"Invalid parameter","type":"OAuthException","code":100}}`))
	if expired {
		t.Fatalf("expected code 100 not to be expiry")
	}

	if expired, _ = DetectGraphExpiry(http.StatusBadGateway, []byte(`<html>`)); expired {
		t.Fatalf("expected non-json body not to be expiry")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.TokenURL != MetaOAuthTokenURL || cfg.GraphBaseURL != GraphBaseURL {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if Fields("id", "name")["fields"] != "id,name" {
		t.Fatalf("unexpected fields selector")
	}
}
