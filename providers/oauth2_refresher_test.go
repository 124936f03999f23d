package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goliatone/go-integrations/core"
)

func newTokenServer(t *testing.T, status int, body string, seen *map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if seen != nil {
			*seen = map[string]string{
				"grant_type":    r.PostForm.Get("grant_type"),
				"refresh_token": r.PostForm.Get("refresh_token"),
				"client_id":     r.PostForm.Get("client_id"),
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestOAuth2Refresher_RefreshesCredential(t *testing.T) {
	var seen map[string]string
	server := newTokenServer(t, http.StatusOK,
		`{"access_token":"new-access","refresh_token":"new-refresh","token_type":"bearer","expires_in":3600}`, &seen)
	defer server.Close()

	now := time.Now()
	refresher, err := NewOAuth2Refresher(OAuth2RefresherConfig{
		ProviderID:   "pinterest",
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     server.URL,
		HTTPClient:   server.Client(),
		Now:          func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new refresher: %v", err)
	}

	credential, err := refresher.Refresh(context.Background(), core.Integration{ID: "int_1", RefreshToken: "old-refresh"})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if credential == nil {
		t.Fatalf("expected credential")
	}
	if credential.AccessToken != "new-access" || credential.RefreshToken != "new-refresh" {
		t.Fatalf("unexpected credential: %+v", credential)
	}
	if credential.ExpiresIn < 59*time.Minute || credential.ExpiresIn > time.Hour {
		t.Fatalf("expected about one hour expiry, got %s", credential.ExpiresIn)
	}
	if seen["grant_type"] != "refresh_token" || seen["refresh_token"] != "old-refresh" || seen["client_id"] != "client" {
		t.Fatalf("unexpected token request: %#v", seen)
	}
}

func TestOAuth2Refresher_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	server := newTokenServer(t, http.StatusOK, `{"access_token":"new-access","token_type":"bearer"}`, nil)
	defer server.Close()

	refresher, err := NewOAuth2Refresher(OAuth2RefresherConfig{ProviderID: "tiktok", TokenURL: server.URL, HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("new refresher: %v", err)
	}
	credential, err := refresher.Refresh(context.Background(), core.Integration{RefreshToken: "old-refresh"})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if credential.RefreshToken != "" {
		t.Fatalf("expected empty refresh token so the stored one is kept, got %q", credential.RefreshToken)
	}
	if credential.ExpiresIn != 0 {
		t.Fatalf("expected no expiry, got %s", credential.ExpiresIn)
	}
}

func TestOAuth2Refresher_InvalidGrantMeansReconnect(t *testing.T) {
	server := newTokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant","error_description":"revoked"}`, nil)
	defer server.Close()

	refresher, _ := NewOAuth2Refresher(OAuth2RefresherConfig{ProviderID: "tiktok", TokenURL: server.URL, HTTPClient: server.Client()})
	credential, err := refresher.Refresh(context.Background(), core.Integration{RefreshToken: "revoked"})
	if err != nil {
		t.Fatalf("expected no error for rejected grant, got %v", err)
	}
	if credential != nil {
		t.Fatalf("expected nil credential for rejected grant")
	}
}

func TestOAuth2Refresher_ServerErrorIsReturned(t *testing.T) {
	server := newTokenServer(t, http.StatusServiceUnavailable, `{"error":"temporarily_unavailable"}`, nil)
	defer server.Close()

	refresher, _ := NewOAuth2Refresher(OAuth2RefresherConfig{ProviderID: "tiktok", TokenURL: server.URL, HTTPClient: server.Client()})
	credential, err := refresher.Refresh(context.Background(), core.Integration{RefreshToken: "r"})
	if err == nil || credential != nil {
		t.Fatalf("expected transient error, got %v %+v", err, credential)
	}
}

func TestOAuth2Refresher_MissingRefreshToken(t *testing.T) {
	refresher, _ := NewOAuth2Refresher(OAuth2RefresherConfig{ProviderID: "tiktok", TokenURL: "https://example.com/token"})
	credential, err := refresher.Refresh(context.Background(), core.Integration{})
	if err != nil || credential != nil {
		t.Fatalf("expected nil credential without refresh token, got %+v %v", credential, err)
	}
}

func TestNewOAuth2Refresher_Validates(t *testing.T) {
	if _, err := NewOAuth2Refresher(OAuth2RefresherConfig{TokenURL: "https://example.com"}); err == nil {
		t.Fatalf("expected provider id error")
	}
	if _, err := NewOAuth2Refresher(OAuth2RefresherConfig{ProviderID: "x"}); err == nil {
		t.Fatalf("expected token url error")
	}
}
