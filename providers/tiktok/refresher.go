package tiktok

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
	"github.com/goliatone/go-integrations/transport"
)

// tokenResponse is the v2 token endpoint body. Failures carry error and
// error_description, sometimes under a 2xx status.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Refresher runs the refresh_token grant against the TikTok token endpoint,
// which names the client credential client_key rather than client_id.
type Refresher struct {
	ClientKey    string
	ClientSecret string
	TokenURL     string
	Adapter      *transport.RESTAdapter
}

func NewRefresher(cfg Config) *Refresher {
	var doer transport.HTTPDoer
	if cfg.HTTPClient != nil {
		doer = cfg.HTTPClient
	}
	tokenURL := strings.TrimSpace(cfg.TokenURL)
	if tokenURL == "" {
		tokenURL = TokenURL
	}
	return &Refresher{
		ClientKey:    strings.TrimSpace(cfg.ClientID),
		ClientSecret: strings.TrimSpace(cfg.ClientSecret),
		TokenURL:     tokenURL,
		Adapter:      transport.NewRESTAdapter(doer),
	}
}

func (r *Refresher) Refresh(ctx context.Context, integration core.Integration) (*core.RefreshedCredential, error) {
	refreshToken := strings.TrimSpace(integration.RefreshToken)
	if refreshToken == "" {
		return nil, nil
	}
	form := url.Values{}
	form.Set("client_key", r.ClientKey)
	form.Set("client_secret", r.ClientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	res, err := r.Adapter.Do(ctx, transport.Request{
		Method:  http.MethodPost,
		URL:     r.TokenURL,
		Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		Body:    []byte(form.Encode()),
	})
	if err != nil {
		return nil, fmt.Errorf("providers/tiktok: token refresh failed: %w", err)
	}

	var payload tokenResponse
	if err := json.Unmarshal(res.Body, &payload); err != nil {
		if !res.IsSuccess() {
			return nil, fmt.Errorf("providers/tiktok: token endpoint responded %d", res.StatusCode)
		}
		return nil, fmt.Errorf("providers/tiktok: decode token response: %w", err)
	}
	if code := strings.TrimSpace(payload.Error); code != "" {
		if providers.IsUnusableGrantCode(code) {
			return nil, nil
		}
		return nil, fmt.Errorf("providers/tiktok: token endpoint responded %d: %s %s",
			res.StatusCode, code, strings.TrimSpace(payload.ErrorDescription))
	}
	if !res.IsSuccess() {
		return nil, fmt.Errorf("providers/tiktok: token endpoint responded %d", res.StatusCode)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return nil, fmt.Errorf("providers/tiktok: token response carries no access_token")
	}

	credential := &core.RefreshedCredential{
		AccessToken: strings.TrimSpace(payload.AccessToken),
		ExpiresIn:   time.Duration(payload.ExpiresIn) * time.Second,
	}
	if next := strings.TrimSpace(payload.RefreshToken); next != "" && next != refreshToken {
		credential.RefreshToken = next
	}
	return credential, nil
}

var _ core.Refresher = (*Refresher)(nil)
