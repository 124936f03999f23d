package common

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-integrations/providers"
	"github.com/goliatone/go-integrations/ratelimit"
)

const (
	GraphBaseURL      = "https://graph.facebook.com/v23.0"
	MetaOAuthTokenURL = "https://graph.facebook.com/v23.0/oauth/access_token"
)

// Graph API error codes that mean the user token is no longer accepted.
const (
	GraphErrorAccessTokenInvalid = 190
	GraphErrorSessionExpired     = 102
)

type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	GraphBaseURL string
	HTTPClient   *http.Client
	// RateLimit, when set, throttles API calls per integration.
	RateLimit    ratelimit.Policy
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.TokenURL) == "" {
		c.TokenURL = MetaOAuthTokenURL
	}
	if strings.TrimSpace(c.GraphBaseURL) == "" {
		c.GraphBaseURL = GraphBaseURL
	}
	return c
}

// NewGraphClient returns a REST client that treats Graph token errors as
// expiry.
func NewGraphClient(providerID string, cfg Config) *providers.RESTClient {
	cfg = cfg.withDefaults()
	return providers.NewRESTClient(providerID, cfg.GraphBaseURL, cfg.HTTPClient, DetectGraphExpiry).
		WithRateLimit(cfg.RateLimit)
}

func NewRefresher(providerID string, cfg Config) (*providers.OAuth2Refresher, error) {
	cfg = cfg.withDefaults()
	return providers.NewOAuth2Refresher(providers.OAuth2RefresherConfig{
		ProviderID:   providerID,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		HTTPClient:   cfg.HTTPClient,
	})
}

type graphErrorEnvelope struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
	} `json:"error"`
}

func DetectGraphExpiry(statusCode int, body []byte) (bool, string) {
	var envelope graphErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return false, ""
	}
	switch envelope.Error.Code {
	case GraphErrorAccessTokenInvalid, GraphErrorSessionExpired:
		return true, fmt.Sprintf("graph error %d: %s", envelope.Error.Code, envelope.Error.Message)
	}
	return false, ""
}

// Fields joins Graph field selectors.
func Fields(fields ...string) map[string]string {
	return map[string]string{"fields": strings.Join(fields, ",")}
}
