package pinterest

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
	"github.com/goliatone/go-integrations/ratelimit"
)

const (
	ProviderID = "pinterest"
	TokenURL   = "https://api.pinterest.com/v5/oauth/token"
	APIBaseURL = "https://api.pinterest.com/v5"
)

const (
	OperationProfile = "profile"
	OperationBoards  = "boards"
	OperationPublish = "publish"
)

type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	APIBaseURL   string
	HTTPClient   *http.Client
	// RateLimit, when set, throttles API calls per integration.
	RateLimit    ratelimit.Policy
}

func DefaultConfig() Config {
	return Config{
		TokenURL:   TokenURL,
		APIBaseURL: APIBaseURL,
	}
}

func New(cfg Config) (core.ProviderDescriptor, error) {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.TokenURL) == "" {
		cfg.TokenURL = defaults.TokenURL
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		cfg.APIBaseURL = defaults.APIBaseURL
	}

	// Pinterest expects client credentials as HTTP basic auth on the token
	// endpoint.
	refresher, err := providers.NewOAuth2Refresher(providers.OAuth2RefresherConfig{
		ProviderID:   ProviderID,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthInHeader: true,
		HTTPClient:   cfg.HTTPClient,
	})
	if err != nil {
		return core.ProviderDescriptor{}, err
	}
	client := providers.NewRESTClient(ProviderID, cfg.APIBaseURL, cfg.HTTPClient, nil).
		WithRateLimit(cfg.RateLimit)
	return core.ProviderDescriptor{
		Identifier: ProviderID,
		Capabilities: map[string]core.OperationFunc{
			OperationProfile: client.Operation(buildProfile),
			OperationBoards:  client.Operation(buildBoards),
			OperationPublish: client.Operation(buildPublish),
		},
		Refresher: refresher,
	}, nil
}

func buildProfile(core.Params, string) (providers.RESTCall, error) {
	return providers.RESTCall{Method: http.MethodGet, Path: "/user_account"}, nil
}

func buildBoards(params core.Params, _ string) (providers.RESTCall, error) {
	return providers.RESTCall{
		Method: http.MethodGet,
		Path:   "/boards",
		Query:  providers.OptionalParams(params, "page_size", "bookmark", "privacy"),
	}, nil
}

func buildPublish(params core.Params, _ string) (providers.RESTCall, error) {
	boardID, err := providers.RequireParam(params, "board_id")
	if err != nil {
		return providers.RESTCall{}, err
	}
	imageURL := params.String("image_url")
	if imageURL == "" {
		return providers.RESTCall{}, fmt.Errorf("providers/pinterest: image_url is required")
	}
	pin := map[string]any{
		"board_id": boardID,
		"media_source": map[string]any{
			"source_type": "image_url",
			"url":         imageURL,
		},
	}
	for _, key := range []string{"title", "description", "link", "alt_text"} {
		if value := params.String(key); value != "" {
			pin[key] = value
		}
	}
	return providers.RESTCall{Method: http.MethodPost, Path: "/pins", Body: pin}, nil
}
