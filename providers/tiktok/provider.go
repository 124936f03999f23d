package tiktok

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
	"github.com/goliatone/go-integrations/ratelimit"
)

const (
	ProviderID = "tiktok"
	TokenURL   = "https://open.tiktokapis.com/v2/oauth/token/"
	APIBaseURL = "https://open.tiktokapis.com/v2"
)

const (
	OperationProfile   = "profile"
	OperationVideos    = "videos"
	OperationAnalytics = "analytics"
)

// Error codes in the TikTok response envelope that mean the token is gone.
var expiredErrorCodes = map[string]struct{}{
	"access_token_invalid": {},
	"scope_not_authorized": {},
}

type Config struct {
	// ClientID is sent as client_key.
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

	client := providers.NewRESTClient(ProviderID, cfg.APIBaseURL, cfg.HTTPClient, detectExpiry).
		WithRateLimit(cfg.RateLimit)
	return core.ProviderDescriptor{
		Identifier: ProviderID,
		Capabilities: map[string]core.OperationFunc{
			OperationProfile:   client.Operation(buildProfile),
			OperationVideos:    client.Operation(buildVideos),
			OperationAnalytics: client.Operation(buildAnalytics),
		},
		Refresher: NewRefresher(cfg),
	}, nil
}

func buildProfile(core.Params, string) (providers.RESTCall, error) {
	return providers.RESTCall{
		Method: http.MethodGet,
		Path:   "/user/info/",
		Query:  map[string]string{"fields": "open_id,union_id,avatar_url,display_name,follower_count"},
	}, nil
}

func buildVideos(params core.Params, _ string) (providers.RESTCall, error) {
	body := map[string]any{"max_count": 20}
	if value, ok := params["max_count"]; ok {
		body["max_count"] = value
	}
	if value, ok := params["cursor"]; ok {
		body["cursor"] = value
	}
	return providers.RESTCall{
		Method: http.MethodPost,
		Path:   "/video/list/",
		Query:  map[string]string{"fields": "id,title,cover_image_url,share_url,create_time"},
		Body:   body,
	}, nil
}

func buildAnalytics(params core.Params, _ string) (providers.RESTCall, error) {
	ids := videoIDs(params["video_ids"])
	if len(ids) == 0 {
		return providers.RESTCall{}, fmt.Errorf("providers/tiktok: video_ids is required")
	}
	return providers.RESTCall{
		Method: http.MethodPost,
		Path:   "/video/query/",
		Query:  map[string]string{"fields": "id,like_count,comment_count,share_count,view_count"},
		Body:   map[string]any{"filters": map[string]any{"video_ids": ids}},
	}, nil
}

func videoIDs(value any) []string {
	switch typed := value.(type) {
	case []string:
		return typed
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			if id, ok := item.(string); ok && strings.TrimSpace(id) != "" {
				out = append(out, strings.TrimSpace(id))
			}
		}
		return out
	case string:
		if strings.TrimSpace(typed) == "" {
			return nil
		}
		return strings.Split(typed, ",")
	default:
		return nil
	}
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func detectExpiry(_ int, body []byte) (bool, string) {
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return false, ""
	}
	code := strings.TrimSpace(strings.ToLower(envelope.Error.Code))
	if _, ok := expiredErrorCodes[code]; ok {
		return true, "tiktok " + code
	}
	return false, ""
}
