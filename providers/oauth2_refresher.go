package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"golang.org/x/oauth2"
)

const defaultTokenClientTimeout = 30 * time.Second

// unusableGrantCodes are token endpoint error codes after which the stored
// refresh token can never succeed again.
var unusableGrantCodes = map[string]struct{}{
	"invalid_grant":       {},
	"unauthorized_client": {},
	"invalid_client":      {},
}

// IsUnusableGrantCode reports whether a token endpoint error code means the
// refresh token will never succeed again. Any other code is transient.
func IsUnusableGrantCode(code string) bool {
	_, ok := unusableGrantCodes[strings.TrimSpace(strings.ToLower(code))]
	return ok
}

type OAuth2RefresherConfig struct {
	ProviderID   string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
	// AuthInHeader sends client credentials with HTTP basic auth instead of the
	// form body.
	AuthInHeader bool
	HTTPClient   *http.Client
	Now          func() time.Time
}

// OAuth2Refresher implements the refresh_token grant with golang.org/x/oauth2.
type OAuth2Refresher struct {
	cfg    OAuth2RefresherConfig
	oauth  oauth2.Config
	client *http.Client
}

func NewOAuth2Refresher(cfg OAuth2RefresherConfig) (*OAuth2Refresher, error) {
	cfg.ProviderID = strings.TrimSpace(strings.ToLower(cfg.ProviderID))
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)
	if cfg.ProviderID == "" {
		return nil, fmt.Errorf("providers: provider id is required")
	}
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("providers: token url is required for %s", cfg.ProviderID)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultTokenClientTimeout}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	authStyle := oauth2.AuthStyleInParams
	if cfg.AuthInHeader {
		authStyle = oauth2.AuthStyleInHeader
	}
	return &OAuth2Refresher{
		cfg: cfg,
		oauth: oauth2.Config{
			ClientID:     strings.TrimSpace(cfg.ClientID),
			ClientSecret: strings.TrimSpace(cfg.ClientSecret),
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: authStyle,
			},
			Scopes: append([]string(nil), cfg.Scopes...),
		},
		client: cfg.HTTPClient,
	}, nil
}

// Refresh exchanges the stored refresh token. It returns a nil credential when
// the provider rejects the grant or no refresh token is stored.
func (r *OAuth2Refresher) Refresh(ctx context.Context, integration core.Integration) (*core.RefreshedCredential, error) {
	if r == nil {
		return nil, fmt.Errorf("providers: oauth2 refresher is nil")
	}
	refreshToken := strings.TrimSpace(integration.RefreshToken)
	if refreshToken == "" {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.client)

	// An empty access token is never valid, so the source always hits the
	// token endpoint.
	source := r.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		if isUnusableGrant(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("providers: %s token refresh failed: %w", r.cfg.ProviderID, err)
	}
	accessToken := strings.TrimSpace(token.AccessToken)
	if accessToken == "" {
		return nil, nil
	}

	credential := &core.RefreshedCredential{AccessToken: accessToken}
	if next := strings.TrimSpace(token.RefreshToken); next != "" && next != refreshToken {
		credential.RefreshToken = next
	}
	if !token.Expiry.IsZero() {
		if ttl := token.Expiry.Sub(r.cfg.Now()); ttl > 0 {
			credential.ExpiresIn = ttl
		}
	}
	return credential, nil
}

func isUnusableGrant(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return false
	}
	if IsUnusableGrantCode(retrieveErr.ErrorCode) {
		return true
	}
	body := strings.ToLower(string(retrieveErr.Body))
	return strings.Contains(body, "invalid_grant")
}

var _ core.Refresher = (*OAuth2Refresher)(nil)
