package integrations

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/goliatone/go-integrations/config"
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers/meta/facebook"
	"github.com/goliatone/go-integrations/providers/meta/instagram"
	"github.com/goliatone/go-integrations/providers/pinterest"
	"github.com/goliatone/go-integrations/providers/tiktok"
	"github.com/goliatone/go-integrations/ratelimit"
)

func TikTokProvider(cfg tiktok.Config) (core.ProviderDescriptor, error) {
	return tiktok.New(cfg)
}

func PinterestProvider(cfg pinterest.Config) (core.ProviderDescriptor, error) {
	return pinterest.New(cfg)
}

func FacebookProvider(cfg facebook.Config) (core.ProviderDescriptor, error) {
	return facebook.New(cfg)
}

func InstagramProvider(cfg instagram.Config) (core.ProviderDescriptor, error) {
	return instagram.New(cfg)
}

type builtinSettings struct {
	client    *http.Client
	rateLimit ratelimit.Policy
}

// BuiltinOption tunes the providers built by RegisterBuiltinProviders.
type BuiltinOption func(*builtinSettings)

// WithProviderRateLimit throttles every built-in provider through policy.
func WithProviderRateLimit(policy ratelimit.Policy) BuiltinOption {
	return func(s *builtinSettings) {
		s.rateLimit = policy
	}
}

type builtinFactory func(creds config.ProviderCredentials, settings builtinSettings) (core.ProviderDescriptor, error)

var builtinProviders = map[string]builtinFactory{
	tiktok.ProviderID: func(creds config.ProviderCredentials, settings builtinSettings) (core.ProviderDescriptor, error) {
		return TikTokProvider(tiktok.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     creds.TokenURL,
			APIBaseURL:   creds.APIBaseURL,
			HTTPClient:   settings.client,
			RateLimit:    settings.rateLimit,
		})
	},
	pinterest.ProviderID: func(creds config.ProviderCredentials, settings builtinSettings) (core.ProviderDescriptor, error) {
		return PinterestProvider(pinterest.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     creds.TokenURL,
			APIBaseURL:   creds.APIBaseURL,
			HTTPClient:   settings.client,
			RateLimit:    settings.rateLimit,
		})
	},
	facebook.ProviderID: func(creds config.ProviderCredentials, settings builtinSettings) (core.ProviderDescriptor, error) {
		return FacebookProvider(facebook.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     creds.TokenURL,
			GraphBaseURL: creds.APIBaseURL,
			HTTPClient:   settings.client,
			RateLimit:    settings.rateLimit,
		})
	},
	instagram.ProviderID: func(creds config.ProviderCredentials, settings builtinSettings) (core.ProviderDescriptor, error) {
		return InstagramProvider(instagram.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     creds.TokenURL,
			GraphBaseURL: creds.APIBaseURL,
			HTTPClient:   settings.client,
			RateLimit:    settings.rateLimit,
		})
	},
}

// BuiltinProviderIDs lists the identifiers RegisterBuiltinProviders knows.
func BuiltinProviderIDs() []string {
	ids := make([]string, 0, len(builtinProviders))
	for id := range builtinProviders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ProviderRegistrar is satisfied by *core.Service and core.Registry.
type ProviderRegistrar interface {
	Register(descriptor core.ProviderDescriptor) error
}

type serviceRegistrar struct {
	service *core.Service
}

func (r serviceRegistrar) Register(descriptor core.ProviderDescriptor) error {
	return r.service.RegisterProvider(descriptor)
}

// ServiceRegistrar adapts a service to ProviderRegistrar.
func ServiceRegistrar(service *core.Service) ProviderRegistrar {
	return serviceRegistrar{service: service}
}

// RegisterBuiltinProviders registers a built-in provider for every credential
// entry, in identifier order. Unknown identifiers are rejected so a typo in
// configuration does not silently drop a provider.
func RegisterBuiltinProviders(
	registrar ProviderRegistrar,
	credentials map[string]config.ProviderCredentials,
	client *http.Client,
	opts ...BuiltinOption,
) ([]string, error) {
	if registrar == nil {
		return nil, fmt.Errorf("integrations: provider registrar is required")
	}
	settings := builtinSettings{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}
	ids := make([]string, 0, len(credentials))
	for id := range credentials {
		if _, ok := builtinProviders[id]; !ok {
			return nil, fmt.Errorf("integrations: unknown built-in provider %q", id)
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		descriptor, err := builtinProviders[id](credentials[id], settings)
		if err != nil {
			return nil, fmt.Errorf("integrations: build provider %q: %w", id, err)
		}
		if err := registrar.Register(descriptor); err != nil {
			return nil, err
		}
	}
	return ids, nil
}
