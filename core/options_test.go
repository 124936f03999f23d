package core

import (
	"context"
	"errors"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type fixedConfigProvider struct {
	cfg Config
}

func (p *fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, nil
}

type fixedOptionsResolver struct {
	cfg Config
}

func (r *fixedOptionsResolver) Resolve(Config, Config, Config) (Config, error) {
	return r.cfg, nil
}

func TestNewService_DefaultDependencies(t *testing.T) {
	svc, err := NewService(Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	deps := svc.Dependencies()
	if deps.Logger == nil {
		t.Fatalf("expected default logger")
	}
	if deps.LoggerProvider == nil {
		t.Fatalf("expected default logger provider")
	}
	if deps.ErrorFactory == nil || deps.ErrorMapper == nil {
		t.Fatalf("expected default error factory and mapper")
	}
	if deps.Registry == nil {
		t.Fatalf("expected default registry")
	}
	if deps.Locker == nil {
		t.Fatalf("expected default in-memory locker")
	}
	cfg := svc.Config()
	if cfg.ServiceName != "integrations" {
		t.Fatalf("expected default service_name=integrations, got %q", cfg.ServiceName)
	}
	if cfg.Refresh.RetryBudget != DefaultRetryBudget {
		t.Fatalf("expected default retry budget, got %d", cfg.Refresh.RetryBudget)
	}
	if cfg.Refresh.Cooldown() != 10*time.Second {
		t.Fatalf("expected default 10s cooldown, got %s", cfg.Refresh.Cooldown())
	}
	if cfg.Refresh.LockTTL() != 30*time.Second {
		t.Fatalf("expected default 30s lock ttl, got %s", cfg.Refresh.LockTTL())
	}
}

func TestNewService_WithXOverrides(t *testing.T) {
	customLogger := stubLogger{}
	customProvider := stubLoggerProvider{logger: customLogger}
	customFactory := func(message string, category ...goerrors.Category) *goerrors.Error {
		return goerrors.New("custom:"+message, category...)
	}
	sentinel := errors.New("sentinel")
	customMapper := func(error) *goerrors.Error {
		return goerrors.Wrap(sentinel, goerrors.CategoryOperation, "mapped")
	}
	configProvider := &fixedConfigProvider{cfg: Config{ServiceName: "from-provider"}}
	optionsResolver := &fixedOptionsResolver{cfg: Config{
		ServiceName: "resolved",
		Refresh:     RefreshConfig{RetryBudget: 2},
	}}
	store := NewMemoryIntegrationStore()
	locker := NewMemoryIntegrationLocker()
	registry := NewProviderRegistry()

	svc, err := NewService(Config{ServiceName: "runtime"},
		WithLogger(customLogger),
		WithLoggerProvider(customProvider),
		WithErrorFactory(customFactory),
		WithErrorMapper(customMapper),
		WithConfigProvider(configProvider),
		WithOptionsResolver(optionsResolver),
		WithIntegrationStore(store),
		WithIntegrationLocker(locker),
		WithRegistry(registry),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	deps := svc.Dependencies()
	if deps.Logger != customLogger {
		t.Fatalf("expected custom logger override")
	}
	if resolved := deps.LoggerProvider.GetLogger("integrations.override"); resolved != customLogger {
		t.Fatalf("expected logger provider to resolve custom logger")
	}
	if deps.ConfigProvider != configProvider {
		t.Fatalf("expected custom config provider override")
	}
	if deps.OptionsResolver != optionsResolver {
		t.Fatalf("expected custom options resolver override")
	}
	if deps.IntegrationStore != store {
		t.Fatalf("expected custom integration store")
	}
	if deps.Locker != locker {
		t.Fatalf("expected custom locker")
	}
	if deps.Registry != registry {
		t.Fatalf("expected custom registry")
	}
	if got := svc.Config().ServiceName; got != "resolved" {
		t.Fatalf("expected options resolver output config, got %q", got)
	}
	if mapped := deps.ErrorMapper(errors.New("x")); mapped == nil || mapped.Category != goerrors.CategoryOperation {
		t.Fatalf("expected custom error mapper")
	}
}

func TestNewService_ConfigLayeringPrecedence(t *testing.T) {
	provider := NewCfgxConfigProvider(mapRawLoader{values: map[string]any{
		"service_name": "from-config",
		"refresh": map[string]any{
			"retry_budget":     3,
			"cooldown_seconds": 20,
		},
	}})

	svc, err := NewService(Config{ServiceName: "from-runtime"}, WithConfigProvider(provider))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	cfg := svc.Config()
	if cfg.ServiceName != "from-runtime" {
		t.Fatalf("expected runtime value to override config/default, got %q", cfg.ServiceName)
	}
	if cfg.Refresh.RetryBudget != 3 {
		t.Fatalf("expected config layer retry budget, got %d", cfg.Refresh.RetryBudget)
	}
	if cfg.Refresh.CooldownSeconds != 20 {
		t.Fatalf("expected config layer cooldown, got %d", cfg.Refresh.CooldownSeconds)
	}
	if cfg.Refresh.LockTTLSeconds != DefaultLockTTLSeconds {
		t.Fatalf("expected default lock ttl to survive layering, got %d", cfg.Refresh.LockTTLSeconds)
	}
}

func TestNewService_RejectsInvalidConfig(t *testing.T) {
	provider := NewCfgxConfigProvider(NewStaticConfigLoader(map[string]any{
		"refresh": map[string]any{"cooldown_seconds": -5},
	}))
	if _, err := NewService(Config{}, WithConfigProvider(provider)); err == nil {
		t.Fatalf("expected negative cooldown to be rejected")
	}
}

func TestConfigToLayerMap_SkipsZeroValues(t *testing.T) {
	layer := configToLayerMap(Config{Refresh: RefreshConfig{RetryBudget: 2}}, false)
	if _, ok := layer["service_name"]; ok {
		t.Fatalf("expected empty service name to be skipped")
	}
	refresh, ok := layer["refresh"].(map[string]any)
	if !ok || refresh["retry_budget"] != 2 {
		t.Fatalf("expected retry budget in layer, got %#v", layer)
	}
	if _, ok := refresh["cooldown_seconds"]; ok {
		t.Fatalf("expected zero cooldown to be skipped")
	}
	if full := configToLayerMap(Config{}, true); len(full["refresh"].(map[string]any)) != 3 {
		t.Fatalf("expected zero values when includeZero is set, got %#v", full)
	}
}
