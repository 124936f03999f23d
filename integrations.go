// Package integrations dispatches named operations to social platform
// integrations, refreshing expired OAuth credentials once per integration no
// matter how many callers observe the expiry.
package integrations

import "github.com/goliatone/go-integrations/core"

type Config = core.Config

type RefreshConfig = core.RefreshConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type Integration = core.Integration
type IntegrationPatch = core.IntegrationPatch
type IntegrationStore = core.IntegrationStore
type IntegrationLister = core.IntegrationLister
type IntegrationLocker = core.IntegrationLocker
type ProviderDescriptor = core.ProviderDescriptor
type OperationFunc = core.OperationFunc
type Refresher = core.Refresher
type RefreshedCredential = core.RefreshedCredential
type Result = core.Result
type Params = core.Params
type Kind = core.Kind

type DispatchRequest = core.DispatchRequest
type DispatchResult = core.DispatchResult

type RefreshIntegrationRequest = core.RefreshIntegrationRequest
type RefreshIntegrationResult = core.RefreshIntegrationResult

var (
	WithLogger                 = core.WithLogger
	WithLoggerProvider         = core.WithLoggerProvider
	WithMetricsRecorder        = core.WithMetricsRecorder
	WithErrorFactory           = core.WithErrorFactory
	WithErrorMapper            = core.WithErrorMapper
	WithConfigProvider         = core.WithConfigProvider
	WithOptionsResolver        = core.WithOptionsResolver
	WithRegistry               = core.WithRegistry
	WithIntegrationStore       = core.WithIntegrationStore
	WithIntegrationLocker      = core.WithIntegrationLocker
	WithRefreshCooldown        = core.WithRefreshCooldown
	WithWaitFunc               = core.WithWaitFunc
	WithClock                  = core.WithClock
	KindOf                     = core.KindOf
	IsRetryable                = core.IsRetryable
	Success                    = core.Success
	TokenExpired               = core.TokenExpired
	Failure                    = core.Failure
	NewProviderRegistry        = core.NewProviderRegistry
	NewCfgxConfigProvider      = core.NewCfgxConfigProvider
	NewStaticConfigLoader      = core.NewStaticConfigLoader
	NewMemoryIntegrationStore  = core.NewMemoryIntegrationStore
	NewMemoryIntegrationLocker = core.NewMemoryIntegrationLocker
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
