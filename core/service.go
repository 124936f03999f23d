package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"golang.org/x/sync/singleflight"
)

type Service struct {
	config           Config
	logger           Logger
	loggerProvider   LoggerProvider
	metricsRecorder  MetricsRecorder
	errorFactory     ErrorFactory
	errorMapper      ErrorMapper
	configProvider   ConfigProvider
	optionsResolver  OptionsResolver
	registry         Registry
	integrationStore IntegrationStore
	locker           IntegrationLocker
	cooldown         time.Duration
	wait             WaitFunc
	now              func() time.Time

	// refreshes collapses concurrent refreshes of one integration within this
	// process; locker extends the guarantee across processes.
	refreshes singleflight.Group
}

type ServiceDependencies struct {
	Logger           Logger
	LoggerProvider   LoggerProvider
	MetricsRecorder  MetricsRecorder
	ErrorFactory     ErrorFactory
	ErrorMapper      ErrorMapper
	ConfigProvider   ConfigProvider
	OptionsResolver  OptionsResolver
	Registry         Registry
	IntegrationStore IntegrationStore
	Locker           IntegrationLocker
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("integrations", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("integrations"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewProviderRegistry()
	}
	if builder.locker == nil {
		builder.locker = NewMemoryIntegrationLocker()
	}
	if builder.wait == nil {
		builder.wait = waitWithContext
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	cooldown := finalConfig.Refresh.Cooldown()
	if builder.cooldown != nil {
		cooldown = *builder.cooldown
	}

	return &Service{
		config:           finalConfig,
		logger:           logger,
		loggerProvider:   provider,
		metricsRecorder:  builder.metricsRecorder,
		errorFactory:     builder.errorFactory,
		errorMapper:      builder.errorMapper,
		configProvider:   builder.configProvider,
		optionsResolver:  builder.optionsResolver,
		registry:         builder.registry,
		integrationStore: builder.integrationStore,
		locker:           builder.locker,
		cooldown:         cooldown,
		wait:             builder.wait,
		now:              builder.now,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:           s.logger,
		LoggerProvider:   s.loggerProvider,
		MetricsRecorder:  s.metricsRecorder,
		ErrorFactory:     s.errorFactory,
		ErrorMapper:      s.errorMapper,
		ConfigProvider:   s.configProvider,
		OptionsResolver:  s.optionsResolver,
		Registry:         s.registry,
		IntegrationStore: s.integrationStore,
		Locker:           s.locker,
	}
}

func (s *Service) RegisterProvider(descriptor ProviderDescriptor) error {
	if s == nil || s.registry == nil {
		return fmt.Errorf("core: provider registry is not configured")
	}
	return s.registry.Register(descriptor)
}

// ListIntegrations returns the organization's integrations without credentials.
func (s *Service) ListIntegrations(ctx context.Context, organizationID string) (items []Integration, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"organization_id": organizationID}
	defer func() {
		fields["count"] = len(items)
		s.observeOperation(ctx, startedAt, "list_integrations", err, fields)
	}()

	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		err = badInputError("core: organization id is required")
		return nil, err
	}
	lister, ok := s.integrationStore.(IntegrationLister)
	if !ok || lister == nil {
		err = s.mapError(fmt.Errorf("core: integration store does not support listing"))
		return nil, err
	}
	loaded, listErr := lister.ListByOrganization(ctx, organizationID)
	if listErr != nil {
		err = s.mapError(listErr)
		return nil, err
	}
	items = make([]Integration, 0, len(loaded))
	for _, integration := range loaded {
		items = append(items, integration.Redacted())
	}
	return items, nil
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) clock() time.Time {
	if s == nil || s.now == nil {
		return time.Now().UTC()
	}
	return s.now().UTC()
}
