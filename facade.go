package integrations

import (
	"fmt"

	integrationcommand "github.com/goliatone/go-integrations/command"
	"github.com/goliatone/go-integrations/core"
	integrationquery "github.com/goliatone/go-integrations/query"
)

type CommandQueryService interface {
	integrationcommand.MutatingService
	integrationquery.IntegrationReader
}

type Commands struct {
	Dispatch           *integrationcommand.DispatchCommand
	RecoverAndRetry    *integrationcommand.RecoverAndRetryCommand
	RefreshIntegration *integrationcommand.RefreshIntegrationCommand
}

type Queries struct {
	ListIntegrations *integrationquery.ListIntegrationsQuery
	ListProviders    *integrationquery.ListProvidersQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	providers integrationquery.ProviderLister
}

// WithProviderLister overrides the registry the provider listing reads from.
func WithProviderLister(lister integrationquery.ProviderLister) FacadeOption {
	return func(options *facadeOptions) {
		options.providers = lister
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("integrations: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	lister := cfg.providers
	if lister == nil {
		lister = resolveProviderLister(service)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		Dispatch:           integrationcommand.NewDispatchCommand(service),
		RecoverAndRetry:    integrationcommand.NewRecoverAndRetryCommand(service),
		RefreshIntegration: integrationcommand.NewRefreshIntegrationCommand(service),
	}
	facade.queries = Queries{
		ListIntegrations: integrationquery.NewListIntegrationsQuery(service),
		ListProviders:    integrationquery.NewListProvidersQuery(lister),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// resolveProviderLister falls back to the service registry when the service
// exposes its dependencies.
func resolveProviderLister(service CommandQueryService) integrationquery.ProviderLister {
	if lister, ok := service.(integrationquery.ProviderLister); ok {
		return lister
	}
	provider, ok := service.(interface {
		Dependencies() core.ServiceDependencies
	})
	if !ok {
		return nil
	}
	registry := provider.Dependencies().Registry
	if registry == nil {
		return nil
	}
	return registry
}
