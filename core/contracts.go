package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type DispatchRequest struct {
	OrganizationID string
	IntegrationID  string
	Operation      string
	Params         Params
	// RetryBudget overrides Config.Refresh.RetryBudget when positive.
	RetryBudget int
}

type DispatchResult struct {
	Value       any
	Invocations int
	Refreshes   int
}

type RefreshIntegrationRequest struct {
	OrganizationID string
	IntegrationID  string
}

type RefreshIntegrationResult struct {
	Integration Integration
	// Refreshed is false when a concurrent caller already replaced the credential.
	Refreshed bool
}

// IntegrationStore is the integration record store collaborator. Get returns an
// error wrapping ErrIntegrationNotFound when the id is unknown.
type IntegrationStore interface {
	Get(ctx context.Context, id string) (Integration, error)
	Update(ctx context.Context, id string, patch IntegrationPatch) error
}

// FreshIntegrationReader is implemented by stores that cache Get. The refresh
// path reloads through GetFresh once it holds the integration lock.
type FreshIntegrationReader interface {
	GetFresh(ctx context.Context, id string) (Integration, error)
}

type IntegrationLister interface {
	ListByOrganization(ctx context.Context, organizationID string) ([]Integration, error)
}

type Registry interface {
	Register(descriptor ProviderDescriptor) error
	Resolve(providerIdentifier string) (ProviderDescriptor, error)
	List() []ProviderDescriptor
}

type LockHandle interface {
	Unlock(ctx context.Context) error
}

// IntegrationLocker guards the refresh critical section of one integration.
// Acquire blocks until the lock is held or ctx is done.
type IntegrationLocker interface {
	Acquire(ctx context.Context, integrationID string, ttl time.Duration) (LockHandle, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// IntegrationService is the surface consumed by command, query, and job adapters.
type IntegrationService interface {
	Dispatch(ctx context.Context, req DispatchRequest) (DispatchResult, error)
	RefreshIntegration(ctx context.Context, req RefreshIntegrationRequest) (RefreshIntegrationResult, error)
	ListIntegrations(ctx context.Context, organizationID string) ([]Integration, error)
}
