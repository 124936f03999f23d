package query

import (
	"context"

	"github.com/goliatone/go-integrations/core"
)

type IntegrationReader interface {
	ListIntegrations(ctx context.Context, organizationID string) ([]core.Integration, error)
}

type ProviderLister interface {
	List() []core.ProviderDescriptor
}

// ProviderSummary describes a registered provider without exposing its
// capability functions.
type ProviderSummary struct {
	Identifier              string   `json:"identifier"`
	Operations              []string `json:"operations"`
	RefreshCooldownRequired bool     `json:"refresh_cooldown_required"`
}

type ListIntegrationsQuery struct {
	reader IntegrationReader
}

func NewListIntegrationsQuery(reader IntegrationReader) *ListIntegrationsQuery {
	return &ListIntegrationsQuery{reader: reader}
}

func (q *ListIntegrationsQuery) Query(ctx context.Context, msg ListIntegrationsMessage) ([]core.Integration, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: integration reader is required")
	}
	return q.reader.ListIntegrations(ctx, msg.OrganizationID)
}

type ListProvidersQuery struct {
	lister ProviderLister
}

func NewListProvidersQuery(lister ProviderLister) *ListProvidersQuery {
	return &ListProvidersQuery{lister: lister}
}

func (q *ListProvidersQuery) Query(_ context.Context, _ ListProvidersMessage) ([]ProviderSummary, error) {
	if q == nil || q.lister == nil {
		return nil, queryDependencyError("query: provider registry is required")
	}
	descriptors := q.lister.List()
	out := make([]ProviderSummary, 0, len(descriptors))
	for _, descriptor := range descriptors {
		out = append(out, ProviderSummary{
			Identifier:              descriptor.Identifier,
			Operations:              descriptor.OperationNames(),
			RefreshCooldownRequired: descriptor.RefreshCooldownRequired,
		})
	}
	return out, nil
}
