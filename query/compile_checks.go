package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-integrations/core"
)

var (
	_ gocmd.Querier[ListIntegrationsMessage, []core.Integration] = (*ListIntegrationsQuery)(nil)
	_ gocmd.Querier[ListProvidersMessage, []ProviderSummary]     = (*ListProvidersQuery)(nil)
	_ IntegrationReader                                          = (*core.Service)(nil)
	_ ProviderLister                                             = (*core.ProviderRegistry)(nil)
)
