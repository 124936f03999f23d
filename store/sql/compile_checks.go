package sqlstore

import "github.com/goliatone/go-integrations/core"

var (
	_ core.IntegrationStore       = (*IntegrationStore)(nil)
	_ core.IntegrationLister      = (*IntegrationStore)(nil)
	_ core.IntegrationStore       = (*CachedIntegrationStore)(nil)
	_ core.IntegrationLister      = (*CachedIntegrationStore)(nil)
	_ core.FreshIntegrationReader = (*CachedIntegrationStore)(nil)
)
