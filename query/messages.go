package query

import (
	"strings"
)

const (
	TypeListIntegrations = "integrations.query.integrations.list"
	TypeListProviders    = "integrations.query.providers.list"
)

type ListIntegrationsMessage struct {
	OrganizationID string
}

func (ListIntegrationsMessage) Type() string { return TypeListIntegrations }

func (m ListIntegrationsMessage) Validate() error {
	if strings.TrimSpace(m.OrganizationID) == "" {
		return queryValidationError("organization_id", "organization id is required")
	}
	return nil
}

type ListProvidersMessage struct{}

func (ListProvidersMessage) Type() string { return TypeListProviders }

func (ListProvidersMessage) Validate() error { return nil }
