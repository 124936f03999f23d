package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/uptrace/bun"
)

func newIntegrationRecord(in core.Integration, now time.Time) *integrationRecord {
	record := &integrationRecord{
		ID:                 strings.TrimSpace(in.ID),
		OrganizationID:     strings.TrimSpace(in.OrganizationID),
		ProviderIdentifier: strings.TrimSpace(in.ProviderIdentifier),
		Name:               in.Name,
		Picture:            in.Picture,
		InternalID:         strings.TrimSpace(in.InternalID),
		AccessToken:        in.AccessToken,
		RefreshToken:       in.RefreshToken,
		Disabled:           in.Disabled,
		RefreshNeeded:      in.RefreshNeeded,
		TokenExpiresAt:     utcPointer(in.TokenExpiresAt),
		TokenRefreshedAt:   utcPointer(in.TokenRefreshedAt),
		Profile:            in.Profile,
		CreatedAt:          in.CreatedAt.UTC(),
		UpdatedAt:          now,
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if in.Customer != nil {
		id := in.Customer.ID
		name := in.Customer.Name
		record.CustomerID = &id
		record.CustomerName = &name
	}
	return record
}

func (r *integrationRecord) toDomain() core.Integration {
	if r == nil {
		return core.Integration{}
	}
	integration := core.Integration{
		ID:                 r.ID,
		OrganizationID:     r.OrganizationID,
		ProviderIdentifier: r.ProviderIdentifier,
		Name:               r.Name,
		Picture:            r.Picture,
		AccessToken:        r.AccessToken,
		RefreshToken:       r.RefreshToken,
		InternalID:         r.InternalID,
		Disabled:           r.Disabled,
		RefreshNeeded:      r.RefreshNeeded,
		TokenExpiresAt:     utcPointer(r.TokenExpiresAt),
		TokenRefreshedAt:   utcPointer(r.TokenRefreshedAt),
		Profile:            r.Profile,
		CreatedAt:          r.CreatedAt.UTC(),
		UpdatedAt:          r.UpdatedAt.UTC(),
	}
	if r.CustomerID != nil && strings.TrimSpace(*r.CustomerID) != "" {
		customer := &core.Customer{ID: *r.CustomerID}
		if r.CustomerName != nil {
			customer.Name = *r.CustomerName
		}
		integration.Customer = customer
	}
	return integration
}

// applyPatch sets only the columns named by patch.
func applyPatch(q *bun.UpdateQuery, patch core.IntegrationPatch, now time.Time) *bun.UpdateQuery {
	if patch.AccessToken != nil {
		q = q.Set("access_token = ?", *patch.AccessToken)
	}
	if patch.RefreshToken != nil {
		q = q.Set("refresh_token = ?", *patch.RefreshToken)
	}
	if patch.TokenExpiresAt != nil {
		q = q.Set("token_expires_at = ?", patch.TokenExpiresAt.UTC())
	}
	if patch.TokenRefreshedAt != nil {
		q = q.Set("token_refreshed_at = ?", patch.TokenRefreshedAt.UTC())
	}
	if patch.Disabled != nil {
		q = q.Set("disabled = ?", *patch.Disabled)
	}
	if patch.RefreshNeeded != nil {
		q = q.Set("refresh_needed = ?", *patch.RefreshNeeded)
	}
	return q.Set("updated_at = ?", now)
}

func utcPointer(value *time.Time) *time.Time {
	if value == nil || value.IsZero() {
		return nil
	}
	copied := value.UTC()
	return &copied
}
