package core

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrIntegrationNotFound = errors.New("core: integration not found")
	ErrProviderNotFound    = errors.New("core: provider not found")
	ErrOperationNotFound   = errors.New("core: operation not found")
)

// Integration is a stored connection between an organization and one platform
// account. AccessToken and RefreshToken are confidential and must never reach
// logs or listings.
type Integration struct {
	ID                 string
	OrganizationID     string
	ProviderIdentifier string
	Name               string
	Picture            string
	AccessToken        string
	RefreshToken       string
	InternalID         string
	Disabled           bool
	RefreshNeeded      bool
	TokenExpiresAt     *time.Time
	TokenRefreshedAt   *time.Time
	Profile            string
	Customer           *Customer
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type Customer struct {
	ID   string
	Name string
}

// Redacted returns a copy without credentials.
func (i Integration) Redacted() Integration {
	out := i.Clone()
	out.AccessToken = ""
	out.RefreshToken = ""
	return out
}

func (i Integration) Clone() Integration {
	out := i
	out.TokenExpiresAt = cloneTimePointer(i.TokenExpiresAt)
	out.TokenRefreshedAt = cloneTimePointer(i.TokenRefreshedAt)
	if i.Customer != nil {
		customer := *i.Customer
		out.Customer = &customer
	}
	return out
}

// BelongsTo reports whether the integration is owned by organizationID. An
// empty organization id skips the tenant check.
func (i Integration) BelongsTo(organizationID string) bool {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return true
	}
	return strings.TrimSpace(i.OrganizationID) == organizationID
}

// IntegrationPatch is a partial update. Nil fields are left untouched.
type IntegrationPatch struct {
	AccessToken      *string
	RefreshToken     *string
	TokenExpiresAt   *time.Time
	TokenRefreshedAt *time.Time
	Disabled         *bool
	RefreshNeeded    *bool
}

func (p IntegrationPatch) IsEmpty() bool {
	return p.AccessToken == nil &&
		p.RefreshToken == nil &&
		p.TokenExpiresAt == nil &&
		p.TokenRefreshedAt == nil &&
		p.Disabled == nil &&
		p.RefreshNeeded == nil
}

// Apply returns a copy of integration with the patch applied.
func (p IntegrationPatch) Apply(integration Integration, now time.Time) Integration {
	out := integration.Clone()
	if p.AccessToken != nil {
		out.AccessToken = *p.AccessToken
	}
	if p.RefreshToken != nil {
		out.RefreshToken = *p.RefreshToken
	}
	if p.TokenExpiresAt != nil {
		out.TokenExpiresAt = cloneTimePointer(p.TokenExpiresAt)
	}
	if p.TokenRefreshedAt != nil {
		out.TokenRefreshedAt = cloneTimePointer(p.TokenRefreshedAt)
	}
	if p.Disabled != nil {
		out.Disabled = *p.Disabled
	}
	if p.RefreshNeeded != nil {
		out.RefreshNeeded = *p.RefreshNeeded
	}
	if !now.IsZero() {
		out.UpdatedAt = now.UTC()
	}
	return out
}

// RefreshedCredential is returned by a provider refresh contract. An empty
// RefreshToken keeps the stored one.
type RefreshedCredential struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Params carries operation input. Shape is defined per operation.
type Params map[string]any

func (p Params) String(key string) string {
	if len(p) == 0 {
		return ""
	}
	value, ok := p[key]
	if !ok || value == nil {
		return ""
	}
	if typed, ok := value.(string); ok {
		return strings.TrimSpace(typed)
	}
	return ""
}

func (p Params) Clone() Params {
	return Params(copyAnyMap(p))
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func cloneTimePointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := value.UTC()
	return &copied
}

func stringPtr(value string) *string {
	return &value
}

func boolPtr(value bool) *bool {
	return &value
}

func timePtr(value time.Time) *time.Time {
	return &value
}
