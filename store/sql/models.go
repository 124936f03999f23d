package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type integrationRecord struct {
	bun.BaseModel `bun:"table:integrations,alias:i"`

	ID                 string     `bun:"id,pk"`
	OrganizationID     string     `bun:"organization_id,notnull"`
	ProviderIdentifier string     `bun:"provider_identifier,notnull"`
	Name               string     `bun:"name,notnull"`
	Picture            string     `bun:"picture,notnull"`
	InternalID         string     `bun:"internal_id,notnull"`
	AccessToken        string     `bun:"access_token,notnull"`
	RefreshToken       string     `bun:"refresh_token,notnull"`
	Disabled           bool       `bun:"disabled,notnull"`
	RefreshNeeded      bool       `bun:"refresh_needed,notnull"`
	TokenExpiresAt     *time.Time `bun:"token_expires_at,nullzero"`
	TokenRefreshedAt   *time.Time `bun:"token_refreshed_at,nullzero"`
	Profile            string     `bun:"profile,notnull"`
	CustomerID         *string    `bun:"customer_id"`
	CustomerName       *string    `bun:"customer_name"`
	CreatedAt          time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt          time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt          *time.Time `bun:"deleted_at,soft_delete"`
}
