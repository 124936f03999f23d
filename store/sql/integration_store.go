package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/security"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// IntegrationStore persists integrations in the integrations table.
type IntegrationStore struct {
	db     *bun.DB
	repo   repository.Repository[*integrationRecord]
	cipher security.TokenCipher
	nowFn  func() time.Time
}

type StoreOption func(*IntegrationStore)

// WithTokenCipher seals access and refresh tokens at rest. Rows written
// before a cipher was configured are still read as plaintext.
func WithTokenCipher(cipher security.TokenCipher) StoreOption {
	return func(s *IntegrationStore) {
		s.cipher = cipher
	}
}

func NewIntegrationStore(db *bun.DB, opts ...StoreOption) (*IntegrationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*integrationRecord](db, integrationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid integration repository wiring: %w", err)
		}
	}
	store := &IntegrationStore{
		db:    db,
		repo:  repo,
		nowFn: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// Create inserts a new integration. A blank id is filled with a UUID.
func (s *IntegrationStore) Create(ctx context.Context, in core.Integration) (core.Integration, error) {
	if s == nil || s.repo == nil {
		return core.Integration{}, fmt.Errorf("sqlstore: integration store is not configured")
	}
	if strings.TrimSpace(in.OrganizationID) == "" {
		return core.Integration{}, fmt.Errorf("sqlstore: organization id is required")
	}
	if strings.TrimSpace(in.ProviderIdentifier) == "" {
		return core.Integration{}, fmt.Errorf("sqlstore: provider identifier is required")
	}
	record := newIntegrationRecord(in, s.nowFn())
	if err := s.sealRecord(ctx, record); err != nil {
		return core.Integration{}, err
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Integration{}, err
	}
	return s.toDomain(ctx, created)
}

func (s *IntegrationStore) Get(ctx context.Context, id string) (core.Integration, error) {
	if s == nil || s.db == nil {
		return core.Integration{}, fmt.Errorf("sqlstore: integration store is not configured")
	}
	trimmed := strings.TrimSpace(id)
	record := &integrationRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", trimmed).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Integration{}, fmt.Errorf("%w: id %q", core.ErrIntegrationNotFound, trimmed)
		}
		return core.Integration{}, err
	}
	return s.toDomain(ctx, record)
}

// Update applies patch in a single statement. Concurrent refreshes are
// serialized by the integration lock, not here.
func (s *IntegrationStore) Update(ctx context.Context, id string, patch core.IntegrationPatch) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: integration store is not configured")
	}
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return fmt.Errorf("sqlstore: integration id is required")
	}
	if patch.IsEmpty() {
		_, err := s.Get(ctx, trimmed)
		return err
	}
	sealed, err := s.sealPatch(ctx, patch)
	if err != nil {
		return err
	}
	q := s.db.NewUpdate().
		Model((*integrationRecord)(nil)).
		Where("id = ?", trimmed)
	result, err := applyPatch(q, sealed, s.nowFn()).Exec(ctx)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%w: id %q", core.ErrIntegrationNotFound, trimmed)
	}
	return nil
}

func (s *IntegrationStore) ListByOrganization(ctx context.Context, organizationID string) ([]core.Integration, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: integration store is not configured")
	}
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, fmt.Errorf("sqlstore: organization id is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("organization_id", "=", organizationID),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.deleted_at IS NULL")
		}),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	return s.toDomainList(ctx, records)
}

// ListExpiring returns enabled integrations whose token expires before the
// cutoff, oldest expiry first.
func (s *IntegrationStore) ListExpiring(ctx context.Context, before time.Time, limit int) ([]core.Integration, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: integration store is not configured")
	}
	if limit <= 0 {
		limit = 100
	}
	records := make([]*integrationRecord, 0)
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.disabled = ?", false).
		Where("?TableAlias.token_expires_at IS NOT NULL").
		Where("?TableAlias.token_expires_at <= ?", before.UTC()).
		OrderExpr("?TableAlias.token_expires_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return s.toDomainList(ctx, records)
}

// Delete soft-deletes an integration.
func (s *IntegrationStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: integration store is not configured")
	}
	trimmed := strings.TrimSpace(id)
	result, err := s.db.NewDelete().
		Model((*integrationRecord)(nil)).
		Where("id = ?", trimmed).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%w: id %q", core.ErrIntegrationNotFound, trimmed)
	}
	return nil
}

func (s *IntegrationStore) toDomain(ctx context.Context, record *integrationRecord) (core.Integration, error) {
	integration := record.toDomain()
	var err error
	if integration.AccessToken, err = security.OpenToken(ctx, s.cipher, integration.AccessToken); err != nil {
		return core.Integration{}, fmt.Errorf("sqlstore: open access token for %q: %w", integration.ID, err)
	}
	if integration.RefreshToken, err = security.OpenToken(ctx, s.cipher, integration.RefreshToken); err != nil {
		return core.Integration{}, fmt.Errorf("sqlstore: open refresh token for %q: %w", integration.ID, err)
	}
	return integration, nil
}

func (s *IntegrationStore) toDomainList(ctx context.Context, records []*integrationRecord) ([]core.Integration, error) {
	out := make([]core.Integration, 0, len(records))
	for _, record := range records {
		integration, err := s.toDomain(ctx, record)
		if err != nil {
			return nil, err
		}
		out = append(out, integration)
	}
	return out, nil
}

func (s *IntegrationStore) sealRecord(ctx context.Context, record *integrationRecord) error {
	var err error
	if record.AccessToken, err = security.SealToken(ctx, s.cipher, record.AccessToken); err != nil {
		return fmt.Errorf("sqlstore: seal access token: %w", err)
	}
	if record.RefreshToken, err = security.SealToken(ctx, s.cipher, record.RefreshToken); err != nil {
		return fmt.Errorf("sqlstore: seal refresh token: %w", err)
	}
	return nil
}

func (s *IntegrationStore) sealPatch(ctx context.Context, patch core.IntegrationPatch) (core.IntegrationPatch, error) {
	if patch.AccessToken != nil {
		sealed, err := security.SealToken(ctx, s.cipher, *patch.AccessToken)
		if err != nil {
			return patch, fmt.Errorf("sqlstore: seal access token: %w", err)
		}
		patch.AccessToken = &sealed
	}
	if patch.RefreshToken != nil {
		sealed, err := security.SealToken(ctx, s.cipher, *patch.RefreshToken)
		if err != nil {
			return patch, fmt.Errorf("sqlstore: seal refresh token: %w", err)
		}
		patch.RefreshToken = &sealed
	}
	return patch, nil
}
