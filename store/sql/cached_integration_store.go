package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-integrations/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const integrationCacheKeyPrefix = "go-integrations::integration::v1"

// BaseIntegrationStore is what CachedIntegrationStore wraps.
type BaseIntegrationStore interface {
	core.IntegrationStore
	core.IntegrationLister
}

// CachedIntegrationStore serves Get from a read-through cache and evicts on
// Update. GetFresh always reads the base store, so the refresh path never
// compares against a cached token.
type CachedIntegrationStore struct {
	base  BaseIntegrationStore
	cache repositorycache.CacheService
}

func NewCachedIntegrationStore(
	base BaseIntegrationStore,
	cacheService repositorycache.CacheService,
) (*CachedIntegrationStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base integration store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: integration cache service is required")
	}
	return &CachedIntegrationStore{base: base, cache: cacheService}, nil
}

// IntegrationCacheKey returns go-integrations::integration::v1::<id> with the
// id URL-path escaped.
func IntegrationCacheKey(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return "", fmt.Errorf("sqlstore: integration id is required")
	}
	return integrationCacheKeyPrefix + "::" + url.PathEscape(trimmed), nil
}

func (s *CachedIntegrationStore) Get(ctx context.Context, id string) (core.Integration, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Integration{}, fmt.Errorf("sqlstore: cached integration store is not configured")
	}
	cacheKey, err := IntegrationCacheKey(id)
	if err != nil {
		return core.Integration{}, err
	}
	integration, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Integration, error) {
		return s.base.Get(ctx, strings.TrimSpace(id))
	})
	if err != nil {
		return core.Integration{}, err
	}
	return integration.Clone(), nil
}

func (s *CachedIntegrationStore) GetFresh(ctx context.Context, id string) (core.Integration, error) {
	if s == nil || s.base == nil {
		return core.Integration{}, fmt.Errorf("sqlstore: cached integration store is not configured")
	}
	return s.base.Get(ctx, strings.TrimSpace(id))
}

func (s *CachedIntegrationStore) Update(ctx context.Context, id string, patch core.IntegrationPatch) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached integration store is not configured")
	}
	cacheKey, err := IntegrationCacheKey(id)
	if err != nil {
		return err
	}
	if err := s.base.Update(ctx, strings.TrimSpace(id), patch); err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

// ListByOrganization is not cached.
func (s *CachedIntegrationStore) ListByOrganization(ctx context.Context, organizationID string) ([]core.Integration, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached integration store is not configured")
	}
	return s.base.ListByOrganization(ctx, organizationID)
}
