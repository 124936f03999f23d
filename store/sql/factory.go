package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-integrations/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds the SQL-backed stores from a bun db or a
// go-persistence-bun client.
type RepositoryFactory struct {
	db           *bun.DB
	storeOptions []StoreOption

	integrationStore *IntegrationStore
	cachedStore      *CachedIntegrationStore
}

func NewRepositoryFactory(opts ...StoreOption) *RepositoryFactory {
	return &RepositoryFactory{storeOptions: opts}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...StoreOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if err := factory.Build(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...StoreOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if err := factory.Build(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// Build accepts a *bun.DB or anything exposing DB() *bun.DB.
func (f *RepositoryFactory) Build(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.integrationStore != nil {
		return nil
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	store, err := NewIntegrationStore(f.db, f.storeOptions...)
	if err != nil {
		return err
	}
	f.integrationStore = store
	return nil
}

// WithCache layers a read-through cache over the integration store.
func (f *RepositoryFactory) WithCache(cacheService repositorycache.CacheService) error {
	if f == nil || f.integrationStore == nil {
		return fmt.Errorf("sqlstore: repository factory is not built")
	}
	cached, err := NewCachedIntegrationStore(f.integrationStore, cacheService)
	if err != nil {
		return err
	}
	f.cachedStore = cached
	return nil
}

// IntegrationStore returns the cached store when one is configured.
func (f *RepositoryFactory) IntegrationStore() BaseIntegrationStore {
	if f == nil {
		return nil
	}
	if f.cachedStore != nil {
		return f.cachedStore
	}
	if f.integrationStore == nil {
		return nil
	}
	return f.integrationStore
}

func (f *RepositoryFactory) SQLIntegrationStore() *IntegrationStore {
	if f == nil {
		return nil
	}
	return f.integrationStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

// ServiceOptions wires the built store into a core.Service.
func (f *RepositoryFactory) ServiceOptions() []core.Option {
	store := f.IntegrationStore()
	if store == nil {
		return nil
	}
	return []core.Option{core.WithIntegrationStore(store)}
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
