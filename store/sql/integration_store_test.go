package sqlstore_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-integrations/core"
	sqlstore "github.com/goliatone/go-integrations/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()
	dsn := fmt.Sprintf("file:integrations-test-%d?mode=memory&cache=shared", time.Now().UnixNano())
	client, err := sqlstore.Open(context.Background(), sqlstore.PersistenceConfig{
		Driver:         sqlstore.DriverSQLite,
		DSN:            dsn,
		OtelIdentifier: "go-integrations-tests",
	})
	if err != nil {
		t.Fatalf("open sqlite client: %v", err)
	}
	return client, func() {
		_ = client.Close()
	}
}

func newStore(t *testing.T) (*sqlstore.RepositoryFactory, func()) {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		cleanup()
		t.Fatalf("new repository factory: %v", err)
	}
	return factory, cleanup
}

func seed(org string, internalID string) core.Integration {
	expires := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return core.Integration{
		OrganizationID:     org,
		ProviderIdentifier: "tiktok",
		Name:               "Account " + internalID,
		InternalID:         internalID,
		AccessToken:        "access-" + internalID,
		RefreshToken:       "refresh-" + internalID,
		TokenExpiresAt:     &expires,
		Customer:           &core.Customer{ID: "cust_1", Name: "Acme"},
	}
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"integrations",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "integrations" {
		t.Fatalf("expected integrations table, got %q", tableName)
	}
}

func TestIntegrationStore_CreateGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newStore(t)
	defer cleanup()
	store := factory.SQLIntegrationStore()

	created, err := store.Create(ctx, seed("org_1", "acct_1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}

	got, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AccessToken != "access-acct_1" || got.RefreshToken != "refresh-acct_1" {
		t.Fatalf("unexpected credentials %q/%q", got.AccessToken, got.RefreshToken)
	}
	if got.TokenExpiresAt == nil || !got.TokenExpiresAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected expiry %v", got.TokenExpiresAt)
	}
	if got.Customer == nil || got.Customer.Name != "Acme" {
		t.Fatalf("expected customer round trip, got %+v", got.Customer)
	}
	if got.TokenRefreshedAt != nil {
		t.Fatalf("expected nil refreshed at, got %v", got.TokenRefreshedAt)
	}
}

func TestIntegrationStore_GetMissingWrapsNotFound(t *testing.T) {
	factory, cleanup := newStore(t)
	defer cleanup()

	_, err := factory.SQLIntegrationStore().Get(context.Background(), "missing")
	if !errors.Is(err, core.ErrIntegrationNotFound) {
		t.Fatalf("expected ErrIntegrationNotFound, got %v", err)
	}
	err = factory.SQLIntegrationStore().Update(context.Background(), "missing", core.IntegrationPatch{})
	if !errors.Is(err, core.ErrIntegrationNotFound) {
		t.Fatalf("expected ErrIntegrationNotFound on empty patch, got %v", err)
	}
}

func TestIntegrationStore_UpdateAppliesOnlyPatchedColumns(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newStore(t)
	defer cleanup()
	store := factory.SQLIntegrationStore()

	created, err := store.Create(ctx, seed("org_1", "acct_1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	token := "rotated"
	refreshedAt := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	needed := false
	if err := store.Update(ctx, created.ID, core.IntegrationPatch{
		AccessToken:      &token,
		TokenRefreshedAt: &refreshedAt,
		RefreshNeeded:    &needed,
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AccessToken != "rotated" {
		t.Fatalf("expected rotated access token, got %q", got.AccessToken)
	}
	if got.RefreshToken != "refresh-acct_1" {
		t.Fatalf("expected untouched refresh token, got %q", got.RefreshToken)
	}
	if got.TokenRefreshedAt == nil || !got.TokenRefreshedAt.Equal(refreshedAt) {
		t.Fatalf("unexpected refreshed at %v", got.TokenRefreshedAt)
	}

	err = store.Update(ctx, "missing", core.IntegrationPatch{AccessToken: &token})
	if !errors.Is(err, core.ErrIntegrationNotFound) {
		t.Fatalf("expected ErrIntegrationNotFound for unknown id, got %v", err)
	}
}

func TestIntegrationStore_ListByOrganizationAndDelete(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newStore(t)
	defer cleanup()
	store := factory.SQLIntegrationStore()

	first, err := store.Create(ctx, seed("org_1", "acct_1"))
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	if _, err := store.Create(ctx, seed("org_1", "acct_2")); err != nil {
		t.Fatalf("create second: %v", err)
	}
	if _, err := store.Create(ctx, seed("org_2", "acct_1")); err != nil {
		t.Fatalf("create other org: %v", err)
	}
	if _, err := store.Create(ctx, seed("org_1", "acct_1")); err == nil {
		t.Fatalf("expected duplicate internal id within organization to fail")
	}

	listed, err := store.ListByOrganization(ctx, "org_1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 integrations for org_1, got %d", len(listed))
	}

	if err := store.Delete(ctx, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, first.ID); !errors.Is(err, core.ErrIntegrationNotFound) {
		t.Fatalf("expected deleted integration to be hidden, got %v", err)
	}
	listed, err = store.ListByOrganization(ctx, "org_1")
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 integration after delete, got %d", len(listed))
	}

	if _, err := store.ListByOrganization(ctx, " "); err == nil {
		t.Fatalf("expected organization id validation error")
	}
}

func TestIntegrationStore_ListExpiringSkipsDisabled(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newStore(t)
	defer cleanup()
	store := factory.SQLIntegrationStore()

	soon, err := store.Create(ctx, seed("org_1", "acct_soon"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	disabled := seed("org_1", "acct_disabled")
	disabled.Disabled = true
	if _, err := store.Create(ctx, disabled); err != nil {
		t.Fatalf("create disabled: %v", err)
	}
	later := seed("org_1", "acct_later")
	far := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	later.TokenExpiresAt = &far
	if _, err := store.Create(ctx, later); err != nil {
		t.Fatalf("create later: %v", err)
	}

	due, err := store.ListExpiring(ctx, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), 10)
	if err != nil {
		t.Fatalf("list expiring: %v", err)
	}
	if len(due) != 1 || due[0].ID != soon.ID {
		t.Fatalf("expected only %s to be due, got %+v", soon.ID, due)
	}
}

func TestCachedIntegrationStore_EvictsOnUpdate(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newStore(t)
	defer cleanup()

	created, err := factory.SQLIntegrationStore().Create(ctx, seed("org_1", "acct_1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := factory.WithCache(newTestCacheService(t)); err != nil {
		t.Fatalf("with cache: %v", err)
	}
	cached := factory.IntegrationStore()

	if _, err := cached.Get(ctx, created.ID); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	// Bypass the cache so only GetFresh can observe the write.
	token := "written-elsewhere"
	if err := factory.SQLIntegrationStore().Update(ctx, created.ID, core.IntegrationPatch{AccessToken: &token}); err != nil {
		t.Fatalf("direct update: %v", err)
	}
	got, err := cached.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if got.AccessToken != "access-acct_1" {
		t.Fatalf("expected cached token, got %q", got.AccessToken)
	}
	fresh, err := cached.(core.FreshIntegrationReader).GetFresh(ctx, created.ID)
	if err != nil {
		t.Fatalf("fresh get: %v", err)
	}
	if fresh.AccessToken != "written-elsewhere" {
		t.Fatalf("expected fresh read to bypass cache, got %q", fresh.AccessToken)
	}

	next := "written-through"
	if err := cached.Update(ctx, created.ID, core.IntegrationPatch{AccessToken: &next}); err != nil {
		t.Fatalf("cached update: %v", err)
	}
	got, err = cached.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get after eviction: %v", err)
	}
	if got.AccessToken != "written-through" {
		t.Fatalf("expected eviction on update, got %q", got.AccessToken)
	}
}

func TestIntegrationCacheKey(t *testing.T) {
	key, err := sqlstore.IntegrationCacheKey(" int/1 ")
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	if key != "go-integrations::integration::v1::int%2F1" {
		t.Fatalf("unexpected cache key %q", key)
	}
	if _, err := sqlstore.IntegrationCacheKey(""); err == nil {
		t.Fatalf("expected error for empty id")
	}
}

func TestService_RefreshPersistsThroughSQLStore(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newStore(t)
	defer cleanup()

	created, err := factory.SQLIntegrationStore().Create(ctx, seed("org_1", "acct_1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	registry := core.NewProviderRegistry()
	if err := registry.Register(core.ProviderDescriptor{
		Identifier: "tiktok",
		Capabilities: map[string]core.OperationFunc{
			"profile": func(_ context.Context, token string, _ core.Params, _ string, _ core.Integration) core.Result {
				if token != "fresh" {
					return core.TokenExpired("expired")
				}
				return core.Success("ok")
			},
		},
		Refresher: core.RefresherFunc(func(context.Context, core.Integration) (*core.RefreshedCredential, error) {
			return &core.RefreshedCredential{AccessToken: "fresh", ExpiresIn: time.Hour}, nil
		}),
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	opts := append(factory.ServiceOptions(), core.WithRegistry(registry), core.WithRefreshCooldown(0))
	svc, err := core.NewService(core.Config{}, opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	result, err := svc.Dispatch(ctx, core.DispatchRequest{
		OrganizationID: "org_1",
		IntegrationID:  created.ID,
		Operation:      "profile",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.Value != "ok" || result.Refreshes != 1 {
		t.Fatalf("unexpected dispatch result %+v", result)
	}
	stored, err := factory.SQLIntegrationStore().Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.AccessToken != "fresh" || stored.TokenRefreshedAt == nil {
		t.Fatalf("expected persisted refresh, got token=%q refreshed_at=%v", stored.AccessToken, stored.TokenRefreshedAt)
	}
}

func newTestCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
