package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryIntegrationStore_GetUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIntegrationStore(seedIntegration("int_1"))

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrIntegrationNotFound) {
		t.Fatalf("expected ErrIntegrationNotFound, got %v", err)
	}
	if err := store.Update(ctx, "missing", IntegrationPatch{Disabled: boolPtr(true)}); !errors.Is(err, ErrIntegrationNotFound) {
		t.Fatalf("expected ErrIntegrationNotFound on update, got %v", err)
	}

	refreshedAt := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	if err := store.Update(ctx, "int_1", IntegrationPatch{
		AccessToken:      stringPtr("new"),
		TokenRefreshedAt: &refreshedAt,
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := store.Get(ctx, "int_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AccessToken != "new" || got.RefreshToken != "stale-refresh" {
		t.Fatalf("expected partial update, got %q/%q", got.AccessToken, got.RefreshToken)
	}
	if got.TokenRefreshedAt == nil || !got.TokenRefreshedAt.Equal(refreshedAt) {
		t.Fatalf("expected refreshed timestamp, got %v", got.TokenRefreshedAt)
	}

	if err := store.Update(ctx, "int_1", IntegrationPatch{}); err != nil {
		t.Fatalf("empty update: %v", err)
	}
	if store.UpdateCount("int_1") != 1 {
		t.Fatalf("expected empty patch not to count as a write")
	}
}

func TestMemoryIntegrationStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIntegrationStore(seedIntegration("int_1"))
	got, _ := store.Get(ctx, "int_1")
	got.AccessToken = "mutated"
	again, _ := store.Get(ctx, "int_1")
	if again.AccessToken != "stale-token" {
		t.Fatalf("expected store to be isolated from caller mutations")
	}
}

func TestListIntegrations_ScopesAndRedacts(t *testing.T) {
	ctx := context.Background()
	other := seedIntegration("int_other")
	other.OrganizationID = "org_2"
	later := seedIntegration("int_2")
	later.CreatedAt = later.CreatedAt.Add(time.Hour)
	store := NewMemoryIntegrationStore(later, seedIntegration("int_1"), other)
	svc := newTestService(t, store, testDescriptor(&countingRefresher{}, false,
		map[string]OperationFunc{"profile": (&scriptedOperation{}).call}))

	items, err := svc.ListIntegrations(ctx, "org_1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 || items[0].ID != "int_1" || items[1].ID != "int_2" {
		t.Fatalf("expected org_1 integrations ordered by creation, got %#v", items)
	}
	for _, item := range items {
		if item.AccessToken != "" || item.RefreshToken != "" {
			t.Fatalf("expected credentials to be redacted from listing")
		}
	}

	_, err = svc.ListIntegrations(ctx, "")
	requireKind(t, err, KindBadInput)
}

func TestListIntegrations_RequiresLister(t *testing.T) {
	svc := newTestService(t, failingStore{}, testDescriptor(&countingRefresher{}, false,
		map[string]OperationFunc{"profile": (&scriptedOperation{}).call}))
	if _, err := svc.ListIntegrations(context.Background(), "org_1"); err == nil {
		t.Fatalf("expected error for store without listing support")
	}
}

func TestIntegrationPatch_Apply(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	base := seedIntegration("int_1")
	out := IntegrationPatch{Disabled: boolPtr(true), RefreshNeeded: boolPtr(true)}.Apply(base, now)
	if !out.Disabled || !out.RefreshNeeded {
		t.Fatalf("expected flags applied")
	}
	if out.AccessToken != base.AccessToken {
		t.Fatalf("expected untouched fields preserved")
	}
	if !out.UpdatedAt.Equal(now) {
		t.Fatalf("expected updated_at bumped")
	}
	if base.Disabled {
		t.Fatalf("expected source integration unchanged")
	}
}
