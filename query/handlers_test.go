package query

import (
	"context"
	"testing"

	"github.com/goliatone/go-integrations/core"
)

type stubIntegrationReader struct {
	listFn func(context.Context, string) ([]core.Integration, error)
}

func (s stubIntegrationReader) ListIntegrations(ctx context.Context, organizationID string) ([]core.Integration, error) {
	return s.listFn(ctx, organizationID)
}

func TestListIntegrationsQuery_QueryDelegates(t *testing.T) {
	called := false
	reader := stubIntegrationReader{
		listFn: func(_ context.Context, organizationID string) ([]core.Integration, error) {
			called = true
			if organizationID != "org_1" {
				t.Fatalf("unexpected organization: %q", organizationID)
			}
			return []core.Integration{{ID: "int_1", OrganizationID: "org_1"}}, nil
		},
	}

	items, err := NewListIntegrationsQuery(reader).Query(context.Background(), ListIntegrationsMessage{OrganizationID: "org_1"})
	if err != nil {
		t.Fatalf("query integrations: %v", err)
	}
	if !called || len(items) != 1 || items[0].ID != "int_1" {
		t.Fatalf("unexpected integrations: %#v", items)
	}
}

func TestListIntegrationsQuery_AgainstServiceStripsTokens(t *testing.T) {
	store := core.NewMemoryIntegrationStore(
		core.Integration{ID: "int_1", OrganizationID: "org_1", ProviderIdentifier: "pinterest", AccessToken: "secret", RefreshToken: "secret-r"},
		core.Integration{ID: "int_2", OrganizationID: "org_2", ProviderIdentifier: "tiktok", AccessToken: "other"},
	)
	svc, err := core.NewService(core.DefaultConfig(), core.WithIntegrationStore(store))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	items, err := NewListIntegrationsQuery(svc).Query(context.Background(), ListIntegrationsMessage{OrganizationID: "org_1"})
	if err != nil {
		t.Fatalf("query integrations: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one integration for org_1, got %d", len(items))
	}
	if items[0].AccessToken != "" || items[0].RefreshToken != "" {
		t.Fatalf("expected credentials stripped, got %#v", items[0])
	}
}

func TestListProvidersQuery_SummarizesRegistry(t *testing.T) {
	registry := core.NewProviderRegistry()
	noop := func(context.Context, string, core.Params, string, core.Integration) core.Result { return core.Success(nil) }
	err := registry.Register(core.ProviderDescriptor{
		Identifier:              "meta_instagram",
		Capabilities:            map[string]core.OperationFunc{"publish": noop, "media": noop},
		RefreshCooldownRequired: true,
		Refresher: core.RefresherFunc(func(context.Context, core.Integration) (*core.RefreshedCredential, error) {
			return nil, nil
		}),
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	summaries, err := NewListProvidersQuery(registry).Query(context.Background(), ListProvidersMessage{})
	if err != nil {
		t.Fatalf("query providers: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected one provider, got %d", len(summaries))
	}
	summary := summaries[0]
	if summary.Identifier != "meta_instagram" || !summary.RefreshCooldownRequired {
		t.Fatalf("unexpected summary: %#v", summary)
	}
	if len(summary.Operations) != 2 || summary.Operations[0] != "media" || summary.Operations[1] != "publish" {
		t.Fatalf("expected sorted operations, got %#v", summary.Operations)
	}
}
