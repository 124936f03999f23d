package sqlstore_test

import (
	"context"
	"strings"
	"testing"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/security"
	sqlstore "github.com/goliatone/go-integrations/store/sql"
)

func storedTokens(t *testing.T, factory *sqlstore.RepositoryFactory, id string) (string, string) {
	t.Helper()
	var access, refresh string
	if err := factory.DB().NewRaw(
		"SELECT access_token, refresh_token FROM integrations WHERE id = ?", id,
	).Scan(context.Background(), &access, &refresh); err != nil {
		t.Fatalf("select raw tokens: %v", err)
	}
	return access, refresh
}

func TestIntegrationStore_SealsTokensAtRest(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	cipher, err := security.NewAppKeyCipherFromString("store-test-key", security.WithKeyID("tokens"))
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, sqlstore.WithTokenCipher(cipher))
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.SQLIntegrationStore()

	created, err := store.Create(ctx, seed("org_1", "acct_1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.AccessToken != "access-acct_1" || created.RefreshToken != "refresh-acct_1" {
		t.Fatalf("expected plaintext tokens on the returned integration, got %+v", created)
	}

	access, refresh := storedTokens(t, factory, created.ID)
	if !strings.HasPrefix(access, security.EnvelopePrefix) || !strings.HasPrefix(refresh, security.EnvelopePrefix) {
		t.Fatalf("expected sealed tokens in storage, got %q / %q", access, refresh)
	}

	nextAccess := "access-rotated"
	if err := store.Update(ctx, created.ID, core.IntegrationPatch{AccessToken: &nextAccess}); err != nil {
		t.Fatalf("update: %v", err)
	}
	access, _ = storedTokens(t, factory, created.ID)
	if strings.Contains(access, nextAccess) {
		t.Fatalf("expected rotated access token to be sealed, got %q", access)
	}

	loaded, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.AccessToken != nextAccess || loaded.RefreshToken != "refresh-acct_1" {
		t.Fatalf("expected opened tokens, got %q / %q", loaded.AccessToken, loaded.RefreshToken)
	}

	listed, err := store.ListByOrganization(ctx, "org_1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0].AccessToken != nextAccess {
		t.Fatalf("expected listed integration with opened token, got %+v", listed)
	}
}

func TestIntegrationStore_ReadsPlaintextRowsWithCipher(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	plain, err := sqlstore.NewIntegrationStore(client.DB())
	if err != nil {
		t.Fatalf("new plain store: %v", err)
	}
	created, err := plain.Create(ctx, seed("org_1", "acct_1"))
	if err != nil {
		t.Fatalf("create plaintext row: %v", err)
	}

	cipher, err := security.NewAppKeyCipherFromString("store-test-key")
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	sealed, err := sqlstore.NewIntegrationStore(client.DB(), sqlstore.WithTokenCipher(cipher))
	if err != nil {
		t.Fatalf("new sealed store: %v", err)
	}
	loaded, err := sealed.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get plaintext row: %v", err)
	}
	if loaded.AccessToken != "access-acct_1" {
		t.Fatalf("expected plaintext token passthrough, got %q", loaded.AccessToken)
	}
}

func TestIntegrationStore_WrongKeyFailsToOpen(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	writerCipher, _ := security.NewAppKeyCipherFromString("key-a", security.WithKeyID("a"))
	readerCipher, _ := security.NewAppKeyCipherFromString("key-b", security.WithKeyID("b"))
	writer, err := sqlstore.NewIntegrationStore(client.DB(), sqlstore.WithTokenCipher(writerCipher))
	if err != nil {
		t.Fatalf("new writer store: %v", err)
	}
	reader, err := sqlstore.NewIntegrationStore(client.DB(), sqlstore.WithTokenCipher(readerCipher))
	if err != nil {
		t.Fatalf("new reader store: %v", err)
	}
	created, err := writer.Create(ctx, seed("org_1", "acct_1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := reader.Get(ctx, created.ID); err == nil || !strings.Contains(err.Error(), "open access token") {
		t.Fatalf("expected open failure with a foreign key, got %v", err)
	}
}
