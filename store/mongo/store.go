// Package mongostore keeps integration records in a MongoDB collection.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/security"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const DefaultCollection = "integrations"

type integrationDocument struct {
	ID                 string     `bson:"_id"`
	OrganizationID     string     `bson:"organization_id"`
	ProviderIdentifier string     `bson:"provider_identifier"`
	Name               string     `bson:"name"`
	Picture            string     `bson:"picture"`
	InternalID         string     `bson:"internal_id"`
	AccessToken        string     `bson:"access_token"`
	RefreshToken       string     `bson:"refresh_token"`
	Disabled           bool       `bson:"disabled"`
	RefreshNeeded      bool       `bson:"refresh_needed"`
	TokenExpiresAt     *time.Time `bson:"token_expires_at,omitempty"`
	TokenRefreshedAt   *time.Time `bson:"token_refreshed_at,omitempty"`
	Profile            string     `bson:"profile"`
	CustomerID         string     `bson:"customer_id,omitempty"`
	CustomerName       string     `bson:"customer_name,omitempty"`
	CreatedAt          time.Time  `bson:"created_at"`
	UpdatedAt          time.Time  `bson:"updated_at"`
}

type Store struct {
	coll   *mongo.Collection
	cipher security.TokenCipher
	nowFn  func() time.Time
}

type Option func(*storeOptions)

type storeOptions struct {
	collection string
	cipher     security.TokenCipher
}

// WithTokenCipher seals access and refresh tokens before they are written.
func WithTokenCipher(cipher security.TokenCipher) Option {
	return func(o *storeOptions) {
		o.cipher = cipher
	}
}

func WithCollection(name string) Option {
	return func(o *storeOptions) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			o.collection = trimmed
		}
	}
}

func NewStore(db *mongo.Database, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("mongostore: database is required")
	}
	cfg := storeOptions{collection: DefaultCollection}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Store{
		coll:   db.Collection(cfg.collection),
		cipher: cfg.cipher,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// EnsureIndexes creates the organization listing index and the per
// organization internal id uniqueness index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "organization_id", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("idx_integrations_organization"),
		},
		{
			Keys: bson.D{{Key: "organization_id", Value: 1}, {Key: "internal_id", Value: 1}},
			Options: options.Index().
				SetName("uq_integrations_org_internal_id").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"internal_id": bson.M{"$gt": ""}}),
		},
	})
	if err != nil {
		return fmt.Errorf("mongostore: ensure indexes: %w", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, in core.Integration) (core.Integration, error) {
	if strings.TrimSpace(in.OrganizationID) == "" {
		return core.Integration{}, fmt.Errorf("mongostore: organization id is required")
	}
	if strings.TrimSpace(in.ProviderIdentifier) == "" {
		return core.Integration{}, fmt.Errorf("mongostore: provider identifier is required")
	}
	doc := newDocument(in, s.nowFn())
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	stored := doc
	var err error
	if stored.AccessToken, err = security.SealToken(ctx, s.cipher, doc.AccessToken); err != nil {
		return core.Integration{}, fmt.Errorf("mongostore: seal access token: %w", err)
	}
	if stored.RefreshToken, err = security.SealToken(ctx, s.cipher, doc.RefreshToken); err != nil {
		return core.Integration{}, fmt.Errorf("mongostore: seal refresh token: %w", err)
	}
	if _, err := s.coll.InsertOne(ctx, stored); err != nil {
		return core.Integration{}, err
	}
	return doc.toDomain(), nil
}

func (s *Store) Get(ctx context.Context, id string) (core.Integration, error) {
	trimmed := strings.TrimSpace(id)
	var doc integrationDocument
	err := s.coll.FindOne(ctx, bson.M{"_id": trimmed}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Integration{}, fmt.Errorf("%w: id %q", core.ErrIntegrationNotFound, trimmed)
	}
	if err != nil {
		return core.Integration{}, err
	}
	return s.open(ctx, doc)
}

func (s *Store) Update(ctx context.Context, id string, patch core.IntegrationPatch) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return fmt.Errorf("mongostore: integration id is required")
	}
	if patch.IsEmpty() {
		_, err := s.Get(ctx, trimmed)
		return err
	}
	sealed, err := s.sealPatch(ctx, patch)
	if err != nil {
		return err
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": trimmed}, updateDocument(sealed, s.nowFn()))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: id %q", core.ErrIntegrationNotFound, trimmed)
	}
	return nil
}

func (s *Store) ListByOrganization(ctx context.Context, organizationID string) ([]core.Integration, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, fmt.Errorf("mongostore: organization id is required")
	}
	cur, err := s.coll.Find(ctx,
		bson.M{"organization_id": organizationID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()

	out := make([]core.Integration, 0)
	for cur.Next(ctx) {
		var doc integrationDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		integration, err := s.open(ctx, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, integration)
	}
	return out, cur.Err()
}

func (s *Store) Delete(ctx context.Context, id string) error {
	trimmed := strings.TrimSpace(id)
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": trimmed})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: id %q", core.ErrIntegrationNotFound, trimmed)
	}
	return nil
}

func (s *Store) open(ctx context.Context, doc integrationDocument) (core.Integration, error) {
	integration := doc.toDomain()
	var err error
	if integration.AccessToken, err = security.OpenToken(ctx, s.cipher, integration.AccessToken); err != nil {
		return core.Integration{}, fmt.Errorf("mongostore: open access token for %q: %w", integration.ID, err)
	}
	if integration.RefreshToken, err = security.OpenToken(ctx, s.cipher, integration.RefreshToken); err != nil {
		return core.Integration{}, fmt.Errorf("mongostore: open refresh token for %q: %w", integration.ID, err)
	}
	return integration, nil
}

func (s *Store) sealPatch(ctx context.Context, patch core.IntegrationPatch) (core.IntegrationPatch, error) {
	if patch.AccessToken != nil {
		sealed, err := security.SealToken(ctx, s.cipher, *patch.AccessToken)
		if err != nil {
			return patch, fmt.Errorf("mongostore: seal access token: %w", err)
		}
		patch.AccessToken = &sealed
	}
	if patch.RefreshToken != nil {
		sealed, err := security.SealToken(ctx, s.cipher, *patch.RefreshToken)
		if err != nil {
			return patch, fmt.Errorf("mongostore: seal refresh token: %w", err)
		}
		patch.RefreshToken = &sealed
	}
	return patch, nil
}

// updateDocument builds a $set with only the patched fields.
func updateDocument(patch core.IntegrationPatch, now time.Time) bson.M {
	set := bson.M{"updated_at": now}
	if patch.AccessToken != nil {
		set["access_token"] = *patch.AccessToken
	}
	if patch.RefreshToken != nil {
		set["refresh_token"] = *patch.RefreshToken
	}
	if patch.TokenExpiresAt != nil {
		set["token_expires_at"] = patch.TokenExpiresAt.UTC()
	}
	if patch.TokenRefreshedAt != nil {
		set["token_refreshed_at"] = patch.TokenRefreshedAt.UTC()
	}
	if patch.Disabled != nil {
		set["disabled"] = *patch.Disabled
	}
	if patch.RefreshNeeded != nil {
		set["refresh_needed"] = *patch.RefreshNeeded
	}
	return bson.M{"$set": set}
}

func newDocument(in core.Integration, now time.Time) integrationDocument {
	doc := integrationDocument{
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
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if in.Customer != nil {
		doc.CustomerID = in.Customer.ID
		doc.CustomerName = in.Customer.Name
	}
	return doc
}

func (d integrationDocument) toDomain() core.Integration {
	integration := core.Integration{
		ID:                 d.ID,
		OrganizationID:     d.OrganizationID,
		ProviderIdentifier: d.ProviderIdentifier,
		Name:               d.Name,
		Picture:            d.Picture,
		AccessToken:        d.AccessToken,
		RefreshToken:       d.RefreshToken,
		InternalID:         d.InternalID,
		Disabled:           d.Disabled,
		RefreshNeeded:      d.RefreshNeeded,
		TokenExpiresAt:     utcPointer(d.TokenExpiresAt),
		TokenRefreshedAt:   utcPointer(d.TokenRefreshedAt),
		Profile:            d.Profile,
		CreatedAt:          d.CreatedAt.UTC(),
		UpdatedAt:          d.UpdatedAt.UTC(),
	}
	if d.CustomerID != "" {
		integration.Customer = &core.Customer{ID: d.CustomerID, Name: d.CustomerName}
	}
	return integration
}

func utcPointer(value *time.Time) *time.Time {
	if value == nil || value.IsZero() {
		return nil
	}
	copied := value.UTC()
	return &copied
}

var (
	_ core.IntegrationStore  = (*Store)(nil)
	_ core.IntegrationLister = (*Store)(nil)
)
