package instagram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
	meta "github.com/goliatone/go-integrations/providers/meta/common"
)

const ProviderID = "meta_instagram"

const (
	OperationProfile = "profile"
	OperationMedia   = "media"
	OperationPublish = "publish"
)

type Config = meta.Config

// New describes the Instagram Graph provider. Instagram rejects calls made
// immediately after a token refresh, so the descriptor asks for the refresh
// cooldown.
func New(cfg Config) (core.ProviderDescriptor, error) {
	refresher, err := meta.NewRefresher(ProviderID, cfg)
	if err != nil {
		return core.ProviderDescriptor{}, err
	}
	client := meta.NewGraphClient(ProviderID, cfg)
	return core.ProviderDescriptor{
		Identifier: ProviderID,
		Capabilities: map[string]core.OperationFunc{
			OperationProfile: client.Operation(buildProfile),
			OperationMedia:   client.Operation(buildMedia),
			OperationPublish: publish(client),
		},
		RefreshCooldownRequired: true,
		Refresher:               refresher,
	}, nil
}

func buildProfile(_ core.Params, internalID string) (providers.RESTCall, error) {
	accountID, err := providers.RequireInternalID(internalID)
	if err != nil {
		return providers.RESTCall{}, err
	}
	return providers.RESTCall{
		Method: http.MethodGet,
		Path:   "/" + accountID,
		Query:  meta.Fields("id", "username", "name", "profile_picture_url", "followers_count", "media_count"),
	}, nil
}

func buildMedia(params core.Params, internalID string) (providers.RESTCall, error) {
	accountID, err := providers.RequireInternalID(internalID)
	if err != nil {
		return providers.RESTCall{}, err
	}
	query := meta.Fields("id", "caption", "media_type", "media_url", "permalink", "timestamp")
	for key, value := range providers.OptionalParams(params, "limit", "after") {
		query[key] = value
	}
	return providers.RESTCall{Method: http.MethodGet, Path: "/" + accountID + "/media", Query: query}, nil
}

// pendingContainerTTL bounds how long an unpublished container is reused.
// Graph expires containers after 24 hours.
const pendingContainerTTL = time.Hour

// publish creates a media container and then publishes it. Expiry on either
// step is reported as expiry of the whole operation. A container whose
// publish step hit an expired token is remembered, so the retry after the
// refresh publishes it instead of creating a second one. Callers may also
// pass creation_id to publish an existing container.
func publish(client *providers.RESTClient) core.OperationFunc {
	pending := newPendingContainers(pendingContainerTTL, time.Now)
	return func(ctx context.Context, accessToken string, params core.Params, internalID string, integration core.Integration) core.Result {
		accountID, err := providers.RequireInternalID(internalID)
		if err != nil {
			return core.Failure(err)
		}
		creationID := params.String("creation_id")
		key := pendingKey(integration.ID, accountID, params)
		if creationID == "" {
			creationID = pending.take(key)
		}
		if creationID == "" {
			imageURL, err := providers.RequireParam(params, "image_url")
			if err != nil {
				return core.Failure(err)
			}
			container := map[string]any{"image_url": imageURL}
			if caption := params.String("caption"); caption != "" {
				container["caption"] = caption
			}

			created := client.CallFor(ctx, integration.ID, accessToken, providers.RESTCall{
				Method: http.MethodPost,
				Path:   "/" + accountID + "/media",
				Body:   container,
			})
			if !created.IsSuccess() {
				return created
			}
			creationID = stringField(created.Value, "id")
			if creationID == "" {
				return core.Failure(fmt.Errorf("providers/meta/instagram: media container id missing from response"))
			}
		}

		published := client.CallFor(ctx, integration.ID, accessToken, providers.RESTCall{
			Method: http.MethodPost,
			Path:   "/" + accountID + "/media_publish",
			Body:   map[string]any{"creation_id": creationID},
		})
		if published.IsTokenExpired() && params.String("creation_id") == "" {
			pending.put(key, creationID)
		}
		return published
	}
}

type pendingContainer struct {
	creationID string
	expiresAt  time.Time
}

type pendingContainers struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]pendingContainer
}

func newPendingContainers(ttl time.Duration, now func() time.Time) *pendingContainers {
	return &pendingContainers{ttl: ttl, now: now, items: map[string]pendingContainer{}}
}

func (p *pendingContainers) put(key string, creationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	for k, item := range p.items {
		if !now.Before(item.expiresAt) {
			delete(p.items, k)
		}
	}
	p.items[key] = pendingContainer{creationID: creationID, expiresAt: now.Add(p.ttl)}
}

// take returns and forgets the container stored under key.
func (p *pendingContainers) take(key string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	item, ok := p.items[key]
	if !ok {
		return ""
	}
	delete(p.items, key)
	if !p.now().Before(item.expiresAt) {
		return ""
	}
	return item.creationID
}

func pendingKey(integrationID string, accountID string, params core.Params) string {
	return strings.Join([]string{integrationID, accountID, params.String("image_url"), params.String("caption")}, "\x00")
}

func stringField(value any, key string) string {
	object, ok := value.(map[string]any)
	if !ok {
		return ""
	}
	typed, _ := object[key].(string)
	return typed
}
