// Package redislock provides a cross-process integration lock on Redis so that
// refreshes of one integration are serialized across service replicas.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "integrations:lock:"

// ErrLockLost is returned by Unlock when the lease expired and another holder
// took the key before release.
var ErrLockLost = errors.New("redislock: lock lease lost before release")

// releaseScript deletes the key only while it still holds this handle's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Option func(*Locker)

func WithKeyPrefix(prefix string) Option {
	return func(l *Locker) {
		if strings.TrimSpace(prefix) != "" {
			l.prefix = prefix
		}
	}
}

func WithBackoff(backoff core.BackoffScheduler) Option {
	return func(l *Locker) {
		if backoff != nil {
			l.backoff = backoff
		}
	}
}

type Locker struct {
	client  redis.Cmdable
	prefix  string
	backoff core.BackoffScheduler
	tokenFn func() string
}

func New(client redis.Cmdable, opts ...Option) *Locker {
	l := &Locker{
		client:  client,
		prefix:  DefaultKeyPrefix,
		backoff: core.ExponentialBackoffScheduler{Initial: 25 * time.Millisecond, Max: time.Second},
		tokenFn: uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

func (l *Locker) Key(integrationID string) string {
	return l.prefix + strings.TrimSpace(integrationID)
}

func (l *Locker) Acquire(ctx context.Context, integrationID string, ttl time.Duration) (core.LockHandle, error) {
	if l == nil || l.client == nil {
		return nil, fmt.Errorf("redislock: redis client is not configured")
	}
	return core.AcquireWithBackoff(ctx, l, l.backoff, integrationID, ttl)
}

func (l *Locker) TryAcquire(ctx context.Context, integrationID string, ttl time.Duration) (core.LockHandle, bool, error) {
	if l == nil || l.client == nil {
		return nil, false, fmt.Errorf("redislock: redis client is not configured")
	}
	if strings.TrimSpace(integrationID) == "" {
		return nil, false, fmt.Errorf("redislock: integration id is required for lock acquisition")
	}
	if ttl <= 0 {
		ttl = core.DefaultLockTTLSeconds * time.Second
	}
	key := l.Key(integrationID)
	token := l.tokenFn()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redislock: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &handle{client: l.client, key: key, token: token}, true, nil
}

type handle struct {
	client redis.Cmdable
	key    string
	token  string
}

func (h *handle) Unlock(ctx context.Context) error {
	if h == nil || h.client == nil {
		return nil
	}
	// Release even when the caller's context is already cancelled.
	released, err := releaseScript.Run(context.WithoutCancel(ctx), h.client, []string{h.key}, h.token).Int64()
	if err != nil {
		return fmt.Errorf("redislock: release %s: %w", h.key, err)
	}
	if released == 0 {
		return ErrLockLost
	}
	return nil
}

var (
	_ core.IntegrationLocker = (*Locker)(nil)
	_ core.TryLocker         = (*Locker)(nil)
)
