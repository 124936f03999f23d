// Package redislimit shares provider throttle state across service replicas
// through Redis.
package redislimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/ratelimit"
	redis "github.com/redis/go-redis/v9"
)

const (
	DefaultKeyPrefix = "integrations:ratelimit:"
	DefaultTTL       = time.Hour
)

type Option func(*StateStore)

func WithKeyPrefix(prefix string) Option {
	return func(s *StateStore) {
		if strings.TrimSpace(prefix) != "" {
			s.prefix = prefix
		}
	}
}

// WithTTL bounds how long an idle bucket is remembered.
func WithTTL(ttl time.Duration) Option {
	return func(s *StateStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

type StateStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func New(client redis.Cmdable, opts ...Option) *StateStore {
	s := &StateStore{
		client: client,
		prefix: DefaultKeyPrefix,
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *StateStore) Key(key ratelimit.Key) string {
	return s.prefix + key.String()
}

type stateDocument struct {
	ProviderID     string     `json:"provider_id"`
	ScopeID        string     `json:"scope_id"`
	BucketKey      string     `json:"bucket_key"`
	Limit          int        `json:"limit"`
	Remaining      int        `json:"remaining"`
	ResetAt        *time.Time `json:"reset_at,omitempty"`
	RetryAfterMS   *int64     `json:"retry_after_ms,omitempty"`
	ThrottledUntil *time.Time `json:"throttled_until,omitempty"`
	LastStatus     int        `json:"last_status"`
	Attempts       int        `json:"attempts"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (s *StateStore) Get(ctx context.Context, key ratelimit.Key) (ratelimit.State, error) {
	if s == nil || s.client == nil {
		return ratelimit.State{}, fmt.Errorf("redislimit: redis client is not configured")
	}
	raw, err := s.client.Get(ctx, s.Key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ratelimit.State{}, ratelimit.ErrStateNotFound
		}
		return ratelimit.State{}, fmt.Errorf("redislimit: get %s: %w", key, err)
	}
	var doc stateDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ratelimit.State{}, fmt.Errorf("redislimit: decode %s: %w", key, err)
	}
	return fromDocument(doc), nil
}

// Upsert stores state and keeps it at least until the throttle window closes.
func (s *StateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redislimit: redis client is not configured")
	}
	state.Key = ratelimit.NormalizeKey(state.Key)
	payload, err := json.Marshal(toDocument(state))
	if err != nil {
		return fmt.Errorf("redislimit: encode %s: %w", state.Key, err)
	}
	ttl := s.ttl
	if state.ThrottledUntil != nil {
		if remaining := time.Until(*state.ThrottledUntil); remaining > ttl {
			ttl = remaining
		}
	}
	if err := s.client.Set(ctx, s.Key(state.Key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redislimit: set %s: %w", state.Key, err)
	}
	return nil
}

func toDocument(state ratelimit.State) stateDocument {
	doc := stateDocument{
		ProviderID:     state.Key.ProviderID,
		ScopeID:        state.Key.ScopeID,
		BucketKey:      state.Key.BucketKey,
		Limit:          state.Limit,
		Remaining:      state.Remaining,
		ResetAt:        state.ResetAt,
		ThrottledUntil: state.ThrottledUntil,
		LastStatus:     state.LastStatus,
		Attempts:       state.Attempts,
		UpdatedAt:      state.UpdatedAt,
	}
	if state.RetryAfter != nil {
		ms := state.RetryAfter.Milliseconds()
		doc.RetryAfterMS = &ms
	}
	return doc
}

func fromDocument(doc stateDocument) ratelimit.State {
	state := ratelimit.State{
		Key: ratelimit.Key{
			ProviderID: doc.ProviderID,
			ScopeID:    doc.ScopeID,
			BucketKey:  doc.BucketKey,
		},
		Limit:          doc.Limit,
		Remaining:      doc.Remaining,
		ResetAt:        doc.ResetAt,
		ThrottledUntil: doc.ThrottledUntil,
		LastStatus:     doc.LastStatus,
		Attempts:       doc.Attempts,
		UpdatedAt:      doc.UpdatedAt,
	}
	if doc.RetryAfterMS != nil {
		retryAfter := time.Duration(*doc.RetryAfterMS) * time.Millisecond
		state.RetryAfter = &retryAfter
	}
	return state
}

var _ ratelimit.StateStore = (*StateStore)(nil)
