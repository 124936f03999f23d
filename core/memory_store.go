package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryIntegrationStore keeps integrations in process memory. It backs tests
// and single-node embeddings that load integrations from elsewhere.
type MemoryIntegrationStore struct {
	mu           sync.RWMutex
	integrations map[string]Integration
	updates      map[string]int
	nowFn        func() time.Time
}

func NewMemoryIntegrationStore(seed ...Integration) *MemoryIntegrationStore {
	store := &MemoryIntegrationStore{
		integrations: make(map[string]Integration, len(seed)),
		updates:      make(map[string]int),
		nowFn:        func() time.Time { return time.Now().UTC() },
	}
	for _, integration := range seed {
		_ = store.Put(context.Background(), integration)
	}
	return store
}

// Put inserts or replaces an integration record.
func (s *MemoryIntegrationStore) Put(_ context.Context, integration Integration) error {
	id := strings.TrimSpace(integration.ID)
	if id == "" {
		return fmt.Errorf("core: integration id is required")
	}
	now := s.nowFn()
	integration = integration.Clone()
	integration.ID = id
	if integration.CreatedAt.IsZero() {
		integration.CreatedAt = now
	}
	if integration.UpdatedAt.IsZero() {
		integration.UpdatedAt = now
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.integrations[id] = integration
	return nil
}

func (s *MemoryIntegrationStore) Get(_ context.Context, id string) (Integration, error) {
	id = strings.TrimSpace(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	integration, ok := s.integrations[id]
	if !ok {
		return Integration{}, fmt.Errorf("%w: %s", ErrIntegrationNotFound, id)
	}
	return integration.Clone(), nil
}

func (s *MemoryIntegrationStore) Update(_ context.Context, id string, patch IntegrationPatch) error {
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	integration, ok := s.integrations[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrIntegrationNotFound, id)
	}
	if patch.IsEmpty() {
		return nil
	}
	s.integrations[id] = patch.Apply(integration, s.nowFn())
	s.updates[id]++
	return nil
}

func (s *MemoryIntegrationStore) ListByOrganization(_ context.Context, organizationID string) ([]Integration, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, fmt.Errorf("core: organization id is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Integration, 0)
	for _, integration := range s.integrations {
		if integration.OrganizationID == organizationID {
			out = append(out, integration.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateCount reports how many non-empty patches were applied to id.
func (s *MemoryIntegrationStore) UpdateCount(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updates[strings.TrimSpace(id)]
}
