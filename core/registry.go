package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ProviderDescriptor is the static, closed capability table for one provider.
type ProviderDescriptor struct {
	Identifier              string
	Capabilities            map[string]OperationFunc
	RefreshCooldownRequired bool
	Refresher               Refresher
}

// Operation looks up a capability by name.
func (d ProviderDescriptor) Operation(name string) (OperationFunc, bool) {
	name = strings.TrimSpace(name)
	if name == "" || len(d.Capabilities) == 0 {
		return nil, false
	}
	fn, ok := d.Capabilities[name]
	if !ok || fn == nil {
		return nil, false
	}
	return fn, true
}

// OperationNames returns the sorted capability names.
func (d ProviderDescriptor) OperationNames() []string {
	names := make([]string, 0, len(d.Capabilities))
	for name := range d.Capabilities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d ProviderDescriptor) clone() ProviderDescriptor {
	out := d
	out.Capabilities = make(map[string]OperationFunc, len(d.Capabilities))
	for name, fn := range d.Capabilities {
		out.Capabilities[name] = fn
	}
	return out
}

type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]ProviderDescriptor
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]ProviderDescriptor)}
}

func (r *ProviderRegistry) Register(descriptor ProviderDescriptor) error {
	id := strings.TrimSpace(descriptor.Identifier)
	if id == "" {
		return fmt.Errorf("core: provider identifier is required")
	}
	if descriptor.Refresher == nil {
		return fmt.Errorf("core: provider %q requires a refresher", id)
	}
	for name, fn := range descriptor.Capabilities {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("core: provider %q has an empty operation name", id)
		}
		if fn == nil {
			return fmt.Errorf("core: provider %q operation %q is nil", id, name)
		}
	}
	descriptor.Identifier = id

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[id]; exists {
		return fmt.Errorf("core: provider already registered: %s", id)
	}
	r.providers[id] = descriptor.clone()
	return nil
}

func (r *ProviderRegistry) Resolve(providerIdentifier string) (ProviderDescriptor, error) {
	id := strings.TrimSpace(providerIdentifier)
	if id == "" {
		return ProviderDescriptor{}, fmt.Errorf("%w: empty identifier", ErrProviderNotFound)
	}
	r.mu.RLock()
	descriptor, ok := r.providers[id]
	r.mu.RUnlock()
	if !ok {
		return ProviderDescriptor{}, fmt.Errorf("%w: %s", ErrProviderNotFound, id)
	}
	return descriptor, nil
}

func (r *ProviderRegistry) List() []ProviderDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.providers))
	for id := range r.providers {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	out := make([]ProviderDescriptor, 0, len(keys))
	for _, id := range keys {
		out = append(out, r.providers[id])
	}
	return out
}
