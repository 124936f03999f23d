package integrations

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-integrations/core"
)

// ProviderPack is a named group of descriptors registered together.
type ProviderPack struct {
	Name      string
	Providers []core.ProviderDescriptor
}

// OperationPack adds operations to a provider from another pack. Operations
// are merged before the provider is registered, so the capability table stays
// closed once dispatch starts.
type OperationPack struct {
	Name       string
	ProviderID string
	Operations map[string]core.OperationFunc
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

type ExtensionHooks struct {
	mu sync.RWMutex

	providerPacks  map[string]ProviderPack
	operationPacks map[string]OperationPack
	bundles        map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		providerPacks:  map[string]ProviderPack{},
		operationPacks: map[string]OperationPack{},
		bundles:        map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterProviderPack(pack ProviderPack) error {
	if h == nil {
		return fmt.Errorf("integrations: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("integrations: provider pack name is required")
	}
	if len(pack.Providers) == 0 {
		return fmt.Errorf("integrations: provider pack %q has no providers", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.providerPacks[name]; exists {
		return fmt.Errorf("integrations: provider pack %q already registered", name)
	}
	h.providerPacks[name] = ProviderPack{
		Name:      name,
		Providers: append([]core.ProviderDescriptor(nil), pack.Providers...),
	}
	return nil
}

func (h *ExtensionHooks) RegisterOperationPack(pack OperationPack) error {
	if h == nil {
		return fmt.Errorf("integrations: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	providerID := strings.TrimSpace(pack.ProviderID)
	if name == "" {
		return fmt.Errorf("integrations: operation pack name is required")
	}
	if providerID == "" {
		return fmt.Errorf("integrations: operation pack %q provider id is required", name)
	}
	if len(pack.Operations) == 0 {
		return fmt.Errorf("integrations: operation pack %q has no operations", name)
	}
	operations := make(map[string]core.OperationFunc, len(pack.Operations))
	for op, fn := range pack.Operations {
		if fn == nil {
			return fmt.Errorf("integrations: operation pack %q operation %q is nil", name, op)
		}
		operations[op] = fn
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.operationPacks[name]; exists {
		return fmt.Errorf("integrations: operation pack %q already registered", name)
	}
	h.operationPacks[name] = OperationPack{Name: name, ProviderID: providerID, Operations: operations}
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(name string, factory CommandQueryBundleFactory) error {
	if h == nil {
		return fmt.Errorf("integrations: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("integrations: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("integrations: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("integrations: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ApplyProviderPacks registers every pack's providers with their operation
// packs merged in. An operation pack that names an existing operation or an
// unknown provider is an error.
func (h *ExtensionHooks) ApplyProviderPacks(registry core.Registry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("integrations: registry is required")
	}

	claimed := map[string]bool{}
	for _, pack := range h.ProviderPacks() {
		for _, descriptor := range pack.Providers {
			merged, packNames, err := h.mergeOperations(descriptor)
			if err != nil {
				return err
			}
			if err := registry.Register(merged); err != nil {
				return err
			}
			for _, name := range packNames {
				claimed[name] = true
			}
		}
	}
	for _, name := range h.operationPackNames() {
		if !claimed[name] {
			return fmt.Errorf("integrations: operation pack %q targets an unregistered provider", name)
		}
	}
	return nil
}

func (h *ExtensionHooks) mergeOperations(descriptor core.ProviderDescriptor) (core.ProviderDescriptor, []string, error) {
	id := strings.TrimSpace(descriptor.Identifier)
	capabilities := make(map[string]core.OperationFunc, len(descriptor.Capabilities))
	for op, fn := range descriptor.Capabilities {
		capabilities[op] = fn
	}

	var used []string
	for _, name := range h.operationPackNames() {
		h.mu.RLock()
		pack := h.operationPacks[name]
		h.mu.RUnlock()
		if pack.ProviderID != id {
			continue
		}
		ops := make([]string, 0, len(pack.Operations))
		for op := range pack.Operations {
			ops = append(ops, op)
		}
		sort.Strings(ops)
		for _, op := range ops {
			if _, exists := capabilities[op]; exists {
				return core.ProviderDescriptor{}, nil, fmt.Errorf(
					"integrations: operation pack %q redefines %s.%s", name, id, op)
			}
			capabilities[op] = pack.Operations[op]
		}
		used = append(used, name)
	}
	descriptor.Capabilities = capabilities
	return descriptor, used, nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(service CommandQueryService) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("integrations: command/query service is required")
	}

	names := h.BundleNames()
	h.mu.RLock()
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, fmt.Errorf("integrations: build bundle %q: %w", name, err)
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) ProviderPacks() []ProviderPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.providerPacks))
	for name := range h.providerPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ProviderPack, 0, len(names))
	for _, name := range names {
		pack := h.providerPacks[name]
		out = append(out, ProviderPack{
			Name:      pack.Name,
			Providers: append([]core.ProviderDescriptor(nil), pack.Providers...),
		})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (h *ExtensionHooks) operationPackNames() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.operationPacks))
	for name := range h.operationPacks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
