package core

import (
	"fmt"
	"sort"
	"sync"
)

// Global registry for provider self-registration.
var globalRegistry = NewRegistry()

type Registry struct {
	factories map[string]ProviderFactory
	mu        sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

// RegisterProvider lets provider packages register themselves during init().
func RegisterProvider(kind string, factory ProviderFactory) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.factories[kind] = factory
}

// GetGlobalRegistry returns a copy of the global registry.
func GetGlobalRegistry() *Registry {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	registry := NewRegistry()
	for kind, factory := range globalRegistry.factories {
		registry.factories[kind] = factory
	}
	return registry
}

// NewProvider builds a provider from the global registry.
func NewProvider(kind string, cfg ProviderConfig) (SearchProvider, error) {
	return GetGlobalRegistry().Create(kind, cfg)
}

func (r *Registry) Register(kind string, factory ProviderFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("search provider %s already registered", kind)
	}
	r.factories[kind] = factory
	return nil
}

func (r *Registry) Create(kind string, cfg ProviderConfig) (SearchProvider, error) {
	r.mu.RLock()
	factory, exists := r.factories[kind]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("search provider %s not found", kind)
	}

	provider, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating search provider %s: %w", kind, err)
	}
	return provider, nil
}

// Kinds returns the registered provider kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
