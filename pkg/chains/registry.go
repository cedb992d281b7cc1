package chains

import (
	"slices"
	"sync"
)

// Constructor builds a fresh wallet adapter from cfg
type Constructor func(cfg Config) (Wallet, error)

// Registry maps chain tags to adapter constructors
type Registry struct {
	constructors map[ChainTag]Constructor
	mu           sync.RWMutex
}

var (
	globalRegistry     *Registry
	globalRegistryOnce sync.Once
)

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[ChainTag]Constructor),
	}
}

// InitGlobalRegistry initializes the global registry
func InitGlobalRegistry() *Registry {
	globalRegistryOnce.Do(func() {
		globalRegistry = NewRegistry()
	})
	return globalRegistry
}

// GetGlobalRegistry returns the global registry (returns nil if not initialized)
func GetGlobalRegistry() *Registry {
	return globalRegistry
}

// Register registers a constructor for tag
// If one already exists it is replaced (idempotent)
func (r *Registry) Register(tag ChainTag, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[tag] = c
}

// Get retrieves the constructor for tag
func (r *Registry) Get(tag ChainTag) (Constructor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.constructors[tag]
	if !exists {
		return nil, &UnsupportedChainError{ChainType: string(tag)}
	}
	return c, nil
}

// Supported returns the registered chain tags in sorted order
func (r *Registry) Supported() []ChainTag {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]ChainTag, 0, len(r.constructors))
	for tag := range r.constructors {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}

// IsSupported checks if a chain tag is registered
func (r *Registry) IsSupported(tag ChainTag) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.constructors[tag]
	return exists
}

// Unregister removes a constructor (useful for testing)
func (r *Registry) Unregister(tag ChainTag) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.constructors, tag)
}

// ResetGlobalRegistry resets the global registry (useful for testing)
func ResetGlobalRegistry() {
	globalRegistry = nil
	globalRegistryOnce = sync.Once{}
}
