package plugin

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Plugin is what the host registry manages. Descriptors implement it, and
// so do the host's own native plugins.
type Plugin interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Started() bool
}

// Registry is the host application's plugin activation system.
type Registry interface {
	// Register adds a plugin under its name.
	Register(p Plugin) error

	// Unregister removes a plugin. It reports whether the name was known.
	Unregister(name string) bool

	// Lookup returns the plugin registered under name.
	Lookup(name string) (Plugin, bool)

	// SetEnabled sets the enabled flag of a registered plugin.
	SetEnabled(name string, enabled bool) error

	// IsEnabled reports whether a registered plugin is enabled.
	IsEnabled(name string) bool

	// Start starts a registered plugin. Starting a running plugin is a no-op.
	Start(ctx context.Context, name string) error

	// Stop stops a registered plugin. Stopping a stopped plugin is a no-op.
	Stop(ctx context.Context, name string) error

	// IsStarted reports whether a registered plugin is running.
	IsStarted(name string) bool

	// Names returns the registered names in sorted order.
	Names() []string
}

type registryEntry struct {
	plugin  Plugin
	enabled bool
}

// MemRegistry is an in-process Registry.
type MemRegistry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry
}

// NewMemRegistry creates an empty registry.
func NewMemRegistry() *MemRegistry {
	return &MemRegistry{entries: make(map[string]*registryEntry)}
}

// Register implements Registry.
func (r *MemRegistry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}
	r.entries[name] = &registryEntry{plugin: p}
	return nil
}

// Unregister implements Registry.
func (r *MemRegistry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; !exists {
		return false
	}
	delete(r.entries, name)
	return true
}

// Lookup implements Registry.
func (r *MemRegistry) Lookup(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.plugin, true
}

// SetEnabled implements Registry.
func (r *MemRegistry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	e.enabled = enabled
	return nil
}

// IsEnabled implements Registry.
func (r *MemRegistry) IsEnabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	return ok && e.enabled
}

// Start implements Registry. The plugin runs without the registry lock held.
func (r *MemRegistry) Start(ctx context.Context, name string) error {
	p, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	if p.Started() {
		return nil
	}
	return p.Start(ctx)
}

// Stop implements Registry.
func (r *MemRegistry) Stop(ctx context.Context, name string) error {
	p, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	if !p.Started() {
		return nil
	}
	return p.Stop(ctx)
}

// IsStarted implements Registry.
func (r *MemRegistry) IsStarted(name string) bool {
	p, ok := r.Lookup(name)
	return ok && p.Started()
}

// Names implements Registry.
func (r *MemRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StatusStore persists the last known enabled state of each plugin.
type StatusStore interface {
	// Status returns the stored state and whether one exists.
	Status(name string) (enabled, known bool)

	// SetStatus stores the state.
	SetStatus(name string, enabled bool) error
}

// MemStatus is a StatusStore kept in memory.
type MemStatus struct {
	mu     sync.RWMutex
	status map[string]bool
}

// NewMemStatus creates a status store seeded with initial.
func NewMemStatus(initial map[string]bool) *MemStatus {
	s := &MemStatus{status: make(map[string]bool, len(initial))}
	for k, v := range initial {
		s.status[k] = v
	}
	return s
}

// Status implements StatusStore.
func (s *MemStatus) Status(name string) (bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	enabled, known := s.status[name]
	return enabled, known
}

// SetStatus implements StatusStore.
func (s *MemStatus) SetStatus(name string, enabled bool) error {
	s.mu.Lock()
	s.status[name] = enabled
	s.mu.Unlock()
	return nil
}
