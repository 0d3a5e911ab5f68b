package module

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Module is one entry of the host module cache.
type Module struct {
	// ID uniquely identifies the module.
	ID string

	// Exports is the module's export object.
	Exports *Object

	// Default is the module's default export, if it has one.
	Default *Object
}

// Filter decides whether an export object is the one being looked for.
type Filter func(exports *Object) bool

// Options controls a registry search.
type Options struct {
	// First stops at the first match.
	First bool

	// DefaultExport returns the default export instead of the whole export
	// object when the match was found on the default export.
	DefaultExport bool

	// SearchExports tests every object-valued property of the export
	// object instead of the export object itself.
	SearchExports bool
}

// DefaultOptions returns the options used when a caller has no preference.
func DefaultOptions() Options {
	return Options{First: true, DefaultExport: true}
}

// Registry is a typed module cache with symbolic aliases.
// Lookups run on a snapshot, so filters may call back into the registry.
type Registry struct {
	mu      sync.RWMutex
	modules []Module
	index   map[string]int
	aliases map[string]string
	log     *zap.SugaredLogger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used to report misbehaving filters.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		index:   make(map[string]int),
		aliases: make(map[string]string),
		log:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers a module.
func (r *Registry) Add(m Module) error {
	if m.ID == "" || m.Exports == nil {
		return fmt.Errorf("%w: %q", ErrInvalidModule, m.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[m.ID]; exists {
		return fmt.Errorf("%w: %s", ErrModuleExists, m.ID)
	}
	r.index[m.ID] = len(r.modules)
	r.modules = append(r.modules, m)
	return nil
}

// Remove unregisters a module and any alias pointing at it.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[id]
	if !ok {
		return false
	}
	r.modules = append(r.modules[:i], r.modules[i+1:]...)
	delete(r.index, id)
	for j := i; j < len(r.modules); j++ {
		r.index[r.modules[j].ID] = j
	}
	for alias, target := range r.aliases {
		if target == id {
			delete(r.aliases, alias)
		}
	}
	return true
}

// Alias makes name resolve to the exports of module id.
func (r *Registry) Alias(name, id string) {
	r.mu.Lock()
	r.aliases[name] = id
	r.mu.Unlock()
}

// Lookup resolves a symbolic name to a module's exports.
func (r *Registry) Lookup(name string) (*Object, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.aliases[name]
	if !ok {
		return nil, false
	}
	i, ok := r.index[id]
	if !ok {
		return nil, false
	}
	return r.modules[i].Exports, true
}

// Get returns the module with the given ID.
func (r *Registry) Get(id string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[id]
	if !ok {
		return Module{}, false
	}
	return r.modules[i], true
}

// Snapshot returns a copy of the registered modules in registration order.
func (r *Registry) Snapshot() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Module, len(r.modules))
	copy(out, r.modules)
	return out
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.modules)
}

// Find returns the first export matching filter, or nil.
func (r *Registry) Find(filter Filter, opts Options) *Object {
	opts.First = true
	found := r.search(filter, opts)
	if len(found) == 0 {
		return nil
	}
	return found[0]
}

// FindAll returns every export matching filter.
func (r *Registry) FindAll(filter Filter, opts Options) []*Object {
	opts.First = false
	return r.search(filter, opts)
}

// FindWithKey searches export properties and returns the owning export
// object together with the key of the first matching property.
func (r *Registry) FindWithKey(filter Filter) (*Object, string, bool) {
	wrapped := r.guard(filter)
	for _, m := range r.Snapshot() {
		for _, key := range m.Exports.Keys() {
			v, _ := m.Exports.Get(key)
			obj, ok := v.(*Object)
			if !ok || obj == nil {
				continue
			}
			if wrapped(obj) {
				return m.Exports, key, true
			}
		}
	}
	return nil, "", false
}

func (r *Registry) search(filter Filter, opts Options) []*Object {
	wrapped := r.guard(filter)
	var results []*Object

	for _, m := range r.Snapshot() {
		if opts.SearchExports {
			for _, key := range m.Exports.Keys() {
				v, _ := m.Exports.Get(key)
				obj, ok := v.(*Object)
				if !ok || obj == nil || !wrapped(obj) {
					continue
				}
				if opts.First {
					return []*Object{obj}
				}
				results = append(results, obj)
			}
			continue
		}

		var match *Object
		if m.Default != nil && wrapped(m.Default) {
			match = m.Exports
			if opts.DefaultExport {
				match = m.Default
			}
		}
		if wrapped(m.Exports) {
			match = m.Exports
		}
		if match == nil {
			continue
		}
		if opts.First {
			return []*Object{match}
		}
		results = append(results, match)
	}
	return results
}

// guard wraps a filter so it never sees credential holders or raw storage
// objects, and so a panicking filter counts as a miss. The panic is logged
// once per lookup.
func (r *Registry) guard(filter Filter) Filter {
	thrown := false
	return func(exports *Object) (ok bool) {
		if exports == nil || filter == nil || restricted(exports) {
			return false
		}
		defer func() {
			if rec := recover(); rec != nil {
				if !thrown {
					r.log.Warnw("Module filter threw an exception", "module", exports.Name(), "panic", rec)
				}
				thrown = true
				ok = false
			}
		}()
		return filter(exports)
	}
}

func restricted(o *Object) bool {
	if o.Has("remove") && o.Has("set") && o.Has("clear") && o.Has("get") && !o.Has("sort") {
		return true
	}
	return o.Has("getToken") || o.Has("getEmail") || o.Has("showToken")
}
