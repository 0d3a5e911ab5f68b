package config

import (
	"sync"
)

// Change describes an update of the settings.
type Change struct {
	Old, New Settings

	// Source is "set" for changes made through the store and "reload"
	// for changes read from disk.
	Source string
}

// Observer is called after the settings changed.
type Observer func(change Change)

// Store owns the settings and persists every change. It is the single
// owner of the plugin enabled status and implements plugin.StatusStore.
//
// Store is safe for concurrent use. Observers run synchronously after
// the lock is released.
type Store struct {
	mu       sync.RWMutex
	path     string
	settings Settings

	obsMu     sync.RWMutex
	observers map[uint64]Observer
	nextID    uint64
}

// Open loads the store from path. An empty path keeps the settings in
// memory only.
func Open(path string) (*Store, error) {
	s := Default()
	if path != "" {
		var err error
		if s, err = Load(path); err != nil {
			return nil, err
		}
	}
	return NewStore(path, s), nil
}

// NewStore creates a store holding s, saved to path when it is not empty.
func NewStore(path string, s Settings) *Store {
	return &Store{
		path:      path,
		settings:  s.Clone(),
		observers: make(map[uint64]Observer),
	}
}

// Path returns the settings file, or "" for a memory store.
func (s *Store) Path() string { return s.path }

// Settings returns a copy of the current settings.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.Clone()
}

// Update applies fn to a copy of the settings, validates the result and
// saves it.
func (s *Store) Update(fn func(*Settings)) error {
	s.mu.Lock()
	old := s.settings.Clone()
	next := s.settings.Clone()
	fn(&next)
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.save(next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.settings = next
	s.mu.Unlock()

	if !old.Equal(next) {
		s.notify(Change{Old: old, New: next.Clone(), Source: "set"})
	}
	return nil
}

// save persists next. Callers hold s.mu.
func (s *Store) save(next Settings) error {
	if s.path == "" {
		return nil
	}
	return Save(s.path, next)
}

// Reload rereads the settings file. Observers are only called when the
// content differs.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	next, err := Load(s.path)
	if err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	old := s.settings
	s.settings = next
	s.mu.Unlock()

	if !old.Equal(next) {
		s.notify(Change{Old: old.Clone(), New: next.Clone(), Source: "reload"})
	}
	return nil
}

// Status implements plugin.StatusStore.
func (s *Store) Status(name string) (enabled, known bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	enabled, known = s.settings.PluginsStatus[name]
	return enabled, known
}

// SetStatus implements plugin.StatusStore.
func (s *Store) SetStatus(name string, enabled bool) error {
	if current, known := s.Status(name); known && current == enabled {
		return nil
	}
	return s.Update(func(settings *Settings) {
		settings.PluginsStatus[name] = enabled
	})
}

// Subscribe registers an observer and returns a function removing it.
func (s *Store) Subscribe(observer Observer) func() {
	s.obsMu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = observer
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

func (s *Store) notify(change Change) {
	s.obsMu.RLock()
	observers := make([]Observer, 0, len(s.observers))
	for _, o := range s.observers {
		observers = append(observers, o)
	}
	s.obsMu.RUnlock()

	for _, o := range observers {
		o(change)
	}
}
