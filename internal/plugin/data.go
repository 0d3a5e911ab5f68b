package plugin

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// DataStore keeps each plugin's saved data in "<folder>/<key>.config.json".
// A file is read once and cached; every save rewrites it.
type DataStore struct {
	mu     sync.Mutex
	files  Files
	folder string
	cache  map[string]string
}

// NewDataStore creates a data store over files.
func NewDataStore(files Files, folder string) *DataStore {
	return &DataStore{
		files:  files,
		folder: folder,
		cache:  make(map[string]string),
	}
}

// File returns the path of the data file for key.
func (s *DataStore) File(key string) string {
	return path.Join(s.folder, key+".config.json")
}

// ensure loads key into the cache. Callers hold s.mu.
func (s *DataStore) ensure(key string) (string, error) {
	if raw, ok := s.cache[key]; ok {
		return raw, nil
	}

	raw := "{}"
	data, err := s.files.ReadFile(s.File(key))
	switch {
	case err == nil:
		raw = string(data)
		if !gjson.Valid(raw) {
			return "", fmt.Errorf("%w: %s", ErrInvalidData, s.File(key))
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return "", err
	}
	s.cache[key] = raw
	return raw, nil
}

// Load returns the value stored under field for key, or nil.
func (s *DataStore) Load(key, field string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.ensure(key)
	if err != nil {
		return nil, err
	}
	res := gjson.Get(raw, escapePath(field))
	if !res.Exists() {
		return nil, nil
	}
	return res.Value(), nil
}

// Save stores value under field for key and writes the file.
func (s *DataStore) Save(key, field string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.ensure(key)
	if err != nil {
		return err
	}
	updated, err := sjson.Set(raw, escapePath(field), value)
	if err != nil {
		return fmt.Errorf("saving %s of %s: %w", field, key, err)
	}
	out := pretty.PrettyOptions([]byte(updated), &pretty.Options{Width: 80, Indent: "    "})
	if err := s.files.WriteFile(s.File(key), out); err != nil {
		return err
	}
	s.cache[key] = updated
	return nil
}

// Forget drops the cached data of key so the next access rereads the file.
func (s *DataStore) Forget(key string) {
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
}

var pathEscaper = strings.NewReplacer(
	`\`, `\\`, `.`, `\.`, `*`, `\*`, `?`, `\?`, `|`, `\|`,
	`#`, `\#`, `@`, `\@`,
)

// escapePath makes field a literal gjson/sjson key.
func escapePath(field string) string {
	return pathEscaper.Replace(field)
}
