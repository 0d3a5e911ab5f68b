package vfs

import (
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is a Backend held in memory. It is the default for tests and
// for a session that should not persist anything.
//
// Memory is safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	files map[string]*memFile
	dirs  map[string]time.Time
}

type memFile struct {
	content []byte
	modTime time.Time
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		files: make(map[string]*memFile),
		dirs:  map[string]time.Time{"/": time.Now()},
	}
}

var _ Backend = (*Memory)(nil)

// Stat implements Backend.
func (m *Memory) Stat(name string) (FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if f, ok := m.files[name]; ok {
		return fileInfo(name, int64(len(f.content)), f.modTime), nil
	}
	if t, ok := m.dirs[name]; ok {
		return dirInfo(name, t), nil
	}
	return FileInfo{}, pathError("stat", name, errNotExist)
}

// ReadDir implements Backend.
func (m *Memory) ReadDir(name string) ([]FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.dirs[name]; !ok {
		if _, ok := m.files[name]; ok {
			return nil, pathError("readdir", name, errNotDir)
		}
		return nil, pathError("readdir", name, errNotExist)
	}

	prefix := dirPrefix(name)
	var entries []FileInfo
	for p, f := range m.files {
		if isChild(prefix, p) {
			entries = append(entries, fileInfo(p, int64(len(f.content)), f.modTime))
		}
	}
	for d, t := range m.dirs {
		if d != name && isChild(prefix, d) {
			entries = append(entries, dirInfo(d, t))
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	return entries, nil
}

// ReadFile implements Backend. The result is a copy.
func (m *Memory) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.files[name]
	if !ok {
		if _, ok := m.dirs[name]; ok {
			return nil, pathError("read", name, errIsDir)
		}
		return nil, pathError("read", name, errNotExist)
	}
	content := make([]byte, len(f.content))
	copy(content, f.content)
	return content, nil
}

// WriteFile implements Backend.
func (m *Memory) WriteFile(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.dirs[name]; ok {
		return pathError("write", name, errIsDir)
	}
	if err := m.checkParent("write", name); err != nil {
		return err
	}

	content := make([]byte, len(data))
	copy(content, data)
	m.files[name] = &memFile{content: content, modTime: time.Now()}
	return nil
}

// Mkdir implements Backend.
func (m *Memory) Mkdir(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.dirs[name]; ok {
		return pathError("mkdir", name, errExist)
	}
	if _, ok := m.files[name]; ok {
		return pathError("mkdir", name, errExist)
	}
	if err := m.checkParent("mkdir", name); err != nil {
		return err
	}
	m.dirs[name] = time.Now()
	return nil
}

// checkParent reports whether the parent of name is a directory. Callers
// hold m.mu.
func (m *Memory) checkParent(op, name string) error {
	parent := path.Dir(name)
	if _, ok := m.dirs[parent]; ok {
		return nil
	}
	if _, ok := m.files[parent]; ok {
		return pathError(op, name, errNotDir)
	}
	return pathError(op, name, errNotExist)
}

// Remove implements Backend.
func (m *Memory) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[name]; ok {
		delete(m.files, name)
		return nil
	}
	if _, ok := m.dirs[name]; !ok {
		return pathError("remove", name, errNotExist)
	}

	prefix := dirPrefix(name)
	for f := range m.files {
		if strings.HasPrefix(f, prefix) {
			return pathError("remove", name, errNotEmpty)
		}
	}
	for d := range m.dirs {
		if d != name && strings.HasPrefix(d, prefix) {
			return pathError("remove", name, errNotEmpty)
		}
	}
	if name != "/" {
		delete(m.dirs, name)
	}
	return nil
}

// Close implements Backend.
func (m *Memory) Close() error { return nil }

// dirPrefix returns the prefix shared by every path below dir.
func dirPrefix(dir string) string {
	if dir == "/" {
		return "/"
	}
	return dir + "/"
}

// isChild reports whether p sits directly below the directory with the
// given prefix.
func isChild(prefix, p string) bool {
	rest, ok := strings.CutPrefix(p, prefix)
	return ok && rest != "" && !strings.Contains(rest, "/")
}

func baseName(name string) string {
	if name == "/" {
		return "/"
	}
	return path.Base(name)
}
