package plugin

import (
	"errors"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// Files is the filesystem plugins are read from. *vfs.FS implements it.
type Files interface {
	ReadDir(name string) ([]fs.DirEntry, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte) error
}

// Loader discovers plugin files in one folder.
type Loader struct {
	files  Files
	folder string
}

// NewLoader creates a loader for folder in files.
func NewLoader(files Files, folder string) *Loader {
	return &Loader{files: files, folder: folder}
}

// Folder returns the folder the loader reads.
func (l *Loader) Folder() string {
	return l.folder
}

// Discover returns the names of the regular files in the folder that end
// with one of the given suffixes, sorted lexically. A missing folder holds
// no plugins.
func (l *Loader) Discover(suffixes ...string) ([]string, error) {
	entries, err := l.files.ReadDir(l.folder)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		for _, suffix := range suffixes {
			if strings.HasSuffix(entry.Name(), suffix) {
				names = append(names, entry.Name())
				break
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// Path returns the full path of a file in the folder.
func (l *Loader) Path(filename string) string {
	return path.Join(l.folder, filename)
}

// Read returns the content of a file in the folder.
func (l *Loader) Read(filename string) (string, error) {
	data, err := l.files.ReadFile(l.Path(filename))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
