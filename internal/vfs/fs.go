package vfs

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"path"
	"strings"

	"go.uber.org/zap"
)

// FS is a hierarchical file tree over a Backend. Every path is cleaned and
// made absolute, so "//BD/plugins/" and "/BD/plugins" name the same folder.
//
// FS implements plugin.Files.
type FS struct {
	backend Backend
	log     *zap.SugaredLogger
}

// Option configures an FS.
type Option func(*FS)

// WithLogger sets the logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(f *FS) {
		if log != nil {
			f.log = log
		}
	}
}

// New creates an FS over b.
func New(b Backend, opts ...Option) *FS {
	f := &FS{
		backend: b,
		log:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Backend returns the storage under f.
func (f *FS) Backend() Backend { return f.backend }

// Close closes the backend.
func (f *FS) Close() error { return f.backend.Close() }

// Clean normalizes a path.
func Clean(p string) string {
	return path.Clean("/" + p)
}

// Stat returns file information.
func (f *FS) Stat(name string) (FileInfo, error) {
	return f.backend.Stat(Clean(name))
}

// Exists reports whether name exists.
func (f *FS) Exists(name string) bool {
	_, err := f.Stat(name)
	return err == nil
}

// IsDir reports whether name is a directory.
func (f *FS) IsDir(name string) bool {
	info, err := f.Stat(name)
	return err == nil && info.IsDir()
}

// ReadDir returns the entries of a directory sorted by name.
func (f *FS) ReadDir(name string) ([]fs.DirEntry, error) {
	infos, err := f.backend.ReadDir(Clean(name))
	if err != nil {
		return nil, err
	}
	entries := make([]fs.DirEntry, len(infos))
	for i, info := range infos {
		entries[i] = dirEntry{info: info}
	}
	return entries, nil
}

// ReadFile reads a whole file.
func (f *FS) ReadFile(name string) ([]byte, error) {
	return f.backend.ReadFile(Clean(name))
}

// WriteFile creates or replaces a file. The parent directory must exist.
func (f *FS) WriteFile(name string, data []byte) error {
	return f.backend.WriteFile(Clean(name), data)
}

// Mkdir creates one directory.
func (f *FS) Mkdir(name string) error {
	return f.backend.Mkdir(Clean(name))
}

// Remove removes a file or an empty directory.
func (f *FS) Remove(name string) error {
	return f.backend.Remove(Clean(name))
}

// MkdirRecursive creates name and every missing ancestor. It does nothing
// when name already exists.
func (f *FS) MkdirRecursive(name string) error {
	name = Clean(name)
	if f.Exists(name) {
		return nil
	}
	if parent := path.Dir(name); !f.Exists(parent) {
		if err := f.MkdirRecursive(parent); err != nil {
			return err
		}
	}
	err := f.backend.Mkdir(name)
	if errors.Is(err, fs.ErrExist) {
		return nil
	}
	return err
}

// RemoveRecursive removes name and everything below it, files first. It
// refuses to remove the root; use Format to empty it.
func (f *FS) RemoveRecursive(name string) error {
	name = Clean(name)
	if name == "/" {
		return ErrRoot
	}
	return f.removeAll(name)
}

// removeAll empties a directory depth first, then removes it. The root
// is emptied but kept.
func (f *FS) removeAll(name string) error {
	info, err := f.backend.Stat(name)
	if err != nil {
		return err
	}
	if info.IsDir() {
		entries, err := f.backend.ReadDir(name)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := f.removeAll(entry.Path()); err != nil {
				return err
			}
		}
	}
	if name == "/" {
		return nil
	}
	return f.backend.Remove(name)
}

// Format removes everything in the filesystem.
func (f *FS) Format() error {
	return f.removeAll("/")
}

// Walk walks the tree rooted at root in lexical order, calling fn for
// every file and directory, root included.
func (f *FS) Walk(root string, fn fs.WalkDirFunc) error {
	root = Clean(root)
	info, err := f.backend.Stat(root)
	if err != nil {
		return fn(root, nil, err)
	}
	err = f.walk(root, dirEntry{info: info}, fn)
	if errors.Is(err, fs.SkipDir) || errors.Is(err, fs.SkipAll) {
		return nil
	}
	return err
}

func (f *FS) walk(name string, d fs.DirEntry, fn fs.WalkDirFunc) error {
	if err := fn(name, d, nil); err != nil {
		if err == fs.SkipDir && d.IsDir() {
			return nil
		}
		return err
	}
	if !d.IsDir() {
		return nil
	}

	infos, err := f.backend.ReadDir(name)
	if err != nil {
		return fn(name, d, err)
	}
	for _, info := range infos {
		if err := f.walk(info.Path(), dirEntry{info: info}, fn); err != nil {
			if err == fs.SkipDir {
				break
			}
			return err
		}
	}
	return nil
}

// ReadTree reads every file below name, keyed by its path relative to
// name.
func (f *FS) ReadTree(name string) (map[string][]byte, error) {
	tree := make(map[string][]byte)
	err := f.eachFile(name, func(rel, p string, _ FileInfo) error {
		data, err := f.backend.ReadFile(p)
		if err != nil {
			return err
		}
		tree[rel] = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tree, nil
}

// Opener opens one file of a lazily read tree.
type Opener func() (io.ReadCloser, error)

// OpenTree is ReadTree without reading: each file is read when its Opener
// is called.
func (f *FS) OpenTree(name string) (map[string]Opener, error) {
	tree := make(map[string]Opener)
	err := f.eachFile(name, func(rel, p string, _ FileInfo) error {
		tree[rel] = func() (io.ReadCloser, error) {
			data, err := f.backend.ReadFile(p)
			if err != nil {
				return nil, err
			}
			return io.NopCloser(bytes.NewReader(data)), nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tree, nil
}

// DirectorySize sums the sizes of every file below name.
func (f *FS) DirectorySize(name string) (int64, error) {
	var total int64
	err := f.eachFile(name, func(_, _ string, info FileInfo) error {
		total += info.Size()
		return nil
	})
	return total, err
}

// eachFile calls fn for every file below name with its relative and full
// path.
func (f *FS) eachFile(name string, fn func(rel, p string, info FileInfo) error) error {
	root := Clean(name)
	prefix := dirPrefix(root)
	return f.Walk(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(p, prefix)
		if p == root {
			rel = path.Base(p)
		}
		return fn(rel, p, info.(FileInfo))
	})
}
