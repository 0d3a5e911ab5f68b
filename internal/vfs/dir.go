package vfs

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// Dir is a Backend rooted at a directory of the operating system's file
// system. Virtual paths never leave the root.
type Dir struct {
	root string
}

var _ Backend = (*Dir)(nil)

// NewDir creates a backend rooted at root, creating the directory if needed.
func NewDir(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Dir{root: abs}, nil
}

// Root returns the directory the backend is rooted at.
func (d *Dir) Root() string { return d.root }

func (d *Dir) real(name string) string {
	return filepath.Join(d.root, filepath.FromSlash(path.Clean("/"+name)))
}

// virtual rewrites an OS path error to name the virtual path.
func (d *Dir) virtual(err error, name string) error {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return pathError(pe.Op, name, pe.Err)
	}
	return err
}

func osFileInfo(name string, info fs.FileInfo) FileInfo {
	return NewFileInfo(name, baseName(name), info.Size(), info.Mode(), info.ModTime(), info.IsDir())
}

// Stat implements Backend.
func (d *Dir) Stat(name string) (FileInfo, error) {
	info, err := os.Stat(d.real(name))
	if err != nil {
		return FileInfo{}, d.virtual(err, name)
	}
	return osFileInfo(name, info), nil
}

// ReadDir implements Backend.
func (d *Dir) ReadDir(name string) ([]FileInfo, error) {
	entries, err := os.ReadDir(d.real(name))
	if err != nil {
		return nil, d.virtual(err, name)
	}

	prefix := dirPrefix(name)
	infos := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue // removed since the listing
		}
		infos = append(infos, osFileInfo(prefix+entry.Name(), info))
	}
	return infos, nil
}

// ReadFile implements Backend.
func (d *Dir) ReadFile(name string) ([]byte, error) {
	data, err := os.ReadFile(d.real(name))
	return data, d.virtual(err, name)
}

// WriteFile implements Backend.
func (d *Dir) WriteFile(name string, data []byte) error {
	return d.virtual(os.WriteFile(d.real(name), data, 0o644), name)
}

// Mkdir implements Backend.
func (d *Dir) Mkdir(name string) error {
	return d.virtual(os.Mkdir(d.real(name), 0o755), name)
}

// Remove implements Backend.
func (d *Dir) Remove(name string) error {
	if name == "/" {
		entries, err := os.ReadDir(d.root)
		if err != nil {
			return d.virtual(err, name)
		}
		if len(entries) > 0 {
			return pathError("remove", name, errNotEmpty)
		}
		return nil
	}
	return d.virtual(os.Remove(d.real(name)), name)
}

// Close implements Backend.
func (d *Dir) Close() error { return nil }
