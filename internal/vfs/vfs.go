// Package vfs provides the virtual filesystem plugins are loaded from.
//
// A Backend stores the tree. The backends are interchangeable: in memory,
// a buntdb key-value file, an indexed SQLite table or a directory on disk.
// FS layers path cleaning and the recursive operations on top of any of
// them, and the archive and transfer helpers work on an FS.
package vfs

import (
	"io/fs"
	"time"
)

// Backend is the storage under an FS. Paths are clean, absolute and
// slash-separated; "/" always exists and is a directory.
//
// Errors are *fs.PathError values wrapping fs.ErrNotExist, fs.ErrExist or
// one of the syscall errors ENOTDIR, EISDIR and ENOTEMPTY.
type Backend interface {
	// Stat returns file information.
	Stat(name string) (FileInfo, error)

	// ReadDir returns the entries of a directory sorted by name.
	ReadDir(name string) ([]FileInfo, error)

	// ReadFile reads a whole file.
	ReadFile(name string) ([]byte, error)

	// WriteFile creates or replaces a file. The parent must exist.
	WriteFile(name string, data []byte) error

	// Mkdir creates a directory. The parent must exist.
	Mkdir(name string) error

	// Remove removes a file or an empty directory.
	Remove(name string) error

	// Close releases the backend.
	Close() error
}

// FileInfo describes a file or directory.
type FileInfo struct {
	path    string
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	isDir   bool
}

// NewFileInfo creates a FileInfo from the given parameters.
func NewFileInfo(path, name string, size int64, mode fs.FileMode, modTime time.Time, isDir bool) FileInfo {
	return FileInfo{
		path:    path,
		name:    name,
		size:    size,
		mode:    mode,
		modTime: modTime,
		isDir:   isDir,
	}
}

func fileInfo(name string, size int64, modTime time.Time) FileInfo {
	return NewFileInfo(name, baseName(name), size, 0o644, modTime, false)
}

func dirInfo(name string, modTime time.Time) FileInfo {
	return NewFileInfo(name, baseName(name), 0, fs.ModeDir|0o755, modTime, true)
}

// Path returns the full path.
func (fi FileInfo) Path() string { return fi.path }

// Name returns the base name.
func (fi FileInfo) Name() string { return fi.name }

// Size returns the file size in bytes.
func (fi FileInfo) Size() int64 { return fi.size }

// Mode returns the file mode.
func (fi FileInfo) Mode() fs.FileMode { return fi.mode }

// ModTime returns the modification time.
func (fi FileInfo) ModTime() time.Time { return fi.modTime }

// IsDir returns true if this is a directory.
func (fi FileInfo) IsDir() bool { return fi.isDir }

// Sys returns nil.
func (fi FileInfo) Sys() any { return nil }

// dirEntry adapts FileInfo to fs.DirEntry.
type dirEntry struct {
	info FileInfo
}

func (d dirEntry) Name() string               { return d.info.Name() }
func (d dirEntry) IsDir() bool                { return d.info.IsDir() }
func (d dirEntry) Type() fs.FileMode          { return d.info.Mode().Type() }
func (d dirEntry) Info() (fs.FileInfo, error) { return d.info, nil }
