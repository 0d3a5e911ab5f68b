package vfs

import (
	"errors"
	"io/fs"
	"syscall"
)

// Errors returned by the filesystem.
var (
	// ErrRoot is returned when asked to remove "/".
	ErrRoot = errors.New("refusing to remove the root directory")

	// ErrNoSelection is returned when a picker selected nothing.
	ErrNoSelection = errors.New("no file selected")

	// ErrSelectTimeout is returned when a picker did not answer in time.
	ErrSelectTimeout = errors.New("file selection timed out")

	// ErrUnknownBackend is returned by Open for an unknown backend kind.
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// POSIX errors, matching what the directory backend gets from the OS.
var (
	errNotExist = fs.ErrNotExist
	errExist    = fs.ErrExist
	errIsDir    = syscall.EISDIR
	errNotDir   = syscall.ENOTDIR
	errNotEmpty = syscall.ENOTEMPTY
)

func pathError(op, name string, err error) error {
	return &fs.PathError{Op: op, Path: name, Err: err}
}
