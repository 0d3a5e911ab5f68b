package config

import (
	"errors"
	"fmt"
)

// Errors returned by configuration operations.
var (
	// ErrUnknownFormat indicates a settings file extension with no codec.
	ErrUnknownFormat = errors.New("unknown settings format")

	// ErrInvalidStorage indicates an unknown storage backend.
	ErrInvalidStorage = errors.New("invalid storage backend")

	// ErrTooManyURLs indicates more remote plugin URLs than supported.
	ErrTooManyURLs = errors.New("too many plugin urls")

	// ErrNoFile indicates a memory store where a file is needed.
	ErrNoFile = errors.New("settings are not backed by a file")

	// ErrUnknownKey indicates a settings key that does not exist.
	ErrUnknownKey = errors.New("unknown setting")

	// ErrNotBool indicates a value that is not a boolean.
	ErrNotBool = errors.New("not a boolean")

	// ErrWatcherClosed indicates the watcher has been closed.
	ErrWatcherClosed = errors.New("watcher is closed")
)

// ParseError represents an error while parsing a settings file.
type ParseError struct {
	// Path is the file path that failed to parse.
	Path string
	// Line is the line number where the error occurred (if available).
	Line int
	// Column is the column number where the error occurred (if available).
	Column int
	// Message describes the parse error.
	Message string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("parse error in %s at line %d, column %d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse error in %s at line %d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidationError describes a setting with an unacceptable value.
type ValidationError struct {
	// Key is the setting name as written in the file.
	Key string
	// Value is the invalid value.
	Value any
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Key, e.Err, e.Value)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}
