package plugin

import (
	"errors"
	"fmt"
	"strings"
)

// Plugin system errors.
var (
	// ErrPluginNotFound is returned when a plugin cannot be located.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrAlreadyRegistered is returned when a name is already taken in the host registry.
	ErrAlreadyRegistered = errors.New("plugin is already registered")

	// ErrNoEngine is returned when no engine handles a plugin file.
	ErrNoEngine = errors.New("no engine for plugin file")

	// ErrMetadata is returned when the metadata block is missing or malformed.
	ErrMetadata = errors.New("malformed plugin metadata")

	// ErrEvaluation is returned when plugin code cannot be evaluated at all.
	ErrEvaluation = errors.New("plugin evaluation failed")

	// ErrInstantiation is returned when the plugin export cannot be
	// constructed or called, or one of its load-time methods fails.
	ErrInstantiation = errors.New("plugin instantiation failed")

	// ErrIncomplete is returned when name, version or description is missing.
	ErrIncomplete = errors.New("incomplete plugin")

	// ErrStartFailed is returned when a plugin's start hook fails.
	ErrStartFailed = errors.New("plugin failed to start")

	// ErrStopFailed is returned when a plugin's stop hook fails.
	ErrStopFailed = errors.New("plugin failed to stop")

	// ErrInvalidData is returned when a plugin data file is not valid JSON.
	ErrInvalidData = errors.New("invalid plugin data")
)

// MetaError describes a metadata block that could not be parsed.
type MetaError struct {
	// File is the plugin filename.
	File string

	// Line is the index of the last metadata entry parsed successfully,
	// or -1 if none was.
	Line int

	Err error
}

// Error implements error.
func (e *MetaError) Error() string {
	return fmt.Sprintf("parsing meta of %s failed after entry %d: %v", e.File, e.Line, e.Err)
}

// Unwrap returns ErrMetadata and the underlying cause.
func (e *MetaError) Unwrap() []error {
	return []error{ErrMetadata, e.Err}
}

// MissingFieldsError lists the required fields a plugin did not provide.
type MissingFieldsError struct {
	Plugin string
	Fields []string
}

// Error implements error.
func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("plugin %s is missing: %s", e.Plugin, strings.Join(e.Fields, ", "))
}

// Unwrap returns ErrIncomplete.
func (e *MissingFieldsError) Unwrap() error {
	return ErrIncomplete
}
