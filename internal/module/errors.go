package module

import "errors"

// Registry errors.
var (
	// ErrNoMethod indicates the named method slot is empty.
	ErrNoMethod = errors.New("no such method")

	// ErrModuleExists indicates a module with the same ID is already registered.
	ErrModuleExists = errors.New("module already registered")

	// ErrModuleNotFound indicates no module matched.
	ErrModuleNotFound = errors.New("module not found")

	// ErrInvalidModule indicates a module without an ID or exports.
	ErrInvalidModule = errors.New("invalid module")
)
