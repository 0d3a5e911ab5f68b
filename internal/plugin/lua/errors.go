package lua

import "errors"

// Errors returned by the Lua engine.
var (
	// ErrClosed is returned when using a closed engine.
	ErrClosed = errors.New("lua engine is closed")

	// ErrInterrupted is returned when a call ran past its deadline.
	ErrInterrupted = errors.New("lua execution interrupted")

	// ErrSyntax is returned when a plugin chunk does not compile.
	ErrSyntax = errors.New("lua syntax error")

	// ErrNoExport is returned when a plugin chunk returned nothing usable.
	ErrNoExport = errors.New("plugin export not found")

	// ErrNotCallable is returned when the export is neither a table nor a
	// factory, or a method is not a function.
	ErrNotCallable = errors.New("not a function")

	// ErrNotTable is returned when instantiation produced something other
	// than a table.
	ErrNotTable = errors.New("plugin instance is not a table")
)
