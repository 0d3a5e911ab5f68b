package js

import "errors"

// Errors returned by the JS engine.
var (
	// ErrClosed is returned when using a closed engine.
	ErrClosed = errors.New("js engine is closed")

	// ErrInterrupted is returned when a call ran past its deadline and was
	// interrupted.
	ErrInterrupted = errors.New("js execution interrupted")

	// ErrSyntax is returned when a plugin body does not compile.
	ErrSyntax = errors.New("js syntax error")

	// ErrNoExport is returned when a plugin exported nothing usable.
	ErrNoExport = errors.New("plugin export not found")

	// ErrNotCallable is returned when the export is neither a constructor
	// nor a factory, or a method is not a function.
	ErrNotCallable = errors.New("not a function")

	// ErrNotObject is returned when instantiation produced a primitive.
	ErrNotObject = errors.New("plugin instance is not an object")

	// ErrNoFetcher is returned by BdApi.Net.fetch when no fetcher is set.
	ErrNoFetcher = errors.New("no fetcher configured")

	// ErrNoFileSystem is thrown by require("fs") when no file system is set.
	ErrNoFileSystem = errors.New("no file system configured")
)
