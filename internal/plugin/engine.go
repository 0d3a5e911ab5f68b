package plugin

import (
	"context"
	"strings"
)

// Source is one plugin file handed to an engine.
type Source struct {
	// Filename is the base name of the plugin file.
	Filename string

	// Folder is the plugins folder the file was read from.
	Folder string

	// Path is where the source originally came from, if known.
	Path string

	// Code is the file content.
	Code string
}

// Engine evaluates plugin files written in one script language.
type Engine interface {
	// Name returns the engine name, such as "js".
	Name() string

	// Extension returns the file suffix the engine handles, such as ".plugin.js".
	Extension() string

	// MetaSyntax returns how the language writes its metadata block.
	MetaSyntax() MetaSyntax

	// Evaluate runs the plugin body in a fresh scope and returns its exports.
	// Errors thrown by the body are logged by the engine and do not fail the
	// evaluation; only a body that cannot run at all returns an error.
	Evaluate(ctx context.Context, src Source) (Exports, error)

	// Close releases the engine.
	Close() error
}

// Exports is what a plugin body exported.
type Exports interface {
	// Instantiate resolves the export named name (or the whole export when
	// it is not an object), then constructs it with self as its only
	// argument or calls it as a factory.
	Instantiate(ctx context.Context, name string, self *Descriptor) (Instance, error)
}

// Instance is an instantiated plugin object.
type Instance interface {
	// Has reports whether the instance has a callable method.
	Has(method string) bool

	// Call invokes a method on the instance.
	Call(ctx context.Context, method string, args ...any) (any, error)
}

// handles reports whether e handles the named file.
func handles(e Engine, filename string) bool {
	return strings.HasSuffix(filename, e.Extension())
}
