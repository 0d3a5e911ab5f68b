package app

import (
	"errors"
	"fmt"
)

// Layer errors.
var (
	// ErrClosed indicates the layer has been closed.
	ErrClosed = errors.New("compatibility layer closed")

	// ErrSafeMode indicates plugins are not loaded because safe mode is on.
	ErrSafeMode = errors.New("safe mode enabled")

	// ErrUnknownLevel indicates an unrecognized log level name.
	ErrUnknownLevel = errors.New("unknown log level")
)

// InitError represents an initialization error.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return "init " + e.Component + ": " + e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// ComponentError represents an error from a specific component.
type ComponentError struct {
	Component string
	Op        string
	Err       error
}

func (e *ComponentError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Component, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Component, e.Err)
}

func (e *ComponentError) Unwrap() error {
	return e.Err
}
