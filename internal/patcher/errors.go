package patcher

import "errors"

// Patcher errors.
var (
	// ErrTargetNotFound indicates the patch target could not be resolved.
	ErrTargetNotFound = errors.New("patch target not found")

	// ErrNotFunction indicates the target slot holds something other than a method.
	ErrNotFunction = errors.New("patch target is not a function")

	// ErrNoCallback indicates a nil callback was supplied.
	ErrNoCallback = errors.New("no callback provided")

	// ErrNoPhase indicates monkeyPatch options named none of before, after or instead.
	ErrNoPhase = errors.New("must provide one of: after, before, instead")
)
