package fetch

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyURL is returned for a blank URL.
	ErrEmptyURL = errors.New("empty url")

	// ErrNoFileName is returned when a plugin URL has no file name.
	ErrNoFileName = errors.New("url has no file name")
)

// StatusError is returned for a response outside the 2xx range.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Code)
}
