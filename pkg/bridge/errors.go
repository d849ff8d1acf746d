package bridge

import (
	"errors"
	"fmt"
)

// ErrStreamConsumed is returned when a chunk source is traversed a second
// time. A source is forward-only; re-traversal is a programming error.
var ErrStreamConsumed = errors.New("chunk source already consumed")

// ErrNoEndpoint is returned by Open when the request has no endpoint URL.
var ErrNoEndpoint = errors.New("endpoint is required")

// ConnectionError reports a request the backend rejected before any
// streaming began. No partial content is ever delivered alongside it.
type ConnectionError struct {
	Status     int
	StatusText string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("backend rejected request: %d %s", e.Status, e.StatusText)
}
