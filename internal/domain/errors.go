package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// PersistenceError wraps a store failure for one artifact type. The historical
// logger surfaces these to the caller instead of swallowing them: the failed
// write stays eligible for retry on the next cycle because the rate-limit
// clock only advances on confirmed success.
type PersistenceError struct {
	Artifact string // "metrics", "positions", "fills"
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Artifact, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
