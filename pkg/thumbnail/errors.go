package thumbnail

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized indicates a missing, invalid or expired credential
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound indicates the source object does not exist
	ErrNotFound = errors.New("object not found")

	// ErrInvalidKey indicates a key outside the expected root or folder
	ErrInvalidKey = errors.New("invalid object key")

	// ErrGenerationExhausted indicates every strategy failed. It is logged and
	// resolved to the placeholder, never returned to callers of Generate.
	ErrGenerationExhausted = errors.New("all thumbnail strategies failed")
)

// ExtractionError is the expected failure of a single strategy.
type ExtractionError struct {
	Strategy string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("strategy %s failed: %v", e.Strategy, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to storage operations
type StorageError struct {
	Key string
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
