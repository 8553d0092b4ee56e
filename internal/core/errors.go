package core

import (
	"errors"
	"fmt"
)

// Error codes carried to the wire.
const (
	ErrCodeValidation   = "validation_error"
	ErrCodeNotFound     = "not_found"
	ErrCodeStorage      = "storage_error"
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
)

var (
	// ErrEmptyContent rejects an append that carries neither text nor an
	// attachment. Never retried.
	ErrEmptyContent = errors.New("message must have text or attachment(s)")
	// ErrMissingRoom rejects an append or query without a room id.
	ErrMissingRoom = errors.New("room id is required")
	// ErrMissingAuthor rejects an append without an author id.
	ErrMissingAuthor = errors.New("author id is required")
)

// StorageError marks a transient storage failure on the append, page, or
// read-state path. Callers may retry an append with the same correlation id;
// the client view deduplicates the echo.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %v", e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err belongs to the validation taxonomy.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyContent) ||
		errors.Is(err, ErrMissingRoom) ||
		errors.Is(err, ErrMissingAuthor)
}

// CoreError wraps a code and human-readable message for the wire protocol.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}
