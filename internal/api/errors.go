package api

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreachable indicates no response was received from the backend.
	ErrUnreachable = errors.New("backend unreachable")

	// ErrNoFile indicates an upload was attempted without a file.
	ErrNoFile = errors.New("no file provided")

	// ErrInvalidChunkSize indicates the requested chunk size is out of range.
	ErrInvalidChunkSize = errors.New("chunk size must be between 1 and 512")

	// ErrMetadataMismatch indicates metadata keys and values differ in length.
	ErrMetadataMismatch = errors.New("metadata keys and values must have equal length")

	// ErrEmptyQuery indicates a query was submitted without text.
	ErrEmptyQuery = errors.New("query text is required")
)

// APIError is a server-reported failure: a non-2xx response whose body
// carries an error field. It preserves the HTTP status and the
// backend's message so callers can surface both.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("api: HTTP %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a server-side 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}
