package domain

import "errors"

var (
	// ErrInvalidRequest signals malformed request options (pagination, coordinates, types).
	ErrInvalidRequest = errors.New("invalid request")
	// ErrIndexUnavailable signals that the search index could not be reached after retrying.
	ErrIndexUnavailable = errors.New("index unavailable")
	// ErrTimeout signals that the index call exceeded its deadline.
	ErrTimeout = errors.New("index timeout")
	// ErrNotFound signals a missing document on feature lookup.
	ErrNotFound = errors.New("not found")
)
