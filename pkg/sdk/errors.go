package geodex

import "github.com/kailas-cloud/geodex/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidRequest   = domain.ErrInvalidRequest
	ErrNotFound         = domain.ErrNotFound
	ErrIndexUnavailable = domain.ErrIndexUnavailable
	ErrTimeout          = domain.ErrTimeout
)
