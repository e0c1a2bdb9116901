package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDocumentNotFound signals a missing or soft-deleted document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrVectorDimMismatch signals a vector dimension mismatch. Never retried.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrAuthFailed signals bad provider credentials. Never retried.
	ErrAuthFailed = errors.New("provider authentication failed")
	// ErrRateLimited signals a provider rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProviderError signals a generic embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrNoEmbeddingProvider signals that no embedding provider is configured at all.
	ErrNoEmbeddingProvider = errors.New("no embedding provider configured")

	// ErrVectorSearchNotSupported signals that the store lacks vector search capability.
	ErrVectorSearchNotSupported = errors.New("vector search not supported by backend")
	// ErrIndexMissing signals a missing search index or schema.
	ErrIndexMissing = errors.New("search index does not exist")
	// ErrMalformedQuery signals a query the store could not parse.
	ErrMalformedQuery = errors.New("malformed search query")
	// ErrPermissionDenied signals insufficient store permissions.
	ErrPermissionDenied = errors.New("permission denied by backend")
)

// IsRetryable reports whether a provider error is transient and worth retrying.
// Authentication failures and dimension mismatches are definitive.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrAuthFailed) || errors.Is(err, ErrVectorDimMismatch) {
		return false
	}
	var vErr *VectorValidationError
	return !errors.As(err, &vErr)
}

// VectorValidationError rejects a vector before persistence.
type VectorValidationError struct {
	Reason string
	Got    int
	Want   int
}

func (e *VectorValidationError) Error() string {
	if e.Want > 0 {
		return fmt.Sprintf("invalid embedding vector: %s (got %d, want %d)", e.Reason, e.Got, e.Want)
	}
	return "invalid embedding vector: " + e.Reason
}

// NewVectorValidationError creates a validation error for a rejected vector.
func NewVectorValidationError(reason string, got, want int) error {
	return &VectorValidationError{Reason: reason, Got: got, Want: want}
}
