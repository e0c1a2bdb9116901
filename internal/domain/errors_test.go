package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", fmt.Errorf("429: %w", ErrRateLimited), true},
		{"provider error", fmt.Errorf("503: %w", ErrEmbeddingProviderError), true},
		{"auth failed", fmt.Errorf("401: %w", ErrAuthFailed), false},
		{"dim mismatch", fmt.Errorf("bad vector: %w", ErrVectorDimMismatch), false},
		{"validation", NewVectorValidationError("dimension mismatch", 2, 4), false},
		{"generic", errors.New("connection reset"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestVectorValidationError_Message(t *testing.T) {
	err := NewVectorValidationError("dimension mismatch", 2, 4)
	want := "invalid embedding vector: dimension mismatch (got 2, want 4)"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}

	err = NewVectorValidationError("non-finite component", 0, 0)
	want = "invalid embedding vector: non-finite component"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestVectorValidationError_As(t *testing.T) {
	wrapped := fmt.Errorf("generate: %w", NewVectorValidationError("dimension mismatch", 2, 4))
	var vErr *VectorValidationError
	if !errors.As(wrapped, &vErr) {
		t.Fatal("expected errors.As to unwrap VectorValidationError")
	}
	if vErr.Got != 2 || vErr.Want != 4 {
		t.Errorf("unexpected fields: %+v", vErr)
	}
}
