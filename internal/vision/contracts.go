// Package vision defines the label extraction contract and its retry discipline.
package vision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joseph-ayodele/label-checker/internal/entity"
)

// Extractor reads structured label fields from a normalized JPEG.
type Extractor interface {
	Extract(ctx context.Context, image []byte, displayName string) (entity.ExtractedLabel, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, image []byte, displayName string) (entity.ExtractedLabel, error)

func (f ExtractorFunc) Extract(ctx context.Context, image []byte, displayName string) (entity.ExtractedLabel, error) {
	return f(ctx, image, displayName)
}

// RateLimitedError is returned when the service throttles the caller.
// RetryAfter is zero when the service gave no hint.
type RateLimitedError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

// ServiceError is a 5xx-class or transport failure.
type ServiceError struct {
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("service unavailable: %v", e.Err)
	}
	return fmt.Sprintf("service error %d: %v", e.StatusCode, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// UnrecoverableError is never retried.
type UnrecoverableError struct {
	Err error
}

func (e *UnrecoverableError) Error() string { return fmt.Sprintf("extraction failed: %v", e.Err) }

func (e *UnrecoverableError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a RateLimitedError or ServiceError.
func IsRetryable(err error) bool {
	var rl *RateLimitedError
	var se *ServiceError
	return errors.As(err, &rl) || errors.As(err, &se)
}
