package vision

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/joseph-ayodele/label-checker/internal/entity"
)

// RetryPolicy decides how often and how long to wait between extraction attempts.
type RetryPolicy struct {
	MaxAttempts int
	// Backoff returns the wait before the next attempt; attempt is zero-based.
	Backoff   func(attempt int, err error) time.Duration
	Retryable func(err error) bool
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy retries rate limits and service errors up to maxAttempts
// total attempts. Rate limits wait for the server hint (or 2^attempt seconds)
// and service errors wait 2^attempt seconds; both add jitter in [0, 1+attempt) seconds.
func DefaultRetryPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		Backoff:     defaultBackoff,
		Retryable:   IsRetryable,
		Sleep:       sleepCtx,
	}
}

func defaultBackoff(attempt int, err error) time.Duration {
	base := time.Duration(math.Pow(2, float64(attempt)) * float64(time.Second))
	var rl *RateLimitedError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		base = rl.RetryAfter
	}
	jitter := time.Duration(rand.Float64() * float64(1+attempt) * float64(time.Second))
	return base + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, exhausts
// MaxAttempts, or ctx is done. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := max(p.MaxAttempts, 1)
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(ctx, attempt); err == nil {
			return nil
		}
		if attempt == attempts-1 || p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt, err)
		}
		if serr := sleep(ctx, wait); serr != nil {
			return err
		}
	}
	return err
}

type retryingExtractor struct {
	next   Extractor
	policy RetryPolicy
	logger *slog.Logger
}

// WithRetry wraps next so every Extract call runs under policy.
func WithRetry(next Extractor, policy RetryPolicy, logger *slog.Logger) Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &retryingExtractor{next: next, policy: policy, logger: logger}
}

func (r *retryingExtractor) Extract(ctx context.Context, image []byte, displayName string) (entity.ExtractedLabel, error) {
	var out entity.ExtractedLabel
	start := time.Now()
	err := r.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			r.logger.Warn("vision.extract.retry", "filename", displayName, "attempt", attempt+1)
		}
		label, err := r.next.Extract(ctx, image, displayName)
		if err != nil {
			return err
		}
		out = label
		return nil
	})
	if err != nil {
		return entity.ExtractedLabel{}, err
	}
	out.ProcessingTimeMS = time.Since(start).Milliseconds()
	return out, nil
}
