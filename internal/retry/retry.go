// Package retry wraps remote calls with rate-limit-aware backoff.
//
// Errors are classified as rate-limit (one long fixed wait tuned just
// above the provider's window), transient (exponential backoff with
// jitter), or fatal (no retry). Classification is type-driven so callers
// branch on values rather than exception-style control flow.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"vellum/internal/config"
	"vellum/internal/logging"
)

// Kind classifies an error for backoff purposes.
type Kind int

const (
	// KindFatal errors abort immediately without retry.
	KindFatal Kind = iota
	// KindTransient errors retry with exponential backoff and jitter.
	KindTransient
	// KindRateLimit errors wait one long fixed interval before retrying.
	KindRateLimit
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimit:
		return "rate_limit"
	default:
		return "fatal"
	}
}

// Classifier lets error types declare their retry class.
type Classifier interface {
	RetryKind() Kind
}

// RateLimitError marks an error as a provider rate limit. RetryAfter, when
// positive, overrides the policy's fixed wait.
type RateLimitError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

func (e *RateLimitError) RetryKind() Kind { return KindRateLimit }

// TransientError marks an error as retryable with generic backoff.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func (e *TransientError) RetryKind() Kind { return KindTransient }

// RateLimited wraps err as a rate-limit error.
func RateLimited(err error, retryAfter time.Duration) error {
	if err == nil {
		return nil
	}
	return &RateLimitError{Err: err, RetryAfter: retryAfter}
}

// Transient wraps err as a transient error.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Classify returns the retry class of err. Context cancellation is always
// fatal: the caller is shutting down, not the provider failing.
func Classify(err error) Kind {
	if err == nil {
		return KindFatal
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindFatal
	}
	var classifier Classifier
	if errors.As(err, &classifier) {
		return classifier.RetryKind()
	}
	return KindFatal
}

// Policy drives Run. Zero values fall back to conservative defaults.
type Policy struct {
	MaxAttempts   int
	RateLimitWait time.Duration
	BaseDelay     time.Duration
	MaxDelay      time.Duration

	// Sleeper overrides how waits are performed (test hook).
	Sleeper func(ctx context.Context, d time.Duration) error
	// Rand returns a jitter factor in [0, 1) (test hook).
	Rand func() float64

	Logger *slog.Logger
}

// FromConfig builds a policy from the retry config section.
func FromConfig(cfg config.Retry, logger *slog.Logger) Policy {
	return Policy{
		MaxAttempts:   cfg.MaxAttempts,
		RateLimitWait: time.Duration(cfg.RateLimitWaitSeconds) * time.Second,
		BaseDelay:     time.Duration(cfg.BaseDelaySeconds) * time.Second,
		MaxDelay:      time.Duration(cfg.MaxDelaySeconds) * time.Second,
		Logger:        logging.WithComponent(logger, "retry"),
	}
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) rateLimitWait() time.Duration {
	if p.RateLimitWait <= 0 {
		return 65 * time.Second
	}
	return p.RateLimitWait
}

func (p Policy) baseDelay() time.Duration {
	if p.BaseDelay <= 0 {
		return time.Second
	}
	return p.BaseDelay
}

func (p Policy) maxDelay() time.Duration {
	if p.MaxDelay <= 0 {
		return 60 * time.Second
	}
	return p.MaxDelay
}

func (p Policy) logger() *slog.Logger {
	if p.Logger == nil {
		return logging.NewNop()
	}
	return p.Logger
}

// Run invokes fn until it succeeds, a fatal error occurs, or attempts are
// exhausted. It returns the number of attempts made and the final error,
// which on exhaustion is the last error observed.
func (p Policy) Run(ctx context.Context, op string, fn func(ctx context.Context) error) (int, error) {
	attempts := p.maxAttempts()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		kind := Classify(err)
		if kind == KindFatal {
			return attempt, err
		}
		if attempt == attempts {
			break
		}

		delay := p.delayFor(kind, err, attempt)
		p.logger().Warn("remote call failed; backing off",
			logging.String("op", op),
			logging.Int(logging.FieldAttempt, attempt),
			logging.String("class", kind.String()),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
		if err := p.sleep(ctx, delay); err != nil {
			return attempt, err
		}
	}

	return attempts, fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, lastErr)
}

func (p Policy) delayFor(kind Kind, err error, attempt int) time.Duration {
	if kind == KindRateLimit {
		var rl *RateLimitError
		if errors.As(err, &rl) && rl.RetryAfter > 0 {
			return rl.RetryAfter
		}
		return p.rateLimitWait()
	}

	// attempt 1 -> base, attempt 2 -> base*2, attempt 3 -> base*4, ...
	delay := p.baseDelay()
	maxDelay := p.maxDelay()
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	if delay > maxDelay {
		delay = maxDelay
	}

	// Jitter of ±25% desynchronizes concurrent workers retrying together.
	jitter := p.Rand
	if jitter == nil {
		jitter = rand.Float64
	}
	factor := 0.75 + jitter()/2
	return time.Duration(float64(delay) * factor)
}

func (p Policy) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if p.Sleeper != nil {
		return p.Sleeper(ctx, delay)
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
