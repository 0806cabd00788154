package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"vellum/internal/retry"
)

func testPolicy(sleeps *[]time.Duration) retry.Policy {
	return retry.Policy{
		MaxAttempts:   4,
		RateLimitWait: 65 * time.Second,
		BaseDelay:     2 * time.Second,
		MaxDelay:      60 * time.Second,
		Rand:          func() float64 { return 0.5 }, // factor 1.0, no jitter
		Sleeper: func(ctx context.Context, d time.Duration) error {
			*sleeps = append(*sleeps, d)
			return nil
		},
	}
}

func TestRunSucceedsFirstAttempt(t *testing.T) {
	var sleeps []time.Duration
	attempts, err := testPolicy(&sleeps).Run(context.Background(), "op", func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if attempts != 1 || len(sleeps) != 0 {
		t.Fatalf("expected one attempt and no sleeps, got %d attempts, %v", attempts, sleeps)
	}
}

func TestRunBacksOffTransientErrors(t *testing.T) {
	var sleeps []time.Duration
	calls := 0
	attempts, err := testPolicy(&sleeps).Run(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return retry.Transient(errors.New("flaky"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	// Exponential: base, base*2.
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(sleeps) != len(want) || sleeps[0] != want[0] || sleeps[1] != want[1] {
		t.Fatalf("unexpected delays %v, want %v", sleeps, want)
	}
}

func TestRunWaitsFixedIntervalForRateLimits(t *testing.T) {
	var sleeps []time.Duration
	calls := 0
	_, err := testPolicy(&sleeps).Run(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return retry.RateLimited(errors.New("429"), 0)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(sleeps) != 1 || sleeps[0] != 65*time.Second {
		t.Fatalf("expected single 65s wait, got %v", sleeps)
	}
}

func TestRunHonorsRetryAfterOverride(t *testing.T) {
	var sleeps []time.Duration
	calls := 0
	_, err := testPolicy(&sleeps).Run(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return retry.RateLimited(errors.New("429"), 90*time.Second)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(sleeps) != 1 || sleeps[0] != 90*time.Second {
		t.Fatalf("expected Retry-After to win, got %v", sleeps)
	}
}

func TestRunStopsOnFatalError(t *testing.T) {
	var sleeps []time.Duration
	fatal := errors.New("bad request")
	attempts, err := testPolicy(&sleeps).Run(context.Background(), "op", func(ctx context.Context) error {
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("expected fatal error back, got %v", err)
	}
	if attempts != 1 || len(sleeps) != 0 {
		t.Fatalf("fatal error must not retry: %d attempts, %v", attempts, sleeps)
	}
}

func TestRunExhaustsAttempts(t *testing.T) {
	var sleeps []time.Duration
	cause := errors.New("still down")
	attempts, err := testPolicy(&sleeps).Run(context.Background(), "op", func(ctx context.Context) error {
		return retry.Transient(cause)
	})
	if err == nil || !errors.Is(err, cause) {
		t.Fatalf("expected wrapped final error, got %v", err)
	}
	if attempts != 4 {
		t.Fatalf("expected 4 attempts, got %d", attempts)
	}
	if len(sleeps) != 3 {
		t.Fatalf("expected 3 waits, got %v", sleeps)
	}
}

func TestRunDelayCappedAtMax(t *testing.T) {
	var sleeps []time.Duration
	policy := testPolicy(&sleeps)
	policy.MaxAttempts = 8
	_, _ = policy.Run(context.Background(), "op", func(ctx context.Context) error {
		return retry.Transient(errors.New("down"))
	})
	for _, delay := range sleeps {
		if delay > 60*time.Second {
			t.Fatalf("delay exceeds cap: %v", sleeps)
		}
	}
	if sleeps[len(sleeps)-1] != 60*time.Second {
		t.Fatalf("expected final delay at cap, got %v", sleeps)
	}
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := retry.Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		Sleeper: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}
	_, err := policy.Run(ctx, "op", func(ctx context.Context) error {
		return retry.Transient(errors.New("down"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want retry.Kind
	}{
		{"nil", nil, retry.KindFatal},
		{"plain", errors.New("x"), retry.KindFatal},
		{"transient", retry.Transient(errors.New("x")), retry.KindTransient},
		{"rate limit", retry.RateLimited(errors.New("x"), 0), retry.KindRateLimit},
		{"wrapped transient", errors.Join(errors.New("outer"), retry.Transient(errors.New("x"))), retry.KindTransient},
		{"cancelled", context.Canceled, retry.KindFatal},
	}
	for _, tc := range cases {
		if got := retry.Classify(tc.err); got != tc.want {
			t.Errorf("%s: Classify = %v, want %v", tc.name, got, tc.want)
		}
	}
}
