package verify

import (
	"context"
	"testing"
	"time"

	"github.com/ebalkanli/verify-engine/internal/domain"
)

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func TestRetrierDelayBackoff(t *testing.T) {
	t.Parallel()

	r := newRetrier(5)
	r.randIntn = func(n int) int { return 0 }

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{3, 2 * time.Second},
		{4, 4 * time.Second},
		{5, 5 * time.Second},
		{9, 5 * time.Second},
	}

	for _, tc := range cases {
		if got := r.delay(tc.attempt); got != tc.want {
			t.Errorf("delay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestRetrierDelayJitterBounds(t *testing.T) {
	t.Parallel()

	r := newRetrier(1)
	r.randIntn = func(n int) int { return n - 1 }

	got := r.delay(1)
	want := 500*time.Millisecond + 250*time.Millisecond
	if got != want {
		t.Fatalf("delay(1) = %v, want %v with max jitter", got, want)
	}
}

func TestRetrierStopsOnDefinitiveResult(t *testing.T) {
	t.Parallel()

	r := newRetrier(5)
	r.sleep = noSleep
	r.randIntn = func(n int) int { return 0 }

	attempts := 0
	result := r.run(context.Background(), func(ctx context.Context) domain.VerificationResult {
		attempts++
		if attempts == 2 {
			return domain.Rejected("x", domain.CategorySMTPRejected, "rejected")
		}
		return domain.Rejected("x", domain.CategoryTimeout, "timeout")
	})

	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
	if result.Category != domain.CategorySMTPRejected {
		t.Fatalf("Category = %q, want definitive rejection to stand", result.Category)
	}
}

func TestRetrierReturnsLastResultWhenExhausted(t *testing.T) {
	t.Parallel()

	r := newRetrier(2)
	r.sleep = noSleep
	r.randIntn = func(n int) int { return 0 }

	attempts := 0
	result := r.run(context.Background(), func(ctx context.Context) domain.VerificationResult {
		attempts++
		return domain.Rejected("x", domain.CategoryConnectionError, "down")
	})

	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	if result.Category != domain.CategoryConnectionError {
		t.Fatalf("Category = %q, want last transient result", result.Category)
	}
}

func TestRetrierAbortsWhenContextEnds(t *testing.T) {
	t.Parallel()

	r := newRetrier(5)
	r.randIntn = func(n int) int { return 0 }
	r.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	attempts := 0
	_ = r.run(context.Background(), func(ctx context.Context) domain.VerificationResult {
		attempts++
		return domain.Rejected("x", domain.CategoryTimeout, "timeout")
	})

	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 when sleep is interrupted", attempts)
	}
}
