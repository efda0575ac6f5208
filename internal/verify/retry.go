package verify

import (
	"context"
	"math/rand"
	"time"

	"github.com/ebalkanli/verify-engine/internal/domain"
)

const (
	baseRetryDelay       = 500 * time.Millisecond
	maxRetryDelay        = 5 * time.Second
	maxRetryJitterMillis = 250
)

// isTransient reports whether a rejection category is worth retrying.
// Definitive verdicts (no MX, SMTP rejection, account not found) are not.
func isTransient(category domain.Category) bool {
	switch category {
	case domain.CategoryTimeout, domain.CategoryConnectionError, domain.CategoryLookupError:
		return true
	}
	return false
}

// retrier implements exponential backoff with jitter for transient faults.
type retrier struct {
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error
	randIntn   func(n int) int
}

func newRetrier(maxRetries int) retrier {
	return retrier{
		maxRetries: maxRetries,
		sleep:      sleepWithContext,
		randIntn:   rand.Intn,
	}
}

// withAttempts returns a copy allowing n retries. Negative n keeps the
// configured count; the backoff and jitter seams carry over either way.
func (r retrier) withAttempts(n int) retrier {
	if n >= 0 {
		r.maxRetries = n
	}
	return r
}

func (r retrier) delay(attemptNumber int) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}

	delay := baseRetryDelay
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			delay = maxRetryDelay
			break
		}
	}

	jitterMillis := 0
	if r.randIntn != nil && maxRetryJitterMillis > 0 {
		jitterMillis = r.randIntn(maxRetryJitterMillis + 1)
	}

	return delay + time.Duration(jitterMillis)*time.Millisecond
}

// run invokes attempt up to maxRetries+1 times, backing off between
// transient rejections. The last result always stands.
func (r retrier) run(ctx context.Context, attempt func(ctx context.Context) domain.VerificationResult) domain.VerificationResult {
	result := attempt(ctx)
	for attemptNumber := 1; attemptNumber <= r.maxRetries; attemptNumber++ {
		if result.Valid || !isTransient(result.Category) {
			return result
		}
		if err := r.sleep(ctx, r.delay(attemptNumber)); err != nil {
			return result
		}
		result = attempt(ctx)
	}
	return result
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
