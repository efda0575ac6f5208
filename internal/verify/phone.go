package verify

import (
	"context"
	"fmt"

	"github.com/ebalkanli/verify-engine/internal/domain"
	"go.uber.org/zap"
)

// Account is the metadata returned by a successful account lookup.
type Account struct {
	ID          string
	Username    string
	DisplayName string
}

// Lookup is the outcome of one remote account lookup.
type Lookup struct {
	Found   bool
	Account *Account
}

// Session is one authenticated lookup identity. Each phone-check chunk
// runs under its own session so the remote rate limiter sees independent
// clients.
type Session interface {
	CheckNumber(ctx context.Context, number string) (Lookup, error)
	Close() error
}

// SessionFactory establishes lookup sessions. The remote protocol is an
// external collaborator; implementations live outside this package.
type SessionFactory interface {
	NewSession(ctx context.Context, name string) (Session, error)
}

// PhoneVerifier marshals lookup calls into verification results.
type PhoneVerifier struct {
	retry  retrier
	logger *zap.Logger
}

func NewPhoneVerifier(retryCount int, logger *zap.Logger) *PhoneVerifier {
	if retryCount < 0 {
		retryCount = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PhoneVerifier{
		retry:  newRetrier(retryCount),
		logger: logger,
	}
}

// Verify looks up one phone number through the given session. Lookup
// errors are retried as transient faults; the exhausted error stands as a
// rejection so job progress always advances. A non-negative retries value
// overrides the configured retry count for this call.
func (v *PhoneVerifier) Verify(ctx context.Context, session Session, number string, retries int) domain.VerificationResult {
	return v.retry.withAttempts(retries).run(ctx, func(ctx context.Context) domain.VerificationResult {
		lookup, err := session.CheckNumber(ctx, number)
		if err != nil {
			return domain.Rejected(number, domain.CategoryLookupError, fmt.Sprintf("Lookup Error: %s", err))
		}

		if !lookup.Found {
			return domain.Rejected(number, domain.CategoryNotFound, "Account not found")
		}

		result := domain.VerificationResult{
			Identifier: number,
			Valid:      true,
		}
		if lookup.Account != nil {
			result.AccountID = lookup.Account.ID
			result.Username = lookup.Account.Username
			result.DisplayName = lookup.Account.DisplayName
		}
		return result
	})
}
