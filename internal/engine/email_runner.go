package engine

import (
	"context"
	"fmt"

	"github.com/ebalkanli/verify-engine/internal/classify"
	"github.com/ebalkanli/verify-engine/internal/domain"
	"github.com/ebalkanli/verify-engine/internal/observability"
	"go.uber.org/zap"
)

// runEmailJob drives a whole email job: static screening, then network
// verification through the bounded pool, then the terminal broadcast.
func (e *Engine) runEmailJob(ctx context.Context, job *Job, emails []string) {
	job.markProcessing()
	logger := observability.JobLogger(e.logger, job.ID, job.Kind.String())
	logger.Info("email job started",
		zap.Int("total", job.total),
		zap.Int("maxConcurrent", job.Config.MaxConcurrent),
	)

	pool := NewPool(job.Config.MaxConcurrent, logger)

	runErr := pool.Run(ctx, len(emails), func(itemCtx context.Context, i int) {
		e.recordResult(job, e.verifyEmail(itemCtx, job, emails[i]))
	})
	if runErr != nil {
		// The pool stopped because the job context ended, which only
		// happens through Cancel. finishJob leaves cancelled jobs alone.
		runErr = nil
	}

	e.finishJob(job, runErr)
}

// verifyEmail runs a single address through the pipeline. Static screening
// happens before any network call; addresses it disqualifies for anything
// other than syntax keep the MX flag set, since the domain is assumed to
// resolve even though it was never looked up.
func (e *Engine) verifyEmail(ctx context.Context, job *Job, email string) (result domain.VerificationResult) {
	defer func() {
		if r := recover(); r != nil {
			result = domain.Rejected(email, domain.CategoryConnectionError, fmt.Sprintf("Verification panic: %v", r))
			e.logger.Error("email verification panicked",
				zap.String("jobId", job.ID),
				zap.String("email", email),
				zap.Any("panic", r),
			)
		}
	}()

	if outcome := classify.Email(email); !outcome.Pass {
		rejected := domain.Rejected(email, outcome.Category, outcome.Reason)
		if outcome.Category != domain.CategorySyntax {
			rejected.HasMXRecords = true
		}
		return rejected
	}

	itemCtx, cancel := context.WithTimeout(ctx, job.Config.ItemTimeout)
	defer cancel()

	kind := job.Kind.String()
	e.metrics.IncVerifierInFlight(kind)
	start := e.now()
	result = e.email.Verify(itemCtx, email, job.Config.RetryCount)
	e.metrics.ObserveVerifyDuration(kind, e.now().Sub(start))
	e.metrics.DecVerifierInFlight(kind)

	return result
}
