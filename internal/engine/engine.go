// Package engine implements the batch verification core: job lifecycle,
// bounded-concurrency processing, incremental aggregation, and progress
// broadcasting shared by the email and phone flows.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ebalkanli/verify-engine/internal/domain"
	"github.com/ebalkanli/verify-engine/internal/observability"
	"github.com/ebalkanli/verify-engine/internal/queue"
	"github.com/ebalkanli/verify-engine/internal/ratelimit"
	"github.com/ebalkanli/verify-engine/internal/verify"
	"go.uber.org/zap"
)

// persistTimeout bounds best-effort result persistence and publication so
// a stalled sink cannot hold a worker slot.
const persistTimeout = 5 * time.Second

// EmailVerifier is the network-verification port for the email flow.
// The retries argument carries the job's configured retry count.
type EmailVerifier interface {
	Verify(ctx context.Context, email string, retries int) domain.VerificationResult
}

// PhoneVerifier is the lookup port for the phone flow. The retries
// argument carries the job's configured retry count.
type PhoneVerifier interface {
	Verify(ctx context.Context, session verify.Session, number string, retries int) domain.VerificationResult
}

// ResultStore persists per-identifier results. Persistence is best-effort:
// a failing store never fails the item.
type ResultStore interface {
	SaveResult(ctx context.Context, jobID string, kind domain.JobKind, result domain.VerificationResult) error
}

// Engine is the facade callers submit jobs to.
type Engine struct {
	registry    *Registry
	broadcaster *Broadcaster
	email       EmailVerifier
	phone       PhoneVerifier
	sessions    verify.SessionFactory
	limiter     ratelimit.RateLimiter
	store       ResultStore
	publisher   queue.Publisher
	metrics     *observability.Metrics
	logger      *zap.Logger
	defaults    domain.JobConfig
	now         func() time.Time
	itemDelay   func(ctx context.Context, sessionName string) error
}

func NewEngine(
	registry *Registry,
	email EmailVerifier,
	phone PhoneVerifier,
	sessions verify.SessionFactory,
	limiter ratelimit.RateLimiter,
	defaults domain.JobConfig,
	logger *zap.Logger,
) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults.Normalize()

	e := &Engine{
		registry:    registry,
		broadcaster: NewBroadcaster(logger),
		email:       email,
		phone:       phone,
		sessions:    sessions,
		limiter:     limiter,
		defaults:    defaults,
		logger:      logger,
		now:         time.Now,
	}
	e.itemDelay = e.waitForSlot
	return e, nil
}

// SetStore wires a best-effort result store.
func (e *Engine) SetStore(store ResultStore) {
	if e == nil {
		return
	}
	e.store = store
}

// SetPublisher wires a best-effort result publisher.
func (e *Engine) SetPublisher(publisher queue.Publisher) {
	if e == nil {
		return
	}
	e.publisher = publisher
}

func (e *Engine) SetMetrics(metrics *observability.Metrics) {
	if e == nil {
		return
	}
	e.metrics = metrics
}

// SubmitEmailJob starts asynchronous verification of an email list and
// returns the job id immediately.
func (e *Engine) SubmitEmailJob(ctx context.Context, emails []string, cfg domain.JobConfig) (string, error) {
	if len(emails) == 0 {
		return "", fmt.Errorf("%w: identifiers are required", domain.ErrValidation)
	}

	cfg = e.mergeConfig(cfg)
	job := e.registry.Create(domain.KindEmail, len(emails), cfg)

	// Processing outlives the submitting request; the job context is only
	// ended by Cancel or completion.
	jobCtx, cancel := context.WithCancel(context.Background())
	job.cancel = cancel

	e.metrics.IncJobStarted(job.Kind.String())
	go e.runEmailJob(jobCtx, job, emails)

	return job.ID, nil
}

// SubmitPhoneJob starts asynchronous verification of a phone-number list
// and returns the job id immediately.
func (e *Engine) SubmitPhoneJob(ctx context.Context, numbers []string, cfg domain.JobConfig) (string, error) {
	if len(numbers) == 0 {
		return "", fmt.Errorf("%w: identifiers are required", domain.ErrValidation)
	}
	if e.sessions == nil {
		return "", fmt.Errorf("%w: phone checking is not configured", domain.ErrConflict)
	}

	cfg = e.mergeConfig(cfg)
	job := e.registry.Create(domain.KindPhone, len(numbers), cfg)

	jobCtx, cancel := context.WithCancel(context.Background())
	job.cancel = cancel

	e.metrics.IncJobStarted(job.Kind.String())
	go e.runPhoneJob(jobCtx, job, numbers)

	return job.ID, nil
}

// Subscribe registers a progress listener on a job. The returned cancel
// func detaches the listener; it is safe to call after the stream closed.
func (e *Engine) Subscribe(jobID string) (<-chan domain.Event, func(), error) {
	job, err := e.registry.Get(jobID)
	if err != nil {
		return nil, nil, err
	}

	ch, unsubscribe := e.broadcaster.Subscribe(job)
	return ch, unsubscribe, nil
}

// Status answers the synchronous point query.
func (e *Engine) Status(jobID string) (domain.StatusSnapshot, error) {
	job, err := e.registry.Get(jobID)
	if err != nil {
		return domain.StatusSnapshot{}, err
	}
	return job.Snapshot(), nil
}

// Chunks reports per-chunk progress for phone jobs.
func (e *Engine) Chunks(jobID string) ([]domain.Chunk, error) {
	job, err := e.registry.Get(jobID)
	if err != nil {
		return nil, err
	}
	return job.Chunks(), nil
}

// List returns snapshots of all retained jobs.
func (e *Engine) List() []domain.StatusSnapshot {
	return e.registry.List()
}

// Cancel marks a job cancelled. In-flight items run to completion or
// timeout; nothing further is dispatched and no further progress events
// are emitted. Returns false when the job already reached a terminal state.
func (e *Engine) Cancel(jobID string) (bool, error) {
	job, err := e.registry.Get(jobID)
	if err != nil {
		return false, err
	}

	job.mu.Lock()
	if job.status.IsTerminal() {
		job.mu.Unlock()
		return false, nil
	}
	job.status = domain.JobStatusCancelled
	job.processingTime = domain.FormatProcessingTime(e.now().Sub(job.startedAt))
	for _, chunk := range job.chunks {
		if !chunk.Status.IsTerminal() {
			chunk.Status = domain.ChunkStatusCancelled
		}
	}
	job.mu.Unlock()

	if job.cancel != nil {
		job.cancel()
	}
	e.broadcaster.Drop(job)
	e.metrics.IncJobFinished(job.Kind.String(), domain.JobStatusCancelled.String())
	e.logger.Info("job cancelled", zap.String("jobId", job.ID), zap.String("kind", job.Kind.String()))

	return true, nil
}

func (e *Engine) mergeConfig(cfg domain.JobConfig) domain.JobConfig {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = e.defaults.MaxConcurrent
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = e.defaults.ItemTimeout
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = e.defaults.RetryCount
	}
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = e.defaults.ChunkSize
	}
	if cfg.MaxSessions < 1 {
		cfg.MaxSessions = e.defaults.MaxSessions
	}
	if cfg.RejectedCap < 1 {
		cfg.RejectedCap = e.defaults.RejectedCap
	}
	if cfg.AcceptedCap < 0 {
		cfg.AcceptedCap = e.defaults.AcceptedCap
	}
	cfg.Normalize()
	return cfg
}

// recordResult is the single mutation point for a completed item: counters,
// bounded buffers, metrics, best-effort sinks, throttled broadcast.
func (e *Engine) recordResult(job *Job, result domain.VerificationResult) {
	job.record(result)

	outcome := "accepted"
	if !result.Valid {
		outcome = result.Category.String()
	}
	e.metrics.IncItemProcessed(job.Kind.String(), outcome)

	if e.store != nil || e.publisher != nil {
		sinkCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		if e.store != nil {
			if err := e.store.SaveResult(sinkCtx, job.ID, job.Kind, result); err != nil {
				e.logger.Warn("failed to persist result",
					zap.String("jobId", job.ID),
					zap.String("identifier", result.Identifier),
					zap.Error(err),
				)
			}
		}
		if e.publisher != nil {
			msg := queue.ResultMessageFrom(job.ID, job.Kind, result, e.now().UTC())
			if err := e.publisher.PublishResult(sinkCtx, queue.QueueName(job.Kind), msg); err != nil {
				e.logger.Warn("failed to publish result",
					zap.String("jobId", job.ID),
					zap.String("identifier", result.Identifier),
					zap.Error(err),
				)
			}
		}
	}

	e.broadcaster.MaybeProgress(job)
}

// finishJob moves a running job to its terminal state and emits the final
// broadcast. Cancelled jobs keep their status and get no terminal event.
func (e *Engine) finishJob(job *Job, failure error) {
	job.mu.Lock()
	if job.status == domain.JobStatusCancelled {
		job.mu.Unlock()
		e.logger.Info("job stopped after cancellation",
			zap.String("jobId", job.ID),
			zap.Int("processed", job.processed),
		)
		return
	}

	status := domain.JobStatusCompleted
	if failure != nil {
		status = domain.JobStatusError
	}
	job.status = status
	job.processingTime = domain.FormatProcessingTime(e.now().Sub(job.startedAt))
	job.mu.Unlock()

	if job.cancel != nil {
		job.cancel()
	}

	if failure != nil {
		e.broadcaster.Fail(job, "verification failed")
		e.logger.Error("job failed",
			zap.String("jobId", job.ID),
			zap.String("kind", job.Kind.String()),
			zap.Error(failure),
		)
	} else {
		e.broadcaster.Complete(job)
	}

	e.metrics.IncJobFinished(job.Kind.String(), status.String())
	e.publishCompletion(job, status)

	snapshot := job.Snapshot()
	e.logger.Info("job finished",
		zap.String("jobId", job.ID),
		zap.String("kind", job.Kind.String()),
		zap.String("status", status.String()),
		zap.Int("processed", snapshot.Processed),
		zap.Int("total", snapshot.Total),
		zap.String("processingTime", snapshot.ProcessingTime),
	)
}

func (e *Engine) publishCompletion(job *Job, status domain.JobStatus) {
	if e.publisher == nil {
		return
	}

	snapshot := job.Snapshot()
	msg := queue.CompletionMessage{
		JobID:          job.ID,
		Kind:           job.Kind,
		Status:         status,
		Total:          snapshot.Total,
		Processed:      snapshot.Processed,
		Accepted:       snapshot.Stats.Accepted,
		Rejected:       snapshot.Stats.Rejected,
		ProcessingTime: snapshot.ProcessingTime,
		CompletedAt:    e.now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := e.publisher.PublishCompletion(ctx, msg); err != nil {
		e.logger.Warn("failed to publish completion",
			zap.String("jobId", job.ID),
			zap.Error(err),
		)
	}
}

// waitForSlot paces lookup calls through the configured rate limiter.
func (e *Engine) waitForSlot(ctx context.Context, sessionName string) error {
	if e.limiter == nil {
		return nil
	}
	return e.limiter.Wait(ctx, sessionName)
}
