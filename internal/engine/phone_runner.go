package engine

import (
	"context"
	"fmt"

	"github.com/ebalkanli/verify-engine/internal/classify"
	"github.com/ebalkanli/verify-engine/internal/domain"
	"github.com/ebalkanli/verify-engine/internal/observability"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// sessionForgetter is implemented by rate limiters that keep per-key state
// worth releasing once a session is done.
type sessionForgetter interface {
	Forget(key string)
}

// runPhoneJob splits the number list into fixed-size chunks and processes
// them in waves of at most MaxSessions concurrent sessions. A chunk that
// fails to establish its session is marked errored and skipped; its
// siblings keep running.
func (e *Engine) runPhoneJob(ctx context.Context, job *Job, numbers []string) {
	job.markProcessing()

	sizes := domain.ChunkSizes(len(numbers), job.Config.ChunkSize)
	job.mu.Lock()
	job.chunks = make([]*domain.Chunk, len(sizes))
	for i, size := range sizes {
		job.chunks[i] = &domain.Chunk{
			Number: i + 1,
			Size:   size,
			Status: domain.ChunkStatusPending,
		}
	}
	job.mu.Unlock()

	logger := observability.JobLogger(e.logger, job.ID, job.Kind.String())
	logger.Info("phone job started",
		zap.Int("total", job.total),
		zap.Int("chunks", len(sizes)),
		zap.Int("maxSessions", job.Config.MaxSessions),
	)

	offset := 0
	for wave := 0; wave < len(sizes); wave += job.Config.MaxSessions {
		if ctx.Err() != nil {
			break
		}

		end := wave + job.Config.MaxSessions
		if end > len(sizes) {
			end = len(sizes)
		}

		var g errgroup.Group
		for i := wave; i < end; i++ {
			chunkIndex := i
			chunkOffset := offset
			offset += sizes[i]

			g.Go(func() error {
				e.processChunk(ctx, job, chunkIndex, numbers[chunkOffset:chunkOffset+sizes[chunkIndex]])
				// Chunk failures are recorded on the chunk itself; one bad
				// session must not stop the wave.
				return nil
			})
		}
		_ = g.Wait()
	}

	e.finishJob(job, nil)
}

// processChunk runs one chunk sequentially under a dedicated session.
func (e *Engine) processChunk(ctx context.Context, job *Job, chunkIndex int, numbers []string) {
	chunk := job.chunks[chunkIndex]

	job.mu.Lock()
	if chunk.Status != domain.ChunkStatusPending {
		job.mu.Unlock()
		return
	}
	chunk.Status = domain.ChunkStatusProcessing
	job.mu.Unlock()

	sessionName := fmt.Sprintf("check_%s_chunk_%d_%s", job.ID, chunk.Number, uuid.NewString())

	session, err := e.sessions.NewSession(ctx, sessionName)
	if err != nil {
		e.setChunkStatus(job, chunk, domain.ChunkStatusError)
		e.logger.Error("failed to establish lookup session",
			zap.String("jobId", job.ID),
			zap.Int("chunk", chunk.Number),
			zap.Error(err),
		)
		return
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			e.logger.Warn("failed to close lookup session",
				zap.String("jobId", job.ID),
				zap.Int("chunk", chunk.Number),
				zap.Error(cerr),
			)
		}
		if f, ok := e.limiter.(sessionForgetter); ok {
			f.Forget(sessionName)
		}
	}()

	kind := job.Kind.String()
	for _, number := range numbers {
		if ctx.Err() != nil {
			e.setChunkStatus(job, chunk, domain.ChunkStatusCancelled)
			return
		}

		if outcome := classify.Phone(number); !outcome.Pass {
			e.recordChunkResult(job, chunk, domain.Rejected(number, outcome.Category, outcome.Reason))
			continue
		}

		if err := e.itemDelay(ctx, sessionName); err != nil {
			e.setChunkStatus(job, chunk, domain.ChunkStatusCancelled)
			return
		}

		itemCtx, cancel := context.WithTimeout(ctx, job.Config.ItemTimeout)
		e.metrics.IncVerifierInFlight(kind)
		start := e.now()
		result := e.phone.Verify(itemCtx, session, number, job.Config.RetryCount)
		e.metrics.ObserveVerifyDuration(kind, e.now().Sub(start))
		e.metrics.DecVerifierInFlight(kind)
		cancel()

		e.recordChunkResult(job, chunk, result)
	}

	e.setChunkStatus(job, chunk, domain.ChunkStatusCompleted)
}

func (e *Engine) recordChunkResult(job *Job, chunk *domain.Chunk, result domain.VerificationResult) {
	job.mu.Lock()
	chunk.Processed++
	job.mu.Unlock()

	e.recordResult(job, result)
}

func (e *Engine) setChunkStatus(job *Job, chunk *domain.Chunk, status domain.ChunkStatus) {
	job.mu.Lock()
	defer job.mu.Unlock()

	if chunk.Status.IsTerminal() {
		return
	}
	chunk.Status = status
	if status == domain.ChunkStatusCompleted {
		now := e.now()
		chunk.CompletedAt = &now
	}
}
