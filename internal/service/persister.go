// Package service holds the background services that bridge the broker
// and the store: result persistence runs out-of-band so verification
// throughput never waits on the database.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ebalkanli/verify-engine/internal/domain"
	"github.com/ebalkanli/verify-engine/internal/observability"
	"github.com/ebalkanli/verify-engine/internal/queue"
	"github.com/ebalkanli/verify-engine/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minPersisterConcurrency = 1

// PersisterService consumes result messages from the broker and writes
// them to the result store. A failing write nacks the message back to the
// queue; poison messages end up on the per-kind dead-letter queue.
type PersisterService struct {
	results     repository.ResultRepository
	consumer    queue.Consumer
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	now         func() time.Time
}

func NewPersisterService(
	results repository.ResultRepository,
	consumer queue.Consumer,
	concurrency int,
	logger *zap.Logger,
) (*PersisterService, error) {
	if results == nil {
		return nil, fmt.Errorf("result repository is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if concurrency < minPersisterConcurrency {
		concurrency = minPersisterConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PersisterService{
		results:     results,
		consumer:    consumer,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
	}, nil
}

func (s *PersisterService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start consumes the per-kind result queues until context cancellation.
func (s *PersisterService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	queueNames := queue.ResultQueueNames()
	if len(queueNames) == 0 {
		return fmt.Errorf("no result queues configured")
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		queueName := queueNames[i%len(queueNames)]
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("persister worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)

			err := s.consumer.Consume(groupCtx, queueName, s.persistMessage)
			if err != nil {
				s.logger.Error("persister worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("persister worker stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)
			return nil
		})
	}

	return g.Wait()
}

func (s *PersisterService) persistMessage(ctx context.Context, msg queue.ResultMessage) error {
	result := domain.VerificationResult{
		Identifier:   msg.Identifier,
		Valid:        msg.Valid,
		Category:     msg.Category,
		Reason:       msg.Reason,
		HasMXRecords: msg.HasMXRecords,
		SMTPVerified: msg.SMTPVerified,
		AccountID:    msg.AccountID,
		Username:     msg.Username,
		DisplayName:  msg.DisplayName,
	}

	if err := s.results.SaveResult(ctx, msg.JobID, msg.Kind, result); err != nil {
		s.logger.Error("failed to persist result message",
			zap.String("jobId", msg.JobID),
			zap.String("identifier", msg.Identifier),
			zap.Error(err),
		)
		return fmt.Errorf("failed to save result: %w", err)
	}

	s.metrics.IncResultPersisted(msg.Kind.String())
	return nil
}
