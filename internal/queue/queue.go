package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/ebalkanli/verify-engine/internal/domain"
)

// Publisher publishes verification outcomes to a broker for downstream
// consumers (persistence, exports).
type Publisher interface {
	PublishResult(ctx context.Context, queue string, msg ResultMessage) error
	PublishCompletion(ctx context.Context, msg CompletionMessage) error
	Close() error
}

// MessageHandler handles a consumed result message.
type MessageHandler func(ctx context.Context, msg ResultMessage) error

// Consumer consumes result messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

var supportedKinds = []domain.JobKind{
	domain.KindEmail,
	domain.KindPhone,
}

// CompletionQueue carries one message per finished job.
const CompletionQueue = "jobs.completed"

// QueueName returns the per-kind result queue name, e.g. results.email.
func QueueName(kind domain.JobKind) string {
	return fmt.Sprintf("results.%s", strings.ToLower(kind.String()))
}

// DLQName returns the dead-letter queue name for a kind, e.g. dlq.results.email.
func DLQName(kind domain.JobKind) string {
	return fmt.Sprintf("dlq.%s", QueueName(kind))
}

// ResultQueueNames returns all per-kind result queues (2 total).
func ResultQueueNames() []string {
	queues := make([]string, 0, len(supportedKinds))
	for _, kind := range supportedKinds {
		queues = append(queues, QueueName(kind))
	}
	return queues
}

// DLQNames returns all dead-letter queues (2 total).
func DLQNames() []string {
	queues := make([]string, 0, len(supportedKinds))
	for _, kind := range supportedKinds {
		queues = append(queues, DLQName(kind))
	}
	return queues
}
