package engine

import (
	"time"

	"github.com/ebalkanli/verify-engine/internal/domain"
	"go.uber.org/zap"
)

// subscriberBuffer absorbs bursts so a briefly slow consumer does not lose
// events; a consumer that stays behind misses intermediate snapshots, which
// is fine because every snapshot supersedes the last.
const subscriberBuffer = 16

// Broadcaster pushes progress snapshots and the terminal summary to a
// job's subscribers. Channels are only ever closed while holding the job
// lock, so a channel found in the subscriber set is always open.
type Broadcaster struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		logger: logger,
		now:    time.Now,
	}
}

// Subscribe registers a push channel on the job and immediately delivers
// the current progress snapshot, so a subscriber joining mid-run starts
// from the latest known state. Subscribing to a finished job delivers the
// snapshot plus the terminal event and closes the channel: re-subscription
// is idempotent. The returned unsubscribe func is safe to call after the
// job finished.
func (b *Broadcaster) Subscribe(job *Job) (<-chan domain.Event, func()) {
	job.mu.Lock()
	defer job.mu.Unlock()

	ch := make(chan domain.Event, subscriberBuffer)
	progress := job.progressLocked(b.now())
	ch <- domain.Event{Type: domain.EventProgress, Progress: &progress}

	if job.status.IsTerminal() {
		if job.status == domain.JobStatusCompleted {
			summary := job.summaryLocked()
			ch <- domain.Event{Type: domain.EventComplete, Summary: &summary}
		}
		close(ch)
		return ch, func() {}
	}

	job.subscribers[ch] = struct{}{}

	unsubscribe := func() {
		job.mu.Lock()
		defer job.mu.Unlock()
		if _, ok := job.subscribers[ch]; ok {
			delete(job.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// MaybeProgress emits a progress event when any throttle condition is met:
// the per-job item interval elapsed, the wall-clock interval elapsed, or a
// batch of newly processed items accumulated.
func (b *Broadcaster) MaybeProgress(job *Job) {
	job.mu.Lock()
	defer job.mu.Unlock()

	if job.status.IsTerminal() || len(job.subscribers) == 0 {
		return
	}

	now := b.now()
	due := job.sinceBroadcast >= progressBatchSize ||
		job.processed%job.updateEvery == 0 ||
		now.Sub(job.lastBroadcast) > progressWallClock

	if !due {
		return
	}

	job.sinceBroadcast = 0
	job.lastBroadcast = now

	progress := job.progressLocked(now)
	b.fanOutLocked(job, domain.Event{Type: domain.EventProgress, Progress: &progress})
}

// Complete broadcasts the terminal summary and closes every subscriber.
func (b *Broadcaster) Complete(job *Job) {
	job.mu.Lock()
	defer job.mu.Unlock()

	progress := job.progressLocked(b.now())
	summary := job.summaryLocked()
	b.fanOutLocked(job, domain.Event{Type: domain.EventProgress, Progress: &progress})
	b.fanOutLocked(job, domain.Event{Type: domain.EventComplete, Summary: &summary})
	b.closeAllLocked(job)
}

// Fail broadcasts a terminal error event and closes every subscriber.
func (b *Broadcaster) Fail(job *Job, message string) {
	job.mu.Lock()
	defer job.mu.Unlock()

	b.fanOutLocked(job, domain.Event{Type: domain.EventError, Message: message})
	b.closeAllLocked(job)
}

// Drop closes every subscriber without a terminal event (cancelled jobs).
func (b *Broadcaster) Drop(job *Job) {
	job.mu.Lock()
	defer job.mu.Unlock()
	b.closeAllLocked(job)
}

func (b *Broadcaster) fanOutLocked(job *Job, event domain.Event) {
	for ch := range job.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber stopped draining; drop it rather than block the
			// worker path.
			delete(job.subscribers, ch)
			close(ch)
			b.logger.Debug("dropped slow subscriber", zap.String("jobId", job.ID))
		}
	}
}

func (b *Broadcaster) closeAllLocked(job *Job) {
	for ch := range job.subscribers {
		delete(job.subscribers, ch)
		close(ch)
	}
}
