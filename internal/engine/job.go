package engine

import (
	"context"
	"sync"
	"time"

	"github.com/ebalkanli/verify-engine/internal/domain"
)

// progressUpdateTarget is the approximate number of progress events pushed
// over a full run; the per-job item interval is total/progressUpdateTarget.
const (
	progressUpdateTarget = 200
	progressWallClock    = time.Second
	progressBatchSize    = 500
	finalRejectedSample  = 100
)

// Job is the mutable runtime state of one batch verification. All fields
// behind mu are touched by many workers concurrently; every mutation goes
// through a method that takes the lock.
type Job struct {
	ID     string
	Kind   domain.JobKind
	Config domain.JobConfig

	cancel context.CancelFunc

	mu             sync.Mutex
	status         domain.JobStatus
	total          int
	processed      int
	startedAt      time.Time
	processingTime string
	stats          domain.Stats
	accepted       []domain.VerificationResult
	rejected       []domain.VerificationResult
	chunks         []*domain.Chunk
	subscribers    map[chan domain.Event]struct{}

	// Broadcast throttle state.
	updateEvery    int
	sinceBroadcast int
	lastBroadcast  time.Time
}

// markProcessing flips a pending job to processing. Returns false if the
// job already left the pending state (e.g. cancelled before dispatch).
func (j *Job) markProcessing() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status != domain.JobStatusPending {
		return false
	}
	j.status = domain.JobStatusProcessing
	return true
}

// record folds one result into counters and bounded buffers.
func (j *Job) record(result domain.VerificationResult) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.processed >= j.total {
		// Workers never produce more results than identifiers; guard anyway
		// so the processed<=total invariant survives a misbehaving verifier.
		return
	}

	j.processed++
	j.stats.Record(result)
	j.sinceBroadcast++

	if result.Valid {
		if j.Config.AcceptedCap == 0 || len(j.accepted) < j.Config.AcceptedCap {
			j.accepted = append(j.accepted, result)
		}
		return
	}
	if len(j.rejected) < j.Config.RejectedCap {
		j.rejected = append(j.rejected, result)
	}
}

func (j *Job) running() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return !j.status.IsTerminal()
}

func (j *Job) currentStatus() domain.JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// progressLocked builds a throughput snapshot. Callers hold j.mu.
func (j *Job) progressLocked(now time.Time) domain.Progress {
	elapsed := now.Sub(j.startedAt).Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}
	speed := int(float64(j.processed)/elapsed + 0.5)

	remaining := 0.0
	if speed > 0 {
		remaining = float64(j.total-j.processed) / float64(speed)
	}

	return domain.Progress{
		JobID:         j.ID,
		Processed:     j.processed,
		Total:         j.total,
		Speed:         speed,
		RemainingTime: remaining,
	}
}

// summaryLocked builds the terminal event payload. Callers hold j.mu.
func (j *Job) summaryLocked() domain.Summary {
	accepted := make([]domain.VerificationResult, len(j.accepted))
	copy(accepted, j.accepted)

	sampleLen := len(j.rejected)
	if sampleLen > finalRejectedSample {
		sampleLen = finalRejectedSample
	}
	sample := make([]domain.VerificationResult, sampleLen)
	copy(sample, j.rejected[:sampleLen])

	return domain.Summary{
		JobID:          j.ID,
		Stats:          j.stats.Clone(),
		Accepted:       accepted,
		RejectedCount:  j.stats.Rejected,
		RejectedSample: sample,
		ProcessingTime: j.processingTime,
	}
}

// Snapshot returns the synchronous point-query view.
func (j *Job) Snapshot() domain.StatusSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	percent := 0
	if j.total > 0 {
		percent = int(float64(j.processed)/float64(j.total)*100 + 0.5)
	}

	return domain.StatusSnapshot{
		JobID:           j.ID,
		Kind:            j.Kind,
		Status:          j.status,
		Running:         !j.status.IsTerminal(),
		Processed:       j.processed,
		Total:           j.total,
		PercentComplete: percent,
		Stats:           j.stats.Clone(),
		StartedAt:       j.startedAt,
		ProcessingTime:  j.processingTime,
	}
}

// Chunks returns a copy of the chunk states for status reporting.
func (j *Job) Chunks() []domain.Chunk {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]domain.Chunk, len(j.chunks))
	for i, c := range j.chunks {
		out[i] = *c
	}
	return out
}
