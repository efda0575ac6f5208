package engine

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ebalkanli/verify-engine/internal/domain"
	"go.uber.org/zap"
)

const (
	// DefaultRetention keeps finished jobs queryable for a day.
	DefaultRetention = 24 * time.Hour
	// DefaultSweepInterval is how often the retention sweep runs.
	DefaultSweepInterval = time.Hour

	idSuffixLen = 5
	idAlphabet  = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// Registry owns the mutable state of every in-flight and recently finished
// job. It is an explicit object with injected lifetime so tests can run
// independent registries side by side.
type Registry struct {
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
	randIntn  func(n int) int

	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewRegistry(retention time.Duration, logger *zap.Logger) *Registry {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Registry{
		retention: retention,
		logger:    logger,
		now:       time.Now,
		randIntn:  rand.Intn,
		jobs:      make(map[string]*Job),
	}
}

// Create allocates a job record with zeroed counters and registers it.
func (r *Registry) Create(kind domain.JobKind, total int, cfg domain.JobConfig) *Job {
	cfg.Normalize()
	now := r.now()

	updateEvery := total / progressUpdateTarget
	if updateEvery < 1 {
		updateEvery = 1
	}

	job := &Job{
		Kind:          kind,
		Config:        cfg,
		status:        domain.JobStatusPending,
		total:         total,
		startedAt:     now,
		stats:         domain.NewStats(),
		subscribers:   make(map[chan domain.Event]struct{}),
		updateEvery:   updateEvery,
		lastBroadcast: now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Timestamp prefix plus random suffix; collisions have negligible
	// probability and are not safety-critical, but retry within the lock
	// costs nothing.
	for {
		job.ID = r.newJobID(now)
		if _, exists := r.jobs[job.ID]; !exists {
			break
		}
	}
	r.jobs[job.ID] = job

	return job
}

// Get looks up a job by id.
func (r *Registry) Get(id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[strings.TrimSpace(id)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown job id %q", domain.ErrNotFound, id)
	}
	return job, nil
}

// List returns status snapshots of every retained job.
func (r *Registry) List() []domain.StatusSnapshot {
	r.mu.RLock()
	jobs := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, job)
	}
	r.mu.RUnlock()

	snapshots := make([]domain.StatusSnapshot, 0, len(jobs))
	for _, job := range jobs {
		snapshots = append(snapshots, job.Snapshot())
	}
	return snapshots
}

// Sweep deletes finished jobs older than the retention window and returns
// how many were evicted. Running jobs are never evicted regardless of age.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.retention)

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, job := range r.jobs {
		job.mu.Lock()
		stale := job.status.IsTerminal() && job.startedAt.Before(cutoff)
		job.mu.Unlock()

		if stale {
			delete(r.jobs, id)
			evicted++
		}
	}

	if evicted > 0 {
		r.logger.Info("swept stale jobs", zap.Int("evicted", evicted))
	}
	return evicted
}

// StartSweeper runs the retention sweep on a ticker until ctx ends.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep()
			}
		}
	}()
}

func (r *Registry) newJobID(now time.Time) string {
	var suffix strings.Builder
	for i := 0; i < idSuffixLen; i++ {
		suffix.WriteByte(idAlphabet[r.randIntn(len(idAlphabet))])
	}
	return strconv.FormatInt(now.UnixMilli(), 36) + suffix.String()
}
