package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobKind distinguishes the two verification flows.
type JobKind string

const (
	KindEmail JobKind = "EMAIL"
	KindPhone JobKind = "PHONE"
)

func (k JobKind) String() string { return string(k) }

func (k JobKind) IsValid() bool {
	switch k {
	case KindEmail, KindPhone:
		return true
	}
	return false
}

func ParseJobKindFromString(s string) (JobKind, error) {
	k := JobKind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: invalid job kind %q", ErrValidation, s)
	}
	return k, nil
}

// JobStatus represents the lifecycle state of a verification job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusError      JobStatus = "ERROR"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

func (s JobStatus) String() string { return string(s) }

func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusError, JobStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the job can no longer change state.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusError, JobStatusCancelled:
		return true
	}
	return false
}

// Default processing limits. Chunk size matches the lookup API batch ceiling.
const (
	DefaultMaxConcurrent = 50
	DefaultItemTimeout   = 10 * time.Second
	DefaultChunkSize     = 500
	DefaultMaxSessions   = 5
	DefaultRejectedCap   = 1000
)

// JobConfig carries the per-job processing limits.
type JobConfig struct {
	// MaxConcurrent caps simultaneous network verifications.
	MaxConcurrent int
	// ItemTimeout is the hard ceiling for a single network verification.
	ItemTimeout time.Duration
	// RetryCount is the number of additional attempts after a transient fault.
	RetryCount int
	// ChunkSize is the phone-check chunk size.
	ChunkSize int
	// MaxSessions caps simultaneously processed phone-check chunks.
	MaxSessions int
	// RejectedCap bounds the retained rejected-item sample. The rejected
	// counter itself is exact and may exceed the cap.
	RejectedCap int
	// AcceptedCap bounds the retained accepted list. Zero keeps every
	// accepted item, matching the reference behavior.
	AcceptedCap int
}

// Normalize fills unset fields with defaults.
func (c *JobConfig) Normalize() {
	if c.MaxConcurrent < 1 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.ItemTimeout <= 0 {
		c.ItemTimeout = DefaultItemTimeout
	}
	if c.RetryCount < 0 {
		c.RetryCount = 0
	}
	if c.ChunkSize < 1 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.MaxSessions < 1 {
		c.MaxSessions = DefaultMaxSessions
	}
	if c.RejectedCap < 1 {
		c.RejectedCap = DefaultRejectedCap
	}
	if c.AcceptedCap < 0 {
		c.AcceptedCap = 0
	}
}

// FormatProcessingTime renders a job duration the way progress consumers
// display it: "M:SS" above one minute, otherwise "N sec".
func FormatProcessingTime(elapsed time.Duration) string {
	seconds := elapsed.Seconds()
	if seconds > 60 {
		minutes := int(seconds) / 60
		remainder := int(seconds) % 60
		return fmt.Sprintf("%d:%02d", minutes, remainder)
	}
	return fmt.Sprintf("%d sec", int(seconds+0.5))
}

// StatusSnapshot is the synchronous point-query view of a job.
type StatusSnapshot struct {
	JobID           string    `json:"taskId"`
	Kind            JobKind   `json:"kind"`
	Status          JobStatus `json:"status"`
	Running         bool      `json:"running"`
	Processed       int       `json:"processed"`
	Total           int       `json:"total"`
	PercentComplete int       `json:"percentComplete"`
	Stats           Stats     `json:"stats"`
	StartedAt       time.Time `json:"startedAt"`
	ProcessingTime  string    `json:"processingTime,omitempty"`
}
