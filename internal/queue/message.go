package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/ebalkanli/verify-engine/internal/domain"
)

// ResultMessage is the broker payload for one verified identifier.
type ResultMessage struct {
	JobID      string          `json:"jobId"`
	Kind       domain.JobKind  `json:"kind"`
	Identifier string          `json:"identifier"`
	Valid      bool            `json:"valid"`
	Category   domain.Category `json:"category,omitempty"`
	Reason     string          `json:"reason,omitempty"`

	HasMXRecords bool `json:"hasMxRecords,omitempty"`
	SMTPVerified bool `json:"smtpVerified,omitempty"`

	AccountID   string `json:"accountId,omitempty"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"displayName,omitempty"`

	ProcessedAt time.Time `json:"processedAt"`
}

func (m ResultMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return fmt.Errorf("jobId is required")
	}
	if !m.Kind.IsValid() {
		return fmt.Errorf("invalid kind %q", m.Kind)
	}
	if strings.TrimSpace(m.Identifier) == "" {
		return fmt.Errorf("identifier is required")
	}
	if !m.Valid && !m.Category.IsValid() {
		return fmt.Errorf("invalid category %q for rejected identifier", m.Category)
	}
	return nil
}

// ResultMessageFrom builds the broker payload for a result.
func ResultMessageFrom(jobID string, kind domain.JobKind, r domain.VerificationResult, processedAt time.Time) ResultMessage {
	return ResultMessage{
		JobID:        jobID,
		Kind:         kind,
		Identifier:   r.Identifier,
		Valid:        r.Valid,
		Category:     r.Category,
		Reason:       r.Reason,
		HasMXRecords: r.HasMXRecords,
		SMTPVerified: r.SMTPVerified,
		AccountID:    r.AccountID,
		Username:     r.Username,
		DisplayName:  r.DisplayName,
		ProcessedAt:  processedAt,
	}
}

// CompletionMessage announces a job reaching a terminal status.
type CompletionMessage struct {
	JobID          string           `json:"jobId"`
	Kind           domain.JobKind   `json:"kind"`
	Status         domain.JobStatus `json:"status"`
	Total          int              `json:"total"`
	Processed      int              `json:"processed"`
	Accepted       int              `json:"accepted"`
	Rejected       int              `json:"rejected"`
	ProcessingTime string           `json:"processingTime,omitempty"`
	CompletedAt    time.Time        `json:"completedAt"`
}

func (m CompletionMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return fmt.Errorf("jobId is required")
	}
	if !m.Kind.IsValid() {
		return fmt.Errorf("invalid kind %q", m.Kind)
	}
	if !m.Status.IsTerminal() {
		return fmt.Errorf("status %q is not terminal", m.Status)
	}
	return nil
}
