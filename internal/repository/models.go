package repository

import (
	"time"

	"github.com/ebalkanli/verify-engine/internal/domain"
)

// ResultModel is the persistence model for the verification_results table.
type ResultModel struct {
	ID           string          `gorm:"type:uuid;primaryKey"`
	JobID        string          `gorm:"type:varchar(32);not null;index"`
	Kind         domain.JobKind  `gorm:"type:varchar(10);not null"`
	Identifier   string          `gorm:"type:varchar(320);not null"`
	Valid        bool            `gorm:"not null"`
	Category     domain.Category `gorm:"type:varchar(24)"`
	Reason       *string         `gorm:"type:text"`
	HasMXRecords bool            `gorm:"not null;default:false"`
	SMTPVerified bool            `gorm:"not null;default:false"`
	AccountID    *string         `gorm:"type:varchar(64)"`
	Username     *string         `gorm:"type:varchar(255)"`
	DisplayName  *string         `gorm:"type:varchar(255)"`
	CreatedAt    time.Time
}

func (ResultModel) TableName() string {
	return "verification_results"
}

func resultModelFromDomain(id, jobID string, kind domain.JobKind, r domain.VerificationResult) *ResultModel {
	model := &ResultModel{
		ID:           id,
		JobID:        jobID,
		Kind:         kind,
		Identifier:   r.Identifier,
		Valid:        r.Valid,
		Category:     r.Category,
		HasMXRecords: r.HasMXRecords,
		SMTPVerified: r.SMTPVerified,
	}
	if r.Reason != "" {
		model.Reason = &r.Reason
	}
	if r.AccountID != "" {
		model.AccountID = &r.AccountID
	}
	if r.Username != "" {
		model.Username = &r.Username
	}
	if r.DisplayName != "" {
		model.DisplayName = &r.DisplayName
	}
	return model
}

func resultModelToDomain(m *ResultModel) domain.VerificationResult {
	result := domain.VerificationResult{
		Identifier:   m.Identifier,
		Valid:        m.Valid,
		Category:     m.Category,
		HasMXRecords: m.HasMXRecords,
		SMTPVerified: m.SMTPVerified,
	}
	if m.Reason != nil {
		result.Reason = *m.Reason
	}
	if m.AccountID != nil {
		result.AccountID = *m.AccountID
	}
	if m.Username != nil {
		result.Username = *m.Username
	}
	if m.DisplayName != nil {
		result.DisplayName = *m.DisplayName
	}
	return result
}
