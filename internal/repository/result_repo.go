package repository

import (
	"context"
	"time"

	"github.com/ebalkanli/verify-engine/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ListParams struct {
	Valid    *bool
	Category *domain.Category
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

type ResultRepository interface {
	SaveResult(ctx context.Context, jobID string, kind domain.JobKind, result domain.VerificationResult) error
	ListByJob(ctx context.Context, jobID string, params ListParams) ([]domain.VerificationResult, int64, error)
	DeleteByJob(ctx context.Context, jobID string) error
}

type GormResultRepo struct {
	db *gorm.DB
}

func NewGormResultRepo(db *gorm.DB) *GormResultRepo {
	return &GormResultRepo{db: db}
}

func (r *GormResultRepo) SaveResult(ctx context.Context, jobID string, kind domain.JobKind, result domain.VerificationResult) error {
	model := resultModelFromDomain(uuid.NewString(), jobID, kind, result)
	return r.db.WithContext(ctx).Create(model).Error
}

func (r *GormResultRepo) ListByJob(ctx context.Context, jobID string, params ListParams) ([]domain.VerificationResult, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&ResultModel{}).
		Where("job_id = ?", jobID)

	if params.Valid != nil {
		query = query.Where("valid = ?", *params.Valid)
	}
	if params.Category != nil {
		query = query.Where("category = ?", *params.Category)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []ResultModel
	err := query.
		Order("created_at ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	results := make([]domain.VerificationResult, 0, len(models))
	for i := range models {
		results = append(results, resultModelToDomain(&models[i]))
	}

	return results, total, nil
}

// DeleteByJob removes persisted results for a swept job so retention in the
// store tracks retention in the registry.
func (r *GormResultRepo) DeleteByJob(ctx context.Context, jobID string) error {
	return r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Delete(&ResultModel{}).Error
}
