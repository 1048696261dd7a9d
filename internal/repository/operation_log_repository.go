package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/customeros/sitestack/internal/models"
	"github.com/customeros/sitestack/internal/tracing"
)

const defaultOperationLogLimit = 100

type OperationLogRepository interface {
	Append(ctx context.Context, entry *models.OperationLog) error
	GetDomainLogs(ctx context.Context, domainID string, limit int) ([]models.OperationLog, error)
}

type operationLogRepository struct {
	db *gorm.DB
}

func NewOperationLogRepository(db *gorm.DB) OperationLogRepository {
	return &operationLogRepository{db: db}
}

func (r *operationLogRepository) Append(ctx context.Context, entry *models.OperationLog) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "OperationLogRepository.Append")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, entry.DomainID)
	span.LogKV("event", entry.Event.String(), "level", string(entry.Level))

	// entry ids are generated client side, so a retried append is a no-op
	err := r.db.WithContext(ctx).
		Where(models.OperationLog{ID: entry.ID}).
		FirstOrCreate(entry).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}

	return nil
}

// GetDomainLogs returns the newest entries first.
func (r *operationLogRepository) GetDomainLogs(ctx context.Context, domainID string, limit int) ([]models.OperationLog, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "OperationLogRepository.GetDomainLogs")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, domainID)

	if limit <= 0 {
		limit = defaultOperationLogLimit
	}

	var entries []models.OperationLog
	err := r.db.WithContext(ctx).
		Where("domain_id = ?", domainID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return entries, nil
}
