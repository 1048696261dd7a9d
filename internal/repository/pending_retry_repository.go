package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/sitestack/internal/models"
	"github.com/customeros/sitestack/internal/tracing"
	"github.com/customeros/sitestack/internal/utils"
)

type PendingRetryRepository interface {
	Schedule(ctx context.Context, retry *models.PendingRetry) error
	Clear(ctx context.Context, domainID string) error
	GetDue(ctx context.Context, now time.Time, limit int) ([]models.PendingRetry, error)
}

type pendingRetryRepository struct {
	db *gorm.DB
}

func NewPendingRetryRepository(db *gorm.DB) PendingRetryRepository {
	return &pendingRetryRepository{db: db}
}

// Schedule upserts the single pending retry row of a domain.
func (r *pendingRetryRepository) Schedule(ctx context.Context, retry *models.PendingRetry) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "PendingRetryRepository.Schedule")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, retry.DomainID)
	span.LogKV("attempt", retry.Attempt, "dueAt", retry.DueAt)

	now := utils.Now()
	retry.CreatedAt = now
	retry.UpdatedAt = now

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "domain_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"attempt", "due_at", "hostname", "updated_at"}),
		}).
		Create(retry).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}

	return nil
}

func (r *pendingRetryRepository) Clear(ctx context.Context, domainID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "PendingRetryRepository.Clear")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, domainID)

	err := r.db.WithContext(ctx).
		Where("domain_id = ?", domainID).
		Delete(&models.PendingRetry{}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}

	return nil
}

func (r *pendingRetryRepository) GetDue(ctx context.Context, now time.Time, limit int) ([]models.PendingRetry, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "PendingRetryRepository.GetDue")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	query := r.db.WithContext(ctx).
		Where("due_at <= ?", now).
		Order("due_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var retries []models.PendingRetry
	if err := query.Find(&retries).Error; err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	span.LogKV("result.count", len(retries))
	return retries, nil
}
