package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/customeros/sitestack/internal/enum"
	er "github.com/customeros/sitestack/internal/errors"
	"github.com/customeros/sitestack/internal/models"
	"github.com/customeros/sitestack/internal/tracing"
	"github.com/customeros/sitestack/internal/utils"
)

type DomainRepository interface {
	CreateDomain(ctx context.Context, domain *models.Domain) error
	GetDomain(ctx context.Context, id string) (*models.Domain, error)
	GetDomainByHostname(ctx context.Context, projectID, hostname string) (*models.Domain, error)
	GetProjectDomains(ctx context.Context, projectID string) ([]models.Domain, error)
	MarkVerified(ctx context.Context, id string, sslState enum.SSLState, verifiedAt time.Time) (bool, error)
	SetPendingSSLState(ctx context.Context, id string, sslState enum.SSLState) error
	SetIncludeWWW(ctx context.Context, id string, includeWWW bool) error
	DeleteDomain(ctx context.Context, id string) (bool, error)
}

type domainRepository struct {
	db *gorm.DB
}

func NewDomainRepository(db *gorm.DB) DomainRepository {
	return &domainRepository{
		db: db,
	}
}

func (r *domainRepository) CreateDomain(ctx context.Context, domain *models.Domain) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainRepository.CreateDomain")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("projectId", domain.ProjectID, "domain", domain.Domain)

	now := utils.Now()
	domain.CreatedAt = now
	domain.UpdatedAt = now
	if !domain.Verified {
		domain.VerifiedAt = nil
	}

	err := r.db.WithContext(ctx).Create(domain).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errors.Wrap(er.ErrDomainAlreadyExists, domain.Domain)
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	tracing.TagEntity(span, domain.ID)

	return nil
}

func (r *domainRepository) GetDomain(ctx context.Context, id string) (*models.Domain, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetDomain")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	var domain models.Domain
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&domain).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.LogFields(tracingLog.Bool("result.found", false))
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return &domain, nil
}

func (r *domainRepository) GetDomainByHostname(ctx context.Context, projectID, hostname string) (*models.Domain, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetDomainByHostname")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("projectId", projectID, "domain", hostname)

	var domain models.Domain
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND domain = ?", projectID, hostname).
		First(&domain).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.LogFields(tracingLog.Bool("result.found", false))
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return &domain, nil
}

func (r *domainRepository) GetProjectDomains(ctx context.Context, projectID string) ([]models.Domain, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetProjectDomains")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("projectId", projectID)

	var domains []models.Domain
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&domains).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return domains, nil
}

// MarkVerified sets the domain verified. verified_at is written only when the
// row flips from unverified, in which case true is returned; an already
// verified row only gets its ssl_state refreshed.
func (r *domainRepository) MarkVerified(ctx context.Context, id string, sslState enum.SSLState, verifiedAt time.Time) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainRepository.MarkVerified")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)
	span.LogKV("sslState", sslState.String())

	result := r.db.WithContext(ctx).
		Model(&models.Domain{}).
		Where("id = ? AND verified = ?", id, false).
		Updates(map[string]interface{}{
			"verified":    true,
			"verified_at": verifiedAt,
			"ssl_state":   sslState,
			"updated_at":  utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		span.LogFields(tracingLog.Bool("result.transitioned", true))
		return true, nil
	}

	err := r.db.WithContext(ctx).
		Model(&models.Domain{}).
		Where("id = ? AND verified = ? AND ssl_state <> ?", id, true, sslState).
		Updates(map[string]interface{}{
			"ssl_state":  sslState,
			"updated_at": utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return false, err
	}

	span.LogFields(tracingLog.Bool("result.transitioned", false))
	return false, nil
}

// SetPendingSSLState records the certificate state of a domain that is not
// verified yet. Verified rows are left untouched.
func (r *domainRepository) SetPendingSSLState(ctx context.Context, id string, sslState enum.SSLState) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainRepository.SetPendingSSLState")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)
	span.LogKV("sslState", sslState.String())

	err := r.db.WithContext(ctx).
		Model(&models.Domain{}).
		Where("id = ? AND verified = ?", id, false).
		Updates(map[string]interface{}{
			"ssl_state":  sslState,
			"updated_at": utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}

	return nil
}

func (r *domainRepository) SetIncludeWWW(ctx context.Context, id string, includeWWW bool) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainRepository.SetIncludeWWW")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)
	span.LogKV("includeWww", includeWWW)

	err := r.db.WithContext(ctx).
		Model(&models.Domain{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"include_www": includeWWW,
			"updated_at":  utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}

	return nil
}

func (r *domainRepository) DeleteDomain(ctx context.Context, id string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainRepository.DeleteDomain")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	result := r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.Domain{})
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return false, result.Error
	}

	span.LogFields(tracingLog.Int64("result.deleted", result.RowsAffected))
	return result.RowsAffected > 0, nil
}
