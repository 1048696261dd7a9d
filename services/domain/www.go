package domain

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/sitestack/internal/enum"
	er "github.com/customeros/sitestack/internal/errors"
	"github.com/customeros/sitestack/internal/models"
	"github.com/customeros/sitestack/internal/tracing"
	"github.com/customeros/sitestack/internal/utils"
)

// SetIncludeWWW adds or removes the www. companion of an apex domain. On
// enable, a failed platform provisioning removes the companion row created
// for it. The apex's include_www flag is persisted in every case, after
// which a companion failure is returned.
func (s *domainService) SetIncludeWWW(ctx context.Context, domainID, hostname, projectID string, includeWWW bool) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.SetIncludeWWW")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, domainID)
	span.LogKV("request.domain", hostname, "request.includeWww", includeWWW)

	apex, err := s.GetDomain(ctx, domainID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if requested := utils.NormalizeHostname(hostname); requested != "" && requested != apex.Domain {
		err := errors.Wrapf(er.ErrHostnameMismatch, "%s is not %s", requested, apex.Domain)
		tracing.TraceErr(span, err)
		return err
	}
	if projectID != "" && projectID != apex.ProjectID {
		err := errors.Wrapf(er.ErrInvalidInput, "domain %s does not belong to project %s", apex.ID, projectID)
		tracing.TraceErr(span, err)
		return err
	}
	if !utils.IsApexDomain(apex.Domain) {
		err := errors.Wrap(er.ErrNotApexDomain, apex.Domain)
		tracing.TraceErr(span, err)
		return err
	}
	tracing.TagProject(span, apex.ProjectID)

	wwwHostname := utils.WWWHostname(apex.Domain)
	var companionErr error
	if includeWWW {
		companionErr = s.enableWWW(ctx, apex, wwwHostname)
	} else {
		companionErr = s.disableWWW(ctx, apex, wwwHostname)
	}

	// include_www records the requested state even when the companion side failed
	persistCtx, cancel := s.persistContext(ctx)
	defer cancel()

	if err := s.postgres.DomainRepository.SetIncludeWWW(persistCtx, apex.ID, includeWWW); err != nil {
		tracing.TraceErr(span, err)
		if companionErr != nil {
			return errors.Wrapf(companionErr, "include_www not saved: %v", err)
		}
		return errors.Wrap(err, "Error saving include_www")
	}

	if companionErr != nil {
		tracing.TraceErr(span, companionErr)
		return companionErr
	}
	return nil
}

func (s *domainService) enableWWW(ctx context.Context, apex *models.Domain, wwwHostname string) error {
	persistCtx, cancel := s.persistContext(ctx)
	defer cancel()

	www, err := s.postgres.DomainRepository.GetDomainByHostname(ctx, apex.ProjectID, wwwHostname)
	if err != nil {
		return errors.Wrap(err, "Error loading www domain")
	}

	created := false
	if www == nil {
		www = &models.Domain{
			ProjectID: apex.ProjectID,
			Domain:    wwwHostname,
		}
		if err := s.postgres.DomainRepository.CreateDomain(ctx, www); err != nil {
			if !errors.Is(err, er.ErrDomainAlreadyExists) {
				return err
			}
			// created concurrently
			www, err = s.postgres.DomainRepository.GetDomainByHostname(ctx, apex.ProjectID, wwwHostname)
			if err != nil || www == nil {
				return errors.Wrap(er.ErrDomainAlreadyExists, wwwHostname)
			}
		} else {
			created = true
			s.appendLog(persistCtx, www.ID, enum.OperationDomainCreated, enum.LogLevelInfo, models.JSONMap{
				"projectId": apex.ProjectID,
				"hostname":  wwwHostname,
				"apex":      apex.Domain,
			})
		}
	}

	platformErr := s.addToPlatform(ctx, www.ID, wwwHostname)
	if platformErr == nil {
		s.appendLog(persistCtx, apex.ID, enum.OperationWWWEnabled, enum.LogLevelInfo, models.JSONMap{
			"hostname":    wwwHostname,
			"wwwDomainId": www.ID,
		})
		return nil
	}

	if !created {
		return errors.Wrapf(er.ErrCompanionProvisionFailed, "%s: %v", wwwHostname, platformErr)
	}

	if _, err := s.postgres.DomainRepository.DeleteDomain(persistCtx, www.ID); err != nil {
		s.log.Errorf("Failed to roll back %s after provisioning failure: %v", wwwHostname, err)
		s.appendLog(persistCtx, apex.ID, enum.OperationWWWRollback, enum.LogLevelError, models.JSONMap{
			"hostname":      wwwHostname,
			"wwwDomainId":   www.ID,
			"platformError": platformErr.Error(),
			"error":         err.Error(),
		})
		return errors.Wrapf(er.ErrCompensationFailed, "%s: %v (provisioning failed: %v)", wwwHostname, err, platformErr)
	}

	s.appendLog(persistCtx, apex.ID, enum.OperationWWWRollback, enum.LogLevelWarn, models.JSONMap{
		"hostname":      wwwHostname,
		"wwwDomainId":   www.ID,
		"platformError": platformErr.Error(),
	})
	return errors.Wrapf(er.ErrCompanionProvisionFailed, "%s: %v", wwwHostname, platformErr)
}

// disableWWW deprovisions the companion on a best-effort basis and always
// deletes its row.
func (s *domainService) disableWWW(ctx context.Context, apex *models.Domain, wwwHostname string) error {
	persistCtx, cancel := s.persistContext(ctx)
	defer cancel()

	www, err := s.postgres.DomainRepository.GetDomainByHostname(ctx, apex.ProjectID, wwwHostname)
	if err != nil {
		return errors.Wrap(err, "Error loading www domain")
	}

	logDomainID := apex.ID
	if www != nil {
		logDomainID = www.ID
	}

	if err := s.platform.RemoveDomain(ctx, wwwHostname); err != nil {
		s.log.Warnf("Failed to remove %s from hosting platform: %v", wwwHostname, err)
		s.appendLog(persistCtx, logDomainID, enum.OperationPlatformRemove, enum.LogLevelWarn, models.JSONMap{
			"hostname": wwwHostname,
			"platform": s.platform.Name(),
			"error":    err.Error(),
		})
	} else {
		s.appendLog(persistCtx, logDomainID, enum.OperationPlatformRemove, enum.LogLevelInfo, models.JSONMap{
			"hostname": wwwHostname,
			"platform": s.platform.Name(),
		})
	}

	if www != nil {
		if err := s.deleteDomainRow(persistCtx, www); err != nil {
			return errors.Wrap(err, "Error deleting www domain")
		}
	}

	s.appendLog(persistCtx, apex.ID, enum.OperationWWWDisabled, enum.LogLevelInfo, models.JSONMap{
		"hostname": wwwHostname,
	})
	return nil
}
