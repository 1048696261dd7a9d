package domain

import (
	"context"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	"github.com/customeros/sitestack/internal/enum"
	"github.com/customeros/sitestack/internal/models"
	"github.com/customeros/sitestack/internal/tracing"
	"github.com/customeros/sitestack/internal/utils"
)

// ReconcileCompanion verifies the other half of an apex/www pair once one
// half is verified, if the platform reports it configured. It never fails the
// caller: problems are written to the companion's operation log.
func (s *domainService) ReconcileCompanion(ctx context.Context, projectID, verifiedHostname string) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.ReconcileCompanion")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagProject(span, projectID)

	verifiedHostname = utils.NormalizeHostname(verifiedHostname)
	if verifiedHostname == "" {
		return
	}
	companionHostname := utils.CompanionHostname(verifiedHostname)
	span.LogKV("request.domain", verifiedHostname, "companion", companionHostname)

	lookupCtx, cancelLookup := s.persistContext(ctx)
	companion, err := s.postgres.DomainRepository.GetDomainByHostname(lookupCtx, projectID, companionHostname)
	cancelLookup()
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Warnf("Failed to load companion %s: %v", companionHostname, err)
		return
	}
	if companion == nil || companion.Verified {
		span.LogFields(tracingLog.Bool("result.skipped", true))
		return
	}
	tracing.TagEntity(span, companion.ID)

	platformCtx, cancelPlatform := s.platformContext(ctx)
	status, err := s.platform.GetDomainStatus(platformCtx, companionHostname)
	cancelPlatform()

	persistCtx, cancel := s.persistContext(ctx)
	defer cancel()

	if err != nil {
		tracing.TraceErr(span, err)
		s.appendLog(persistCtx, companion.ID, enum.OperationCompanionCheckFailed, enum.LogLevelWarn, models.JSONMap{
			"hostname":   companionHostname,
			"verifiedBy": verifiedHostname,
			"error":      err.Error(),
		})
		return
	}
	if status == nil || !status.Configured {
		span.LogFields(tracingLog.Bool("result.configured", false))
		return
	}

	sslState := EffectiveSSLState(true, status.SSL)
	if err := s.persistVerified(persistCtx, companion, sslState, true); err != nil {
		tracing.TraceErr(span, err)
		s.appendLog(persistCtx, companion.ID, enum.OperationCompanionCheckFailed, enum.LogLevelWarn, models.JSONMap{
			"hostname":   companionHostname,
			"verifiedBy": verifiedHostname,
			"error":      err.Error(),
		})
		return
	}

	s.appendLog(persistCtx, companion.ID, enum.OperationCompanionVerified, enum.LogLevelInfo, models.JSONMap{
		"hostname":   companionHostname,
		"verifiedBy": verifiedHostname,
		"sslState":   sslState.String(),
	})
	span.LogFields(tracingLog.Bool("result.verified", true))
}
