package domain

import (
	"context"
	"strings"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/sitestack/dto"
	"github.com/customeros/sitestack/internal/enum"
	er "github.com/customeros/sitestack/internal/errors"
	"github.com/customeros/sitestack/internal/models"
	"github.com/customeros/sitestack/internal/retry"
	"github.com/customeros/sitestack/internal/tracing"
	"github.com/customeros/sitestack/internal/utils"
)

const manualCheckMessage = "retries exhausted, needs manual DNS check"

// EffectiveSSLState decides which certificate state a check reports. A
// configured domain counts as verified, and any certificate state short of
// ERROR is presented as READY. For an unconfigured domain the platform's
// report is passed through.
func EffectiveSSLState(configured bool, reported *dto.SSLStatus) enum.SSLState {
	if !configured {
		if reported == nil {
			return enum.SSLStateUnset
		}
		return reported.State
	}
	if reported != nil && reported.State == enum.SSLStateError {
		return enum.SSLStateError
	}
	return enum.SSLStateReady
}

// Verify checks the domain against the hosting platform and records the
// outcome. Platform failures never surface as errors: they come back as an
// unverified result with retry advice. Only local problems (unknown domain,
// hostname mismatch, storage failure) are returned as errors. An empty
// hostname means the stored one.
func (s *domainService) Verify(ctx context.Context, domainID, hostname string, attempt int) (*dto.VerificationResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.Verify")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, domainID)
	span.LogKV("request.domain", hostname, "request.attempt", attempt)

	if strings.TrimSpace(domainID) == "" {
		err := errors.Wrap(er.ErrInvalidInput, "domain id is required")
		tracing.TraceErr(span, err)
		return nil, err
	}
	if attempt < 1 {
		attempt = 1
	}

	domain, err := s.GetDomain(ctx, domainID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	tracing.TagProject(span, domain.ProjectID)

	if requested := utils.NormalizeHostname(hostname); requested != "" && requested != domain.Domain {
		err := errors.Wrapf(er.ErrHostnameMismatch, "%s is not %s", requested, domain.Domain)
		tracing.TraceErr(span, err)
		return nil, err
	}
	hostname = domain.Domain

	requestCtx, cancelRequest := s.persistContext(ctx)
	s.appendLog(requestCtx, domain.ID, enum.OperationVerifyRequest, enum.LogLevelInfo, models.JSONMap{
		"attempt":  attempt,
		"hostname": hostname,
		"platform": s.platform.Name(),
	})
	cancelRequest()

	result := &dto.VerificationResult{
		DomainID: domain.ID,
		Hostname: hostname,
		Attempt:  attempt,
	}

	platformCtx, cancelPlatform := s.platformContext(ctx)
	status, platformErr := s.platform.GetDomainStatus(platformCtx, hostname)
	cancelPlatform()

	persistCtx, cancel := s.persistContext(ctx)
	defer cancel()

	switch {
	case platformErr != nil:
		result.Outcome = enum.OutcomeError
		result.Error = platformErr.Error()
	case status == nil:
		result.Outcome = enum.OutcomeError
		result.Error = "hosting platform returned no status"
	default:
		result.Configured = status.Configured
		result.Verification = status.Verification
		if status.Configured {
			result.Verified = true
			result.Outcome = enum.OutcomeVerified
			result.SSL = &dto.SSLStatus{State: EffectiveSSLState(true, status.SSL)}
		} else {
			result.Outcome = enum.OutcomePending
			if status.SSL != nil {
				result.SSL = &dto.SSLStatus{State: status.SSL.State}
			}
		}
	}

	if result.Verified {
		if err := s.persistVerified(persistCtx, domain, result.SSL.State, false); err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
	} else {
		s.applyUnverified(persistCtx, domain, result)
	}

	if !result.Verified && s.dns != nil {
		result.Diagnostics = s.dns.Observe(ctx, hostname)
	}

	s.logVerifyResult(persistCtx, domain, result)

	if result.Verified {
		s.ReconcileCompanion(ctx, domain.ProjectID, hostname)
	}

	span.LogFields(
		tracingLog.String("result.outcome", string(result.Outcome)),
		tracingLog.Bool("result.verified", result.Verified),
		tracingLog.Bool("result.shouldRetry", result.ShouldRetry),
	)
	return result, nil
}

// persistVerified applies the monotonic transition to verified, clears any
// pending retry and announces the transition.
func (s *domainService) persistVerified(ctx context.Context, domain *models.Domain, sslState enum.SSLState, companion bool) error {
	verifiedAt := utils.Now()
	transitioned, err := s.postgres.DomainRepository.MarkVerified(ctx, domain.ID, sslState, verifiedAt)
	if err != nil {
		return errors.Wrap(err, "Error marking domain verified")
	}

	if err := s.postgres.PendingRetryRepository.Clear(ctx, domain.ID); err != nil {
		s.log.Warnf("Failed to clear pending retry for %s: %v", domain.Domain, err)
	}

	if transitioned {
		s.log.Infof("Domain %s verified", domain.Domain)
		s.publishVerified(ctx, domain, sslState, verifiedAt, companion)
	}
	return nil
}

// applyUnverified handles a check that did not confirm the domain. A domain
// that storage already knows as verified stays verified in the result;
// otherwise retry advice is computed and recorded.
func (s *domainService) applyUnverified(ctx context.Context, domain *models.Domain, result *dto.VerificationResult) {
	current, err := s.postgres.DomainRepository.GetDomain(ctx, domain.ID)
	if err != nil {
		s.log.Warnf("Failed to reload domain %s: %v", domain.Domain, err)
		current = domain
	}
	if current != nil && current.Verified {
		result.Verified = true
		if current.SSLState != enum.SSLStateUnset {
			result.SSL = &dto.SSLStatus{State: current.SSLState}
		}
		return
	}

	if result.SSL != nil && result.SSL.State.IsValid() {
		if err := s.postgres.DomainRepository.SetPendingSSLState(ctx, domain.ID, result.SSL.State); err != nil {
			s.log.Warnf("Failed to store ssl state for %s: %v", domain.Domain, err)
		}
	}

	decision := s.retryPolicy.ComputeRetry(result.Attempt)
	result.ShouldRetry = decision.ShouldRetry
	result.NextRetryDelay = decision.Delay
	s.recordRetry(ctx, domain, result.Attempt, decision)
}

func (s *domainService) recordRetry(ctx context.Context, domain *models.Domain, attempt int, decision retry.Decision) {
	if !decision.ShouldRetry {
		if err := s.postgres.PendingRetryRepository.Clear(ctx, domain.ID); err != nil {
			s.log.Warnf("Failed to clear pending retry for %s: %v", domain.Domain, err)
		}
		return
	}

	err := s.postgres.PendingRetryRepository.Schedule(ctx, &models.PendingRetry{
		DomainID:  domain.ID,
		ProjectID: domain.ProjectID,
		Hostname:  domain.Domain,
		Attempt:   attempt + 1,
		DueAt:     utils.Now().Add(decision.Delay),
	})
	if err != nil {
		s.log.Warnf("Failed to schedule retry for %s: %v", domain.Domain, err)
	}
}

// logVerifyResult records the outcome next to the state the row had before
// this attempt.
func (s *domainService) logVerifyResult(ctx context.Context, previous *models.Domain, result *dto.VerificationResult) {
	details := models.JSONMap{
		"hostname":         result.Hostname,
		"previousVerified": previous.Verified,
		"previousSslState": previous.SSLState.String(),
		"attempt":          result.Attempt,
		"outcome":          string(result.Outcome),
		"configured":       result.Configured,
		"verified":         result.Verified,
		"retryScheduled":   result.ShouldRetry,
		"retryDelayMs":     result.NextRetryDelay.Milliseconds(),
	}
	if result.SSL != nil {
		details["sslState"] = result.SSL.State.String()
	}
	if result.Error != "" {
		details["error"] = result.Error
	}
	if !result.Verified && !result.ShouldRetry {
		details["message"] = manualCheckMessage
	}
	if result.Diagnostics != nil {
		details["diagnostics"] = result.Diagnostics
	}

	level := enum.LogLevelInfo
	if result.Outcome == enum.OutcomeError {
		level = enum.LogLevelWarn
	}
	s.appendLog(ctx, previous.ID, enum.OperationVerifyResult, level, details)
}
