package domain

import (
	"context"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/sitestack/dto"
	"github.com/customeros/sitestack/interfaces"
	"github.com/customeros/sitestack/internal/background"
	"github.com/customeros/sitestack/internal/enum"
	er "github.com/customeros/sitestack/internal/errors"
	"github.com/customeros/sitestack/internal/logger"
	"github.com/customeros/sitestack/internal/models"
	"github.com/customeros/sitestack/internal/repository"
	"github.com/customeros/sitestack/internal/retry"
	"github.com/customeros/sitestack/internal/tracing"
	"github.com/customeros/sitestack/internal/utils"
)

const (
	defaultPersistTimeout  = 10 * time.Second
	defaultPlatformTimeout = 12 * time.Second
	deprovisionTimeout     = 30 * time.Second
	publishTimeout         = 20 * time.Second
)

type domainService struct {
	postgres        *repository.Repositories
	platform        interfaces.HostingPlatform
	dns             interfaces.DNSChecker
	publisher       interfaces.DomainEventPublisher
	retryPolicy     retry.Policy
	log             logger.Logger
	background      *background.Runner
	persistTimeout  time.Duration
	platformTimeout time.Duration
}

// NewDomainService wires the verification engine. dns may be nil, in which
// case results carry no DNS diagnostics. persistTimeout bounds storage writes
// and platformTimeout bounds status checks; both run detached from the caller.
func NewDomainService(postgres *repository.Repositories, platform interfaces.HostingPlatform, dns interfaces.DNSChecker, publisher interfaces.DomainEventPublisher, retryPolicy retry.Policy, log logger.Logger, runner *background.Runner, persistTimeout, platformTimeout time.Duration) interfaces.DomainService {
	if persistTimeout <= 0 {
		persistTimeout = defaultPersistTimeout
	}
	if platformTimeout <= 0 {
		platformTimeout = defaultPlatformTimeout
	}
	if runner == nil {
		runner = background.NewRunner(log)
	}
	return &domainService{
		postgres:        postgres,
		platform:        platform,
		dns:             dns,
		publisher:       publisher,
		retryPolicy:     retryPolicy,
		log:             log,
		background:      runner,
		persistTimeout:  persistTimeout,
		platformTimeout: platformTimeout,
	}
}

func (s *domainService) CreateDomain(ctx context.Context, projectID, hostname string, includeWWW bool) (*models.Domain, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.CreateDomain")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagProject(span, projectID)
	span.LogKV("request.domain", hostname, "request.includeWww", includeWWW)

	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		err := errors.Wrap(er.ErrInvalidInput, "projectId is required")
		tracing.TraceErr(span, err)
		return nil, err
	}

	host := utils.NormalizeHostname(hostname)
	if err := utils.ValidateHostname(host); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if includeWWW && !utils.IsApexDomain(host) {
		err := errors.Wrap(er.ErrNotApexDomain, host)
		tracing.TraceErr(span, err)
		return nil, err
	}

	existing, err := s.postgres.DomainRepository.GetDomainByHostname(ctx, projectID, host)
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "Error checking existing domain"))
		return nil, err
	}
	if existing != nil {
		return nil, errors.Wrap(er.ErrDomainAlreadyExists, host)
	}

	domain := &models.Domain{
		ProjectID: projectID,
		Domain:    host,
	}
	if err := s.postgres.DomainRepository.CreateDomain(ctx, domain); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	tracing.TagEntity(span, domain.ID)

	persistCtx, cancel := s.persistContext(ctx)
	defer cancel()

	s.appendLog(persistCtx, domain.ID, enum.OperationDomainCreated, enum.LogLevelInfo, models.JSONMap{
		"projectId": projectID,
		"hostname":  host,
	})

	if err := s.addToPlatform(ctx, domain.ID, host); err != nil {
		// the row must not outlive a failed provisioning
		if _, deleteErr := s.postgres.DomainRepository.DeleteDomain(persistCtx, domain.ID); deleteErr != nil {
			s.log.Errorf("Failed to roll back domain %s after provisioning failure: %v", host, deleteErr)
			s.appendLog(persistCtx, domain.ID, enum.OperationDomainRemoved, enum.LogLevelError, models.JSONMap{
				"hostname": host,
				"reason":   "rollback",
				"error":    deleteErr.Error(),
			})
			err = errors.Wrapf(er.ErrCompensationFailed, "%s: %v (provisioning failed: %v)", host, deleteErr, err)
		} else {
			s.appendLog(persistCtx, domain.ID, enum.OperationDomainRemoved, enum.LogLevelWarn, models.JSONMap{
				"hostname": host,
				"reason":   "rollback",
			})
		}
		tracing.TraceErr(span, err)
		return nil, err
	}

	if includeWWW {
		if err := s.SetIncludeWWW(ctx, domain.ID, host, projectID, true); err != nil {
			// the apex is provisioned; the client can retry the toggle
			s.log.Warnf("Domain %s created without www companion: %v", host, err)
			span.LogFields(tracingLog.String("result.wwwError", err.Error()))
		}
	}

	created, err := s.postgres.DomainRepository.GetDomain(persistCtx, domain.ID)
	if err != nil || created == nil {
		return domain, nil
	}
	return created, nil
}

func (s *domainService) GetDomain(ctx context.Context, domainID string) (*models.Domain, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.GetDomain")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, domainID)

	domain, err := s.postgres.DomainRepository.GetDomain(ctx, domainID)
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "Error getting domain"))
		return nil, err
	}
	if domain == nil {
		return nil, errors.Wrap(er.ErrDomainNotFound, domainID)
	}

	return domain, nil
}

func (s *domainService) GetProjectDomains(ctx context.Context, projectID string) ([]models.Domain, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.GetProjectDomains")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagProject(span, projectID)

	domains, err := s.postgres.DomainRepository.GetProjectDomains(ctx, projectID)
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "Error getting project domains"))
		return nil, err
	}
	span.LogFields(tracingLog.Int("result.count", len(domains)))

	return domains, nil
}

// RemoveDomain deletes the domain row right away. Deprovisioning on the
// hosting platform happens in the background and its outcome only shows up
// in the operation log.
func (s *domainService) RemoveDomain(ctx context.Context, domainID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.RemoveDomain")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, domainID)

	domain, err := s.GetDomain(ctx, domainID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	persistCtx, cancel := s.persistContext(ctx)
	defer cancel()

	hostnames := []string{domain.Domain}
	if err := s.deleteDomainRow(persistCtx, domain); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if domain.IncludeWWW && utils.IsApexDomain(domain.Domain) {
		www, err := s.postgres.DomainRepository.GetDomainByHostname(persistCtx, domain.ProjectID, utils.WWWHostname(domain.Domain))
		if err != nil {
			s.log.Warnf("Failed to load www companion of %s: %v", domain.Domain, err)
		} else if www != nil {
			if err := s.deleteDomainRow(persistCtx, www); err != nil {
				s.log.Warnf("Failed to remove www companion of %s: %v", domain.Domain, err)
			} else {
				hostnames = append(hostnames, www.Domain)
			}
		}
	}

	if utils.IsWWWHostname(domain.Domain) {
		s.clearApexIncludeWWW(persistCtx, domain)
	}

	for _, hostname := range hostnames {
		s.deprovisionInBackground(ctx, domain.ID, hostname)
	}

	return nil
}

// clearApexIncludeWWW turns include_www off on the apex of a www row that was
// removed on its own.
func (s *domainService) clearApexIncludeWWW(ctx context.Context, www *models.Domain) {
	apexHostname := utils.CompanionHostname(www.Domain)
	if !utils.IsApexDomain(apexHostname) {
		return
	}
	apex, err := s.postgres.DomainRepository.GetDomainByHostname(ctx, www.ProjectID, apexHostname)
	if err != nil {
		s.log.Warnf("Failed to load apex of %s: %v", www.Domain, err)
		return
	}
	if apex == nil || !apex.IncludeWWW {
		return
	}
	if err := s.postgres.DomainRepository.SetIncludeWWW(ctx, apex.ID, false); err != nil {
		s.log.Warnf("Failed to clear include_www on %s: %v", apex.Domain, err)
		return
	}
	s.appendLog(ctx, apex.ID, enum.OperationWWWDisabled, enum.LogLevelInfo, models.JSONMap{
		"hostname":  www.Domain,
		"removedId": www.ID,
	})
}

func (s *domainService) deleteDomainRow(ctx context.Context, domain *models.Domain) error {
	if _, err := s.postgres.DomainRepository.DeleteDomain(ctx, domain.ID); err != nil {
		return err
	}
	if err := s.postgres.PendingRetryRepository.Clear(ctx, domain.ID); err != nil {
		s.log.Warnf("Failed to clear pending retry for %s: %v", domain.Domain, err)
	}
	s.appendLog(ctx, domain.ID, enum.OperationDomainRemoved, enum.LogLevelInfo, models.JSONMap{
		"projectId": domain.ProjectID,
		"hostname":  domain.Domain,
	})
	return nil
}

func (s *domainService) deprovisionInBackground(ctx context.Context, logDomainID, hostname string) {
	detached := context.WithoutCancel(ctx)
	s.background.Go("deprovision "+hostname, func() {
		span, bgCtx := opentracing.StartSpanFromContext(detached, "DomainService.Deprovision")
		defer span.Finish()
		tracing.SetDefaultServiceSpanTags(bgCtx, span)
		span.LogKV("domain", hostname)

		bgCtx, cancel := context.WithTimeout(bgCtx, deprovisionTimeout)
		defer cancel()

		if err := s.platform.RemoveDomain(bgCtx, hostname); err != nil {
			tracing.TraceErr(span, err)
			s.appendLog(bgCtx, logDomainID, enum.OperationPlatformRemove, enum.LogLevelWarn, models.JSONMap{
				"hostname": hostname,
				"platform": s.platform.Name(),
				"error":    err.Error(),
			})
			return
		}
		s.appendLog(bgCtx, logDomainID, enum.OperationPlatformRemove, enum.LogLevelInfo, models.JSONMap{
			"hostname": hostname,
			"platform": s.platform.Name(),
		})
	})
}

// addToPlatform provisions the hostname, treating "already exists" as success.
func (s *domainService) addToPlatform(ctx context.Context, logDomainID, hostname string) error {
	persistCtx, cancel := s.persistContext(ctx)
	defer cancel()

	err := s.platform.AddDomain(ctx, hostname)
	if err != nil && !errors.Is(err, er.ErrPlatformDomainExists) {
		s.appendLog(persistCtx, logDomainID, enum.OperationPlatformAdd, enum.LogLevelWarn, models.JSONMap{
			"hostname": hostname,
			"platform": s.platform.Name(),
			"error":    err.Error(),
		})
		return err
	}

	s.appendLog(persistCtx, logDomainID, enum.OperationPlatformAdd, enum.LogLevelInfo, models.JSONMap{
		"hostname":      hostname,
		"platform":      s.platform.Name(),
		"alreadyExists": err != nil,
	})
	return nil
}

func (s *domainService) GetOperationLogs(ctx context.Context, domainID string, limit int) ([]models.OperationLog, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.GetOperationLogs")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, domainID)

	if strings.TrimSpace(domainID) == "" {
		return nil, errors.Wrap(er.ErrInvalidInput, "domain id is required")
	}

	logs, err := s.postgres.OperationLogRepository.GetDomainLogs(ctx, domainID, limit)
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "Error getting operation logs"))
		return nil, err
	}

	return logs, nil
}

// RecheckPendingDomains re-runs verification for every pending retry that is
// due. Each verification reschedules or clears its own retry record.
func (s *domainService) RecheckPendingDomains(ctx context.Context, limit int) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.RecheckPendingDomains")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	due, err := s.postgres.PendingRetryRepository.GetDue(ctx, utils.Now(), limit)
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "Error getting due retries"))
		return 0, err
	}

	checked := 0
	for _, pending := range due {
		select {
		case <-ctx.Done():
			return checked, ctx.Err()
		default:
		}

		_, err := s.Verify(ctx, pending.DomainID, pending.Hostname, pending.Attempt)
		if err != nil {
			if errors.Is(err, er.ErrDomainNotFound) || errors.Is(err, er.ErrHostnameMismatch) {
				if clearErr := s.postgres.PendingRetryRepository.Clear(ctx, pending.DomainID); clearErr != nil {
					s.log.Warnf("Failed to clear stale retry for %s: %v", pending.DomainID, clearErr)
				}
				continue
			}
			s.log.Warnf("Re-check of %s failed: %v", pending.Hostname, err)
			continue
		}
		checked++
	}

	span.LogFields(tracingLog.Int("result.due", len(due)), tracingLog.Int("result.checked", checked))
	return checked, nil
}

// persistContext detaches writes from the caller's cancellation and gives
// them their own deadline.
func (s *domainService) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
}

// platformContext bounds a platform status check by its own deadline only; a
// client giving up must not turn a configured domain into a failed attempt.
func (s *domainService) platformContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.platformTimeout)
}

// appendLog writes an operation log entry. A failed write is reported to the
// application log only.
func (s *domainService) appendLog(ctx context.Context, domainID string, event enum.OperationEvent, level enum.LogLevel, details models.JSONMap) {
	entry := models.NewOperationLog(domainID, event, level, details)
	if err := s.postgres.OperationLogRepository.Append(ctx, entry); err != nil {
		s.log.Errorf("Failed to append %s log for domain %s: %v", event, domainID, err)
	}
}

func (s *domainService) publishVerified(ctx context.Context, domain *models.Domain, sslState enum.SSLState, verifiedAt time.Time, companion bool) {
	if s.publisher == nil {
		return
	}
	event := dto.DomainVerified{
		DomainID:   domain.ID,
		ProjectID:  domain.ProjectID,
		Domain:     domain.Domain,
		SSLState:   sslState.String(),
		VerifiedAt: verifiedAt.Format(time.RFC3339),
		Companion:  companion,
	}
	detached := context.WithoutCancel(ctx)
	s.background.Go("publish "+domain.Domain, func() {
		publishCtx, cancel := context.WithTimeout(detached, publishTimeout)
		defer cancel()
		if err := s.publisher.PublishDomainVerified(publishCtx, event); err != nil {
			s.log.Warnf("Failed to publish DomainVerified for %s: %v", domain.Domain, err)
		}
	})
}
