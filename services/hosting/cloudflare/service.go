package cloudflare

import (
	"context"
	"net/http"
	"strings"

	cf "github.com/cloudflare/cloudflare-go"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/sitestack/config"
	"github.com/customeros/sitestack/dto"
	"github.com/customeros/sitestack/interfaces"
	"github.com/customeros/sitestack/internal/enum"
	er "github.com/customeros/sitestack/internal/errors"
	"github.com/customeros/sitestack/internal/tracing"
)

// Cloudflare API error code for a hostname that is already registered on the zone.
const errCodeDuplicateCustomHostname = 1406

type customHostnameAPI interface {
	CustomHostnameIDByName(ctx context.Context, zoneID string, hostname string) (string, error)
	CustomHostname(ctx context.Context, zoneID string, customHostnameID string) (cf.CustomHostname, error)
	CreateCustomHostname(ctx context.Context, zoneID string, ch cf.CustomHostname) (*cf.CustomHostnameResponse, error)
	DeleteCustomHostname(ctx context.Context, zoneID string, customHostnameID string) error
}

// cloudflareService provisions hostnames through Cloudflare for SaaS custom hostnames.
type cloudflareService struct {
	cfg *config.CloudflareConfig
	api customHostnameAPI
}

func NewCloudflareService(cfg *config.CloudflareConfig, hostingCfg *config.HostingConfig) (interfaces.HostingPlatform, error) {
	if cfg.ApiToken == "" || cfg.ZoneID == "" {
		return nil, errors.Wrap(er.ErrPlatformNotConfigured, "cloudflare api token or zone id missing")
	}

	options := []cf.Option{cf.HTTPClient(&http.Client{Timeout: hostingCfg.Timeout})}
	if cfg.Url != "" {
		options = append(options, cf.BaseURL(cfg.Url))
	}

	api, err := cf.NewWithAPIToken(cfg.ApiToken, options...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize Cloudflare API client")
	}

	return &cloudflareService{cfg: cfg, api: api}, nil
}

func (s *cloudflareService) Name() string {
	return "cloudflare"
}

func (s *cloudflareService) GetDomainStatus(ctx context.Context, hostname string) (*dto.DomainStatus, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "CloudflareService.GetDomainStatus")
	defer span.Finish()
	tracing.TagComponentExternalApi(span)
	span.LogKV("domain", hostname)

	id, err := s.api.CustomHostnameIDByName(ctx, s.cfg.ZoneID, hostname)
	if err != nil {
		err = errors.Wrapf(er.ErrPlatformUnavailable, "cloudflare lookup %s: %v", hostname, err)
		tracing.TraceErr(span, err)
		return nil, err
	}

	customHostname, err := s.api.CustomHostname(ctx, s.cfg.ZoneID, id)
	if err != nil {
		err = errors.Wrapf(er.ErrPlatformUnavailable, "cloudflare get %s: %v", hostname, err)
		tracing.TraceErr(span, err)
		return nil, err
	}

	status := mapCustomHostname(customHostname)
	span.LogFields(
		tracingLog.String("result.status", string(customHostname.Status)),
		tracingLog.Bool("result.configured", status.Configured),
	)
	return status, nil
}

func (s *cloudflareService) AddDomain(ctx context.Context, hostname string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "CloudflareService.AddDomain")
	defer span.Finish()
	tracing.TagComponentExternalApi(span)
	span.LogKV("domain", hostname)

	customHostname := cf.CustomHostname{
		Hostname: hostname,
		SSL: &cf.CustomHostnameSSL{
			Method: "http",
			Type:   "dv",
		},
	}
	if s.cfg.FallbackHost != "" {
		customHostname.CustomOriginServer = s.cfg.FallbackHost
	}

	_, err := s.api.CreateCustomHostname(ctx, s.cfg.ZoneID, customHostname)
	if err != nil {
		if isDuplicateHostname(err) {
			span.LogFields(tracingLog.Bool("result.alreadyExists", true))
			return errors.Wrap(er.ErrPlatformDomainExists, hostname)
		}
		err = errors.Wrapf(er.ErrPlatformUnavailable, "cloudflare create %s: %v", hostname, err)
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

func (s *cloudflareService) RemoveDomain(ctx context.Context, hostname string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "CloudflareService.RemoveDomain")
	defer span.Finish()
	tracing.TagComponentExternalApi(span)
	span.LogKV("domain", hostname)

	id, err := s.api.CustomHostnameIDByName(ctx, s.cfg.ZoneID, hostname)
	if err != nil {
		if isNotFound(err) {
			span.LogFields(tracingLog.Bool("result.alreadyRemoved", true))
			return nil
		}
		err = errors.Wrapf(er.ErrPlatformUnavailable, "cloudflare lookup %s: %v", hostname, err)
		tracing.TraceErr(span, err)
		return err
	}

	if err := s.api.DeleteCustomHostname(ctx, s.cfg.ZoneID, id); err != nil {
		err = errors.Wrapf(er.ErrPlatformUnavailable, "cloudflare delete %s: %v", hostname, err)
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

// mapCustomHostname treats an active custom hostname as configured. The
// certificate state comes from the hostname's SSL object; ownership
// verification records are surfaced while the hostname is still pending.
func mapCustomHostname(customHostname cf.CustomHostname) *dto.DomainStatus {
	status := &dto.DomainStatus{
		Configured: customHostname.Status == cf.ACTIVE,
	}

	if customHostname.SSL != nil {
		status.SSL = &dto.SSLStatus{State: mapSSLStatus(customHostname.SSL.Status)}
	}

	if !status.Configured {
		ownership := customHostname.OwnershipVerification
		if ownership.Name != "" && ownership.Value != "" {
			status.Verification = []dto.VerificationChallenge{{
				Type:   strings.ToUpper(ownership.Type),
				Domain: ownership.Name,
				Value:  ownership.Value,
				Reason: "pending_ownership_verification",
			}}
		}
	}

	return status
}

func mapSSLStatus(status string) enum.SSLState {
	switch strings.ToLower(status) {
	case "active":
		return enum.SSLStateReady
	case "initializing", "pending_issuance", "pending_deployment":
		return enum.SSLStateInitializing
	case "pending_validation", "pending_cleanup", "":
		return enum.SSLStatePending
	default:
		// validation_timed_out, issuance_timed_out, deleted and friends
		return enum.SSLStateError
	}
}

func isDuplicateHostname(err error) bool {
	var coded interface{ ErrorCodeContains(int) bool }
	if errors.As(err, &coded) && coded.ErrorCodeContains(errCodeDuplicateCustomHostname) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "duplicate custom hostname") || strings.Contains(message, "already exists")
}

func isNotFound(err error) bool {
	var notFound *cf.NotFoundError
	if errors.As(err, &notFound) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "could not be found")
}
