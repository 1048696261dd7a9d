package vercel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

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

// Vercel domain API: https://vercel.com/docs/rest-api/endpoints/projects
type vercelService struct {
	cfg    *config.VercelConfig
	client *http.Client
}

func NewVercelService(cfg *config.VercelConfig, hostingCfg *config.HostingConfig) interfaces.HostingPlatform {
	return &vercelService{
		cfg:    cfg,
		client: &http.Client{Timeout: hostingCfg.Timeout},
	}
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type projectDomainResponse struct {
	Name         string                      `json:"name"`
	Verified     bool                        `json:"verified"`
	Verification []dto.VerificationChallenge `json:"verification"`
}

type domainConfigResponse struct {
	ConfiguredBy  *string `json:"configuredBy"`
	Misconfigured bool    `json:"misconfigured"`
}

func (s *vercelService) Name() string {
	return "vercel"
}

func (s *vercelService) GetDomainStatus(ctx context.Context, hostname string) (*dto.DomainStatus, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "VercelService.GetDomainStatus")
	defer span.Finish()
	tracing.TagComponentExternalApi(span)
	span.LogKV("domain", hostname)

	if err := s.validateConfig(); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	var projectDomain projectDomainResponse
	path := fmt.Sprintf("/v9/projects/%s/domains/%s", url.PathEscape(s.cfg.ProjectID), url.PathEscape(hostname))
	if _, err := s.do(ctx, http.MethodGet, path, nil, &projectDomain); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	var domainConfig domainConfigResponse
	path = fmt.Sprintf("/v6/domains/%s/config", url.PathEscape(hostname))
	if _, err := s.do(ctx, http.MethodGet, path, nil, &domainConfig); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	status := mapDomainStatus(projectDomain, domainConfig)
	span.LogFields(
		tracingLog.Bool("result.configured", status.Configured),
		tracingLog.Bool("result.verified", projectDomain.Verified),
		tracingLog.Bool("result.misconfigured", domainConfig.Misconfigured),
	)
	return status, nil
}

// mapDomainStatus folds the project-domain and config endpoints into one
// status. These endpoints do not expose certificate state: the certificate
// is requested once the domain is configured, so it is reported as
// INITIALIZING from then on and PENDING before.
func mapDomainStatus(projectDomain projectDomainResponse, domainConfig domainConfigResponse) *dto.DomainStatus {
	configured := projectDomain.Verified && !domainConfig.Misconfigured

	status := &dto.DomainStatus{
		Configured: configured,
		SSL:        &dto.SSLStatus{State: enum.SSLStatePending},
	}
	if configured {
		status.SSL.State = enum.SSLStateInitializing
	}
	if !configured && len(projectDomain.Verification) > 0 {
		status.Verification = projectDomain.Verification
	}
	return status
}

func (s *vercelService) AddDomain(ctx context.Context, hostname string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "VercelService.AddDomain")
	defer span.Finish()
	tracing.TagComponentExternalApi(span)
	span.LogKV("domain", hostname)

	if err := s.validateConfig(); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	body := map[string]string{"name": hostname}
	path := fmt.Sprintf("/v10/projects/%s/domains", url.PathEscape(s.cfg.ProjectID))
	if _, err := s.do(ctx, http.MethodPost, path, body, nil); err != nil {
		if errors.Is(err, er.ErrPlatformDomainExists) {
			span.LogFields(tracingLog.Bool("result.alreadyExists", true))
			return err
		}
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

func (s *vercelService) RemoveDomain(ctx context.Context, hostname string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "VercelService.RemoveDomain")
	defer span.Finish()
	tracing.TagComponentExternalApi(span)
	span.LogKV("domain", hostname)

	if err := s.validateConfig(); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	path := fmt.Sprintf("/v9/projects/%s/domains/%s", url.PathEscape(s.cfg.ProjectID), url.PathEscape(hostname))
	statusCode, err := s.do(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		if statusCode == http.StatusNotFound {
			span.LogFields(tracingLog.Bool("result.alreadyRemoved", true))
			return nil
		}
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

func (s *vercelService) validateConfig() error {
	if s.cfg.Token == "" || s.cfg.ProjectID == "" {
		return errors.Wrap(er.ErrPlatformNotConfigured, "vercel token or project id missing")
	}
	return nil
}

// do sends the request and decodes a 2xx body into out. Any transport error
// or non-2xx response is wrapped in ErrPlatformUnavailable, except the
// domain_already_exists conflict which maps to ErrPlatformDomainExists.
func (s *vercelService) do(ctx context.Context, method, path string, body interface{}, out interface{}) (int, error) {
	endpoint := strings.TrimSuffix(s.cfg.Url, "/") + path
	if s.cfg.TeamID != "" {
		endpoint += "?teamId=" + url.QueryEscape(s.cfg.TeamID)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, errors.Wrap(err, "failed to marshal vercel request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, errors.Wrap(err, "failed to build vercel request")
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, errors.Wrapf(er.ErrPlatformUnavailable, "vercel %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, errors.Wrapf(er.ErrPlatformUnavailable, "vercel %s %s: failed to read response: %v", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		_ = json.Unmarshal(responseBody, &apiErr)
		if isAlreadyExists(resp.StatusCode, apiErr.Error.Code) {
			return resp.StatusCode, errors.Wrap(er.ErrPlatformDomainExists, apiErr.Error.Message)
		}
		message := apiErr.Error.Message
		if message == "" {
			message = strings.TrimSpace(string(responseBody))
		}
		return resp.StatusCode, errors.Wrapf(er.ErrPlatformUnavailable, "vercel %s %s: status %d: %s", method, path, resp.StatusCode, message)
	}

	if out != nil && len(responseBody) > 0 {
		if err := json.Unmarshal(responseBody, out); err != nil {
			return resp.StatusCode, errors.Wrapf(er.ErrPlatformUnavailable, "vercel %s %s: invalid response: %v", method, path, err)
		}
	}

	return resp.StatusCode, nil
}

// isAlreadyExists is true only when the domain is already attached to this
// project. domain_already_in_use means another project owns it.
func isAlreadyExists(statusCode int, code string) bool {
	return statusCode == http.StatusConflict && code == "domain_already_exists"
}
