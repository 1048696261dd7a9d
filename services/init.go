package services

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/customeros/sitestack/config"
	"github.com/customeros/sitestack/interfaces"
	"github.com/customeros/sitestack/internal/background"
	"github.com/customeros/sitestack/internal/logger"
	"github.com/customeros/sitestack/internal/repository"
	"github.com/customeros/sitestack/internal/retry"
	"github.com/customeros/sitestack/services/dnscheck"
	"github.com/customeros/sitestack/services/domain"
	"github.com/customeros/sitestack/services/events"
	"github.com/customeros/sitestack/services/hosting/cloudflare"
	"github.com/customeros/sitestack/services/hosting/vercel"
)

const (
	ProviderVercel     = "vercel"
	ProviderCloudflare = "cloudflare"
)

type Services struct {
	EventsService   *events.EventsService
	HostingPlatform interfaces.HostingPlatform
	DNSChecker      interfaces.DNSChecker
	DomainService   interfaces.DomainService
	Background      *background.Runner
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	eventsService, err := events.NewEventsService(cfg.AppConfig.RabbitMQURL, log, events.DefaultPublisherConfig())
	if err != nil {
		return nil, err
	}

	platform, err := NewHostingPlatform(cfg)
	if err != nil {
		eventsService.Close()
		return nil, err
	}

	runner := background.NewRunner(log)
	dnsChecker := dnscheck.NewDNSChecker(cfg.DNSConfig)

	services := Services{
		EventsService:   eventsService,
		HostingPlatform: platform,
		DNSChecker:      dnsChecker,
		Background:      runner,
		DomainService: domain.NewDomainService(
			repos,
			platform,
			dnsChecker,
			eventsService.Publisher,
			retry.NewPolicy(cfg.RetryConfig),
			log,
			runner,
			cfg.AppConfig.PersistTimeout,
			cfg.HostingConfig.Timeout,
		),
	}

	return &services, nil
}

// NewHostingPlatform builds the client for the configured provider.
func NewHostingPlatform(cfg *config.Config) (interfaces.HostingPlatform, error) {
	switch strings.ToLower(cfg.HostingConfig.Provider) {
	case "", ProviderVercel:
		return vercel.NewVercelService(cfg.VercelConfig, cfg.HostingConfig), nil
	case ProviderCloudflare:
		return cloudflare.NewCloudflareService(cfg.CloudflareConfig, cfg.HostingConfig)
	default:
		return nil, errors.Errorf("unknown hosting provider %q", cfg.HostingConfig.Provider)
	}
}
