package dnscheck

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	"github.com/customeros/sitestack/config"
	"github.com/customeros/sitestack/dto"
	"github.com/customeros/sitestack/interfaces"
	"github.com/customeros/sitestack/internal/tracing"
	"github.com/customeros/sitestack/internal/utils"
)

const (
	RecordTypeA     = "A"
	RecordTypeCNAME = "CNAME"
)

type resolver interface {
	LookupCNAME(ctx context.Context, host string) (string, error)
	LookupHost(ctx context.Context, host string) ([]string, error)
}

type dnsChecker struct {
	cfg      *config.DNSConfig
	resolver resolver
}

func NewDNSChecker(cfg *config.DNSConfig) interfaces.DNSChecker {
	return &dnsChecker{
		cfg:      cfg,
		resolver: &net.Resolver{},
	}
}

// Observe resolves what the hostname currently points at and compares it
// with the record the hosting platform expects: an A record for apex
// domains, a CNAME for everything else. Lookup failures are reported in the
// observation, never returned.
func (c *dnsChecker) Observe(ctx context.Context, hostname string) *dto.DNSObservation {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DNSChecker.Observe")
	defer span.Finish()
	tracing.TagComponentExternalApi(span)
	span.LogKV("domain", hostname)

	observation := &dto.DNSObservation{Hostname: hostname}
	if utils.IsApexDomain(hostname) {
		observation.ExpectedType = RecordTypeA
		observation.ExpectedValue = c.cfg.ExpectedA
	} else {
		observation.ExpectedType = RecordTypeCNAME
		observation.ExpectedValue = c.cfg.ExpectedCNAME
	}

	timeout := c.cfg.LookupTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lookupErrors []string

	cname, err := c.resolver.LookupCNAME(ctx, hostname)
	if err != nil {
		lookupErrors = append(lookupErrors, "CNAME: "+err.Error())
	} else {
		cname = strings.TrimSuffix(strings.ToLower(cname), ".")
		// LookupCNAME returns the queried name itself when there is no CNAME record
		if cname != hostname {
			observation.ObservedCNAME = cname
		}
	}

	addresses, err := c.resolver.LookupHost(ctx, hostname)
	if err != nil {
		lookupErrors = append(lookupErrors, "A: "+err.Error())
	} else {
		observation.ObservedA = addresses
	}

	if len(lookupErrors) > 0 {
		observation.LookupError = strings.Join(lookupErrors, "; ")
	}
	observation.Matches = matches(observation)

	span.LogFields(
		tracingLog.String("result.cname", observation.ObservedCNAME),
		tracingLog.Bool("result.matches", observation.Matches),
	)
	return observation
}

func matches(observation *dto.DNSObservation) bool {
	if observation.ExpectedValue == "" {
		return false
	}
	switch observation.ExpectedType {
	case RecordTypeCNAME:
		return observation.ObservedCNAME == strings.TrimSuffix(strings.ToLower(observation.ExpectedValue), ".")
	case RecordTypeA:
		for _, address := range observation.ObservedA {
			if address == observation.ExpectedValue {
				return true
			}
		}
	}
	return false
}
