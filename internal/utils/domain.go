package utils

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/publicsuffix"

	er "github.com/customeros/sitestack/internal/errors"
)

const wwwPrefix = "www."

var hostnameLabelRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// NormalizeHostname lowercases the input and strips scheme, path, port and
// the trailing root dot, so "HTTPS://Example.com./" becomes "example.com".
func NormalizeHostname(raw string) string {
	host := strings.ToLower(strings.TrimSpace(raw))
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	if idx := strings.IndexAny(host, "/?#"); idx >= 0 {
		host = host[:idx]
	}
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	return strings.TrimSuffix(host, ".")
}

// ValidateHostname checks the hostname is a syntactically valid DNS name
// with at least one label under a public suffix.
func ValidateHostname(host string) error {
	if host == "" || len(host) > 253 {
		return errors.Wrapf(er.ErrInvalidHostname, "%q", host)
	}
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return errors.Wrapf(er.ErrInvalidHostname, "%q has no public suffix", host)
	}
	for _, label := range labels {
		if !hostnameLabelRegex.MatchString(label) {
			return errors.Wrapf(er.ErrInvalidHostname, "%q has invalid label %q", host, label)
		}
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(host); err != nil {
		return errors.Wrapf(er.ErrInvalidHostname, "%q: %v", host, err)
	}
	return nil
}

// IsApexDomain reports whether host is a registrable domain: exactly one
// label in front of its public suffix (example.com, example.co.uk).
func IsApexDomain(host string) bool {
	host = NormalizeHostname(host)
	if host == "" {
		return false
	}
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return false
	}
	return registrable == host
}

func IsWWWHostname(host string) bool {
	return strings.HasPrefix(host, wwwPrefix)
}

// CompanionHostname returns the other half of an apex / www pair.
func CompanionHostname(host string) string {
	if IsWWWHostname(host) {
		return strings.TrimPrefix(host, wwwPrefix)
	}
	return wwwPrefix + host
}

func WWWHostname(apex string) string {
	return wwwPrefix + apex
}
