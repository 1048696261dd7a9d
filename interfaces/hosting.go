package interfaces

import (
	"context"

	"github.com/customeros/sitestack/dto"
)

// HostingPlatform provisions custom hostnames on the edge platform serving
// the sites. Network, auth and non-2xx failures are returned as errors
// wrapping ErrPlatformUnavailable, never as an unconfigured status.
type HostingPlatform interface {
	Name() string
	GetDomainStatus(ctx context.Context, hostname string) (*dto.DomainStatus, error)
	// AddDomain returns ErrPlatformDomainExists when the hostname is already provisioned.
	AddDomain(ctx context.Context, hostname string) error
	RemoveDomain(ctx context.Context, hostname string) error
}
