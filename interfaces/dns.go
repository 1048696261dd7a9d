package interfaces

import (
	"context"

	"github.com/customeros/sitestack/dto"
)

type DNSChecker interface {
	Observe(ctx context.Context, hostname string) *dto.DNSObservation
}
