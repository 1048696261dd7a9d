package interfaces

import (
	"context"

	"github.com/customeros/sitestack/dto"
)

type DomainEventPublisher interface {
	PublishDomainVerified(ctx context.Context, event dto.DomainVerified) error
	Close() error
}
