package interfaces

import (
	"context"

	"github.com/customeros/sitestack/dto"
	"github.com/customeros/sitestack/internal/models"
)

type DomainService interface {
	CreateDomain(ctx context.Context, projectID, hostname string, includeWWW bool) (*models.Domain, error)
	GetDomain(ctx context.Context, domainID string) (*models.Domain, error)
	GetProjectDomains(ctx context.Context, projectID string) ([]models.Domain, error)
	RemoveDomain(ctx context.Context, domainID string) error
	Verify(ctx context.Context, domainID, hostname string, attempt int) (*dto.VerificationResult, error)
	ReconcileCompanion(ctx context.Context, projectID, verifiedHostname string)
	SetIncludeWWW(ctx context.Context, domainID, hostname, projectID string, includeWWW bool) error
	GetOperationLogs(ctx context.Context, domainID string, limit int) ([]models.OperationLog, error)
	RecheckPendingDomains(ctx context.Context, limit int) (int, error)
}
