package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/customeros/sitestack/dto"
	"github.com/customeros/sitestack/internal/database"
	"github.com/customeros/sitestack/internal/logger"
	"github.com/customeros/sitestack/internal/repository"
)

// NewTestDB returns a migrated private in-memory sqlite database.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.NewSQLiteConnection(":memory:", gormlogger.Silent)
	require.NoError(t, err)
	require.NoError(t, repository.AutoMigrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func NewTestLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode:  true,
		LogLevel: "error",
	})
	appLogger.InitLogger()
	return appLogger
}

type MockHostingPlatform struct {
	mock.Mock
}

func (m *MockHostingPlatform) Name() string {
	return "mock"
}

func (m *MockHostingPlatform) GetDomainStatus(ctx context.Context, hostname string) (*dto.DomainStatus, error) {
	args := m.Called(ctx, hostname)
	status, _ := args.Get(0).(*dto.DomainStatus)
	return status, args.Error(1)
}

func (m *MockHostingPlatform) AddDomain(ctx context.Context, hostname string) error {
	args := m.Called(ctx, hostname)
	return args.Error(0)
}

func (m *MockHostingPlatform) RemoveDomain(ctx context.Context, hostname string) error {
	args := m.Called(ctx, hostname)
	return args.Error(0)
}

// RecordingPublisher keeps every published DomainVerified event.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []dto.DomainVerified
}

func (p *RecordingPublisher) PublishDomainVerified(_ context.Context, event dto.DomainVerified) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *RecordingPublisher) Close() error {
	return nil
}

func (p *RecordingPublisher) Events() []dto.DomainVerified {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]dto.DomainVerified(nil), p.events...)
}

// StaticDNSChecker returns the same observation for every hostname.
type StaticDNSChecker struct {
	Observation dto.DNSObservation
}

func (c *StaticDNSChecker) Observe(_ context.Context, hostname string) *dto.DNSObservation {
	observation := c.Observation
	observation.Hostname = hostname
	return &observation
}
