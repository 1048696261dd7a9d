package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/sitestack/config"
	"github.com/customeros/sitestack/internal/models"
)

type Repositories struct {
	DomainRepository       DomainRepository
	OperationLogRepository OperationLogRepository
	PendingRetryRepository PendingRetryRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		DomainRepository:       NewDomainRepository(db),
		OperationLogRepository: NewOperationLogRepository(db),
		PendingRetryRepository: NewPendingRetryRepository(db),
	}
}

// AutoMigrate creates or updates the tables owned by this service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Domain{},
		&models.OperationLog{},
		&models.PendingRetry{},
	)
}

func MigrateDB(dbConfig *config.DatabaseConfig, db *gorm.DB) error {
	if db.Dialector.Name() == "sqlite" {
		return AutoMigrate(db)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	sqlDB.SetMaxOpenConns(5)

	err = AutoMigrate(db)

	sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConn)
	sqlDB.SetMaxOpenConns(dbConfig.MaxConn)
	sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Minute)

	return err
}
