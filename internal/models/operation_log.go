package models

import (
	"time"

	"github.com/customeros/sitestack/internal/enum"
	"github.com/customeros/sitestack/internal/utils"
)

// OperationLog is an append-only audit entry for a domain. Rows are never
// updated after insert.
type OperationLog struct {
	ID        string              `gorm:"primary_key;type:varchar(64)" json:"id"`
	DomainID  string              `gorm:"column:domain_id;type:varchar(36);NOT NULL;index" json:"domainId"`
	Event     enum.OperationEvent `gorm:"column:event;type:varchar(64);NOT NULL" json:"event"`
	Level     enum.LogLevel       `gorm:"column:level;type:varchar(16);NOT NULL" json:"level"`
	CreatedAt time.Time           `gorm:"column:created_at;type:timestamp;NOT NULL;index" json:"createdAt"`
	Details   JSONMap             `gorm:"column:details;type:jsonb" json:"details"`
}

func (OperationLog) TableName() string {
	return "domain_operation_logs"
}

func NewOperationLog(domainID string, event enum.OperationEvent, level enum.LogLevel, details JSONMap) *OperationLog {
	if details == nil {
		details = JSONMap{}
	}
	return &OperationLog{
		ID:        utils.GenerateID("oplog"),
		DomainID:  domainID,
		Event:     event,
		Level:     level,
		CreatedAt: utils.Now(),
		Details:   details,
	}
}
