package models

import "time"

// PendingRetry records that a verification attempt advised a re-check.
// At most one row exists per domain.
type PendingRetry struct {
	DomainID  string    `gorm:"primary_key;column:domain_id;type:varchar(36)" json:"domainId"`
	ProjectID string    `gorm:"column:project_id;type:varchar(255);NOT NULL" json:"projectId"`
	Hostname  string    `gorm:"column:hostname;type:varchar(255);NOT NULL" json:"hostname"`
	Attempt   int       `gorm:"column:attempt;type:integer;NOT NULL" json:"attempt"`
	DueAt     time.Time `gorm:"column:due_at;type:timestamp;NOT NULL;index" json:"dueAt"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;DEFAULT:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;DEFAULT:current_timestamp" json:"updatedAt"`
}

func (PendingRetry) TableName() string {
	return "domain_pending_retries"
}
