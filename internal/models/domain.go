package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/customeros/sitestack/internal/enum"
)

type Domain struct {
	ID         string        `gorm:"primary_key;type:varchar(36)" json:"id"`
	ProjectID  string        `gorm:"column:project_id;type:varchar(255);NOT NULL;uniqueIndex:idx_domains_project_domain" json:"projectId"`
	Domain     string        `gorm:"column:domain;type:varchar(255);NOT NULL;uniqueIndex:idx_domains_project_domain" json:"domain"`
	Verified   bool          `gorm:"column:verified;type:boolean;NOT NULL;DEFAULT:false" json:"verified"`
	VerifiedAt *time.Time    `gorm:"column:verified_at;type:timestamp" json:"verifiedAt"`
	SSLState   enum.SSLState `gorm:"column:ssl_state;type:varchar(32)" json:"sslState"`
	IncludeWWW bool          `gorm:"column:include_www;type:boolean;NOT NULL;DEFAULT:false" json:"includeWww"`
	CreatedAt  time.Time     `gorm:"column:created_at;type:timestamp;DEFAULT:current_timestamp" json:"createdAt"`
	UpdatedAt  time.Time     `gorm:"column:updated_at;type:timestamp;DEFAULT:current_timestamp" json:"updatedAt"`
}

func (Domain) TableName() string {
	return "domains"
}

func (d *Domain) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}
