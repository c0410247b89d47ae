// Package models contains domain entities and persistence models for campaigns and their ad platform connections
package models

import (
	"encoding/json"
	"time"

	"github.com/amirphl/adbridge/utils"
	"gorm.io/gorm"
)

type AuditLog struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	CustomerID   *uint           `gorm:"index:idx_audit_customer_id" json:"customer_id,omitempty"`
	CampaignID   *uint           `gorm:"index:idx_audit_campaign_id" json:"campaign_id,omitempty"`
	Action       string          `gorm:"size:64;not null;index:idx_audit_action" json:"action"`
	Description  *string         `gorm:"type:text" json:"description,omitempty"`
	IPAddress    *string         `gorm:"size:64" json:"ip_address,omitempty"`
	UserAgent    *string         `gorm:"type:text" json:"user_agent,omitempty"`
	RequestID    *string         `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Metadata     json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	Success      *bool           `gorm:"default:true;index:idx_audit_success" json:"success"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time       `gorm:"not null;index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// BeforeCreate is called before creating a new record
func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = utils.UTCNow()
	}
	return nil
}

// Audit action constants
const (
	AuditActionCampaignCreated        = "campaign_created"
	AuditActionCampaignUpdated        = "campaign_updated"
	AuditActionCampaignDeleted        = "campaign_deleted"
	AuditActionAdPlatformConnected    = "ad_platform_connected"
	AuditActionAdPlatformConnectFail  = "ad_platform_connect_failed"
	AuditActionAdPlatformDisconnected = "ad_platform_disconnected"
	AuditActionAdPlatformSelection    = "ad_platform_selection_updated"
	AuditActionPaymentConfirmed       = "ad_platform_payment_confirmed"
	AuditActionDeliveryStepSucceeded  = "delivery_step_succeeded"
	AuditActionDeliveryStepFailed     = "delivery_step_failed"
	AuditActionDeliveryCompleted      = "delivery_completed"
	AuditActionDeliveryReset          = "delivery_reset"
	AuditActionDeliveryPublished      = "delivery_published"
	AuditActionDeliveryPublishFailed  = "delivery_publish_failed"
)

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	ID            *uint
	CustomerID    *uint
	CampaignID    *uint
	Action        *string
	Success       *bool
	RequestID     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (a *AuditLog) IsFailed() bool {
	return a.Success != nil && !*a.Success
}
