package models

import (
	"time"

	"github.com/amirphl/adbridge/utils"
	"gorm.io/gorm"
)

// AdPlatformConnection links one local campaign to an ad platform identity
// and the assets selected for it. A nil LongLivedToken means disconnected.
// Token columns hold ciphertext; plaintext never reaches the database.
type AdPlatformConnection struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	CampaignID uint `gorm:"not null;uniqueIndex:uk_ad_platform_connections_campaign_id" json:"campaign_id"`

	FBUserID       *string    `gorm:"size:64" json:"fb_user_id,omitempty"`
	LongLivedToken *string    `gorm:"type:text" json:"-"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`

	SelectedBusinessID      *string `gorm:"size:64" json:"selected_business_id,omitempty"`
	SelectedBusinessName    *string `gorm:"size:255" json:"selected_business_name,omitempty"`
	SelectedPageID          *string `gorm:"size:64" json:"selected_page_id,omitempty"`
	SelectedPageName        *string `gorm:"size:255" json:"selected_page_name,omitempty"`
	SelectedPageAccessToken *string `gorm:"type:text" json:"-"`
	SelectedIGUserID        *string `gorm:"column:selected_ig_user_id;size:64" json:"selected_ig_user_id,omitempty"`
	SelectedIGUsername      *string `gorm:"column:selected_ig_username;size:255" json:"selected_ig_username,omitempty"`
	SelectedAdAccountID     *string `gorm:"size:64" json:"selected_ad_account_id,omitempty"`
	SelectedAdAccountName   *string `gorm:"size:255" json:"selected_ad_account_name,omitempty"`

	AdAccountPaymentConnected bool `gorm:"not null;default:false" json:"ad_account_payment_connected"`

	CreatedAt time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	Campaign *Campaign `gorm:"foreignKey:CampaignID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for the model
func (AdPlatformConnection) TableName() string {
	return "ad_platform_connections"
}

// BeforeCreate is called before creating a new record
func (c *AdPlatformConnection) BeforeCreate(tx *gorm.DB) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// HasToken reports whether a long-lived token is stored
func (c *AdPlatformConnection) HasToken() bool {
	return c != nil && c.LongLivedToken != nil && *c.LongLivedToken != ""
}

// IsTokenExpired reports whether the stored token expired at or before now
func (c *AdPlatformConnection) IsTokenExpired(now time.Time) bool {
	if c == nil || c.TokenExpiresAt == nil {
		return false
	}
	return !now.Before(*c.TokenExpiresAt)
}

// ConnectionSelection is a partial selection write. Nil fields are left untouched.
type ConnectionSelection struct {
	BusinessID      *string
	BusinessName    *string
	PageID          *string
	PageName        *string
	PageAccessToken *string
	IGUserID        *string
	IGUsername      *string
	AdAccountID     *string
	AdAccountName   *string
}

// IsEmpty reports whether the selection carries no field at all
func (s ConnectionSelection) IsEmpty() bool {
	return s.BusinessID == nil && s.BusinessName == nil &&
		s.PageID == nil && s.PageName == nil && s.PageAccessToken == nil &&
		s.IGUserID == nil && s.IGUsername == nil &&
		s.AdAccountID == nil && s.AdAccountName == nil
}

// AdPlatformConnectionFilter represents filter criteria for connections
type AdPlatformConnectionFilter struct {
	CampaignID          *uint
	FBUserID            *string
	SelectedAdAccountID *string
	Connected           *bool
}
