package dto

import "time"

// OrchestrateDeliveryRequest carries the finished creative for the remote chain.
// Image and copy come from the creative step of the wizard.
type OrchestrateDeliveryRequest struct {
	CampaignUUID     string `json:"-"`
	CustomerID       uint   `json:"-"`
	ImageURL         string `json:"image_url,omitempty" validate:"required_without=ImageHash,max=2048"`
	ImageHash        string `json:"image_hash,omitempty" validate:"omitempty,max=128"`
	Message          string `json:"message" validate:"required,max=2000"`
	Headline         string `json:"headline,omitempty" validate:"omitempty,max=255"`
	Description      string `json:"description,omitempty" validate:"omitempty,max=255"`
	CallToActionType string `json:"call_to_action_type,omitempty" validate:"omitempty,max=64"`
	LeadFormID       string `json:"lead_form_id,omitempty" validate:"omitempty,numeric,max=64"`
}

// DeliveryStateResponse is the stored remote object chain of a campaign
type DeliveryStateResponse struct {
	CampaignUUID   string     `json:"campaign_uuid"`
	Stage          string     `json:"stage"`
	Complete       bool       `json:"complete"`
	CampaignID     *string    `json:"campaign_id,omitempty"`
	AdSetID        *string    `json:"adset_id,omitempty"`
	CreativeID     *string    `json:"creative_id,omitempty"`
	AdID           *string    `json:"ad_id,omitempty"`
	ImageHash      *string    `json:"image_hash,omitempty"`
	LeadFormID     *string    `json:"lead_form_id,omitempty"`
	CampaignStatus *string    `json:"campaign_status,omitempty"`
	AdStatus       *string    `json:"ad_status,omitempty"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	LastFailedStep *string    `json:"last_failed_step,omitempty"`
	LastError      *string    `json:"last_error,omitempty"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

// OrchestrateDeliveryResponse reports the chain after a run and which steps it created
type OrchestrateDeliveryResponse struct {
	Message      string                `json:"message"`
	CreatedSteps []string              `json:"created_steps"`
	SkippedSteps []string              `json:"skipped_steps"`
	State        DeliveryStateResponse `json:"state"`
}

// PublishDeliveryRequest activates a previously created campaign or ad
type PublishDeliveryRequest struct {
	CampaignUUID string `json:"-"`
	CustomerID   uint   `json:"-"`
	TargetType   string `json:"target_type" validate:"required,oneof=campaign ad"`
	TargetID     string `json:"target_id" validate:"required,numeric,max=64"`
}

// PublishDeliveryResponse represents the state after a publish
type PublishDeliveryResponse struct {
	Message string                `json:"message"`
	State   DeliveryStateResponse `json:"state"`
}

// ResetDeliveryResponse represents the response to an explicit start-over
type ResetDeliveryResponse struct {
	Message string `json:"message"`
}

// DeliveryReportRequest filters the admin delivery report
type DeliveryReportRequest struct {
	StartDate *time.Time `query:"start_date"`
	EndDate   *time.Time `query:"end_date"`
	Status    *string    `query:"status" validate:"omitempty,oneof=initiated in-progress published archived"`
	Limit     int        `query:"limit" validate:"omitempty,min=1,max=10000"`
}

// DeliveryReportRow is one campaign line of the admin delivery report
type DeliveryReportRow struct {
	CampaignUUID     string     `json:"campaign_uuid"`
	CustomerID       uint       `json:"customer_id"`
	Title            string     `json:"title"`
	Status           string     `json:"status"`
	Stage            string     `json:"stage"`
	AdAccountID      string     `json:"ad_account_id,omitempty"`
	PageID           string     `json:"page_id,omitempty"`
	RemoteCampaignID string     `json:"remote_campaign_id,omitempty"`
	RemoteAdID       string     `json:"remote_ad_id,omitempty"`
	PaymentConnected bool       `json:"payment_connected"`
	LastFailedStep   string     `json:"last_failed_step,omitempty"`
	LastError        string     `json:"last_error,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	PublishedAt      *time.Time `json:"published_at,omitempty"`
}
