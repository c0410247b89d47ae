package dto

import "time"

// AdPlatformCampaignRequest identifies a campaign owned by the caller
type AdPlatformCampaignRequest struct {
	CampaignUUID string `json:"-"`
	CustomerID   uint   `json:"-"`
}

// ConnectAdPlatformRequest exchanges a short-lived user token for a long-lived one
type ConnectAdPlatformRequest struct {
	CampaignUUID    string `json:"-"`
	CustomerID      uint   `json:"-"`
	ShortLivedToken string `json:"short_lived_token" validate:"required,min=10,max=1024"`
	FBUserID        string `json:"fb_user_id,omitempty" validate:"omitempty,numeric,max=64"`
}

// ConnectAdPlatformResponse represents the response to a successful connect
type ConnectAdPlatformResponse struct {
	Message        string    `json:"message"`
	FBUserID       string    `json:"fb_user_id"`
	TokenExpiresAt time.Time `json:"token_expires_at"`
}

// DisconnectAdPlatformResponse represents the response to a disconnect
type DisconnectAdPlatformResponse struct {
	Message       string `json:"message"`
	RemoteRevoked bool   `json:"remote_revoked"`
}

// AdPlatformConnectionResponse summarizes the connection and the selected assets
type AdPlatformConnectionResponse struct {
	Connected                 bool       `json:"connected"`
	TokenExpired              bool       `json:"token_expired"`
	TokenExpiresAt            *time.Time `json:"token_expires_at,omitempty"`
	FBUserID                  *string    `json:"fb_user_id,omitempty"`
	BusinessID                *string    `json:"business_id,omitempty"`
	BusinessName              *string    `json:"business_name,omitempty"`
	PageID                    *string    `json:"page_id,omitempty"`
	PageName                  *string    `json:"page_name,omitempty"`
	IGUserID                  *string    `json:"ig_user_id,omitempty"`
	IGUsername                *string    `json:"ig_username,omitempty"`
	AdAccountID               *string    `json:"ad_account_id,omitempty"`
	AdAccountName             *string    `json:"ad_account_name,omitempty"`
	AdAccountPaymentConnected bool       `json:"ad_account_payment_connected"`
}

// ListAdAccountsRequest lists ad accounts, optionally restricted to those owned by a business
type ListAdAccountsRequest struct {
	CampaignUUID string `json:"-"`
	CustomerID   uint   `json:"-"`
	BusinessID   string `query:"business_id" validate:"omitempty,numeric,max=64"`
}

type BusinessItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type PageItem struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Category          string   `json:"category,omitempty"`
	Tasks             []string `json:"tasks,omitempty"`
	InstagramUserID   string   `json:"instagram_user_id,omitempty"`
	InstagramUsername string   `json:"instagram_username,omitempty"`
}

type AdAccountItem struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	AccountStatus int    `json:"account_status"`
	StatusName    string `json:"status_name"`
	Currency      string `json:"currency,omitempty"`
	BusinessID    string `json:"business_id,omitempty"`
}

type InstagramAccountItem struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type ListBusinessesResponse struct {
	Businesses []BusinessItem `json:"businesses"`
}

type ListPagesResponse struct {
	Pages []PageItem `json:"pages"`
}

type ListAdAccountsResponse struct {
	AdAccounts []AdAccountItem `json:"ad_accounts"`
}

type ListInstagramAccountsResponse struct {
	InstagramAccounts []InstagramAccountItem `json:"instagram_accounts"`
}

// UpdateSelectionRequest is a partial selection write. Omitted fields are kept.
type UpdateSelectionRequest struct {
	CampaignUUID  string  `json:"-"`
	CustomerID    uint    `json:"-"`
	BusinessID    *string `json:"business_id,omitempty" validate:"omitempty,numeric,max=64"`
	BusinessName  *string `json:"business_name,omitempty" validate:"omitempty,max=255"`
	PageID        *string `json:"page_id,omitempty" validate:"omitempty,numeric,max=64"`
	PageName      *string `json:"page_name,omitempty" validate:"omitempty,max=255"`
	IGUserID      *string `json:"ig_user_id,omitempty" validate:"omitempty,numeric,max=64"`
	IGUsername    *string `json:"ig_username,omitempty" validate:"omitempty,max=255"`
	AdAccountID   *string `json:"ad_account_id,omitempty" validate:"omitempty,max=64"`
	AdAccountName *string `json:"ad_account_name,omitempty" validate:"omitempty,max=255"`
}

// CompatibilityCheck is one structural check of the selection
type CompatibilityCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// CompatibilityResponse is the combined result of every structural check
type CompatibilityResponse struct {
	OK     bool                 `json:"ok"`
	Reason string               `json:"reason,omitempty"`
	Checks []CompatibilityCheck `json:"checks"`
}

// AdminAccessResponse reports the caller's roles on the selected assets
type AdminAccessResponse struct {
	AdminConnected bool   `json:"admin_connected"`
	FBUserID       string `json:"fb_user_id"`
	BusinessRole   string `json:"business_role"`
	AdAccountRole  string `json:"ad_account_role"`
	Reason         string `json:"reason,omitempty"`
}

// PaymentEligibilityResponse reports whether the ad account can fund spend
type PaymentEligibilityResponse struct {
	Eligible      bool     `json:"eligible"`
	AdAccountID   string   `json:"ad_account_id"`
	Status        int      `json:"status"`
	StatusName    string   `json:"status_name"`
	Capabilities  []string `json:"capabilities"`
	DisableReason int      `json:"disable_reason,omitempty"`
	Currency      string   `json:"currency,omitempty"`
	Reason        string   `json:"reason,omitempty"`
}

// ConfirmPaymentConnectedResponse represents the stored payment flag after a fresh check
type ConfirmPaymentConnectedResponse struct {
	PaymentConnected bool                       `json:"payment_connected"`
	Eligibility      PaymentEligibilityResponse `json:"eligibility"`
}
