// Package businessflow contains the business logic for the application.
package businessflow

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/amirphl/adbridge/app/dto"
	"github.com/amirphl/adbridge/models"
	"github.com/amirphl/adbridge/repository"
	"github.com/amirphl/adbridge/utils"
)

// ClientMetadata holds all client-related information for audit logging
type ClientMetadata struct {
	IPAddress  string            `json:"ip_address"`
	UserAgent  string            `json:"user_agent"`
	RequestID  string            `json:"request_id,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Additional: make(map[string]string),
	}
}

// AddAdditional adds additional custom information to the metadata
func (cm *ClientMetadata) AddAdditional(key, value string) {
	if cm.Additional == nil {
		cm.Additional = make(map[string]string)
	}
	cm.Additional[key] = value
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// getOwnedCampaign loads a campaign and checks that customerID owns it
func getOwnedCampaign(ctx context.Context, campaignRepo repository.CampaignRepository, campaignUUID string, customerID uint) (*models.Campaign, error) {
	if strings.TrimSpace(campaignUUID) == "" {
		return nil, ErrCampaignUUIDRequired
	}

	campaign, err := campaignRepo.ByUUID(ctx, campaignUUID)
	if err != nil {
		if errors.Is(err, utils.ErrInvalidUUID) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}
	if campaign == nil {
		return nil, ErrCampaignNotFound
	}
	if campaign.CustomerID != customerID {
		return nil, ErrCampaignAccessDenied
	}

	return campaign, nil
}

// reloadCampaign re-reads a campaign once its lock is held, so changes made by
// the previous lock holder are seen. A campaign deleted meanwhile is not found.
func reloadCampaign(ctx context.Context, campaignRepo repository.CampaignRepository, id uint) (*models.Campaign, error) {
	campaign, err := campaignRepo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return nil, ErrCampaignNotFound
	}
	return campaign, nil
}

// auditEntry describes one audit log row
type auditEntry struct {
	customerID  *uint
	campaignID  *uint
	action      string
	description string
	success     bool
	errorMsg    *string
	metadata    map[string]any
}

// createAuditLog persists an audit row. Failures are returned but callers
// never let them change the outcome of the audited operation.
func createAuditLog(ctx context.Context, auditRepo repository.AuditLogRepository, entry auditEntry, client *ClientMetadata) error {
	ipAddress := ""
	userAgent := ""
	if client != nil {
		ipAddress = client.IPAddress
		userAgent = client.UserAgent
	}

	audit := &models.AuditLog{
		CustomerID:   entry.customerID,
		CampaignID:   entry.campaignID,
		Action:       entry.action,
		Description:  &entry.description,
		Success:      utils.ToPtr(entry.success),
		IPAddress:    &ipAddress,
		UserAgent:    &userAgent,
		ErrorMessage: entry.errorMsg,
	}

	if len(entry.metadata) > 0 {
		if raw, err := json.Marshal(entry.metadata); err == nil {
			audit.Metadata = raw
		}
	}

	// Extract request ID from context if available
	requestID := ctx.Value(utils.RequestIDKey)
	if requestID != nil {
		requestIDStr, ok := requestID.(string)
		if ok {
			audit.RequestID = &requestIDStr
		}
	} else if client != nil && client.RequestID != "" {
		audit.RequestID = &client.RequestID
	}

	return auditRepo.Save(ctx, audit)
}

// campaignAudit builds an audit entry scoped to a campaign and its owner
func campaignAudit(campaign *models.Campaign, action, description string, success bool, errorMsg *string) auditEntry {
	return auditEntry{
		customerID:  &campaign.CustomerID,
		campaignID:  &campaign.ID,
		action:      action,
		description: description,
		success:     success,
		errorMsg:    errorMsg,
	}
}

// ToDeliveryStateResponse converts a stored delivery record to its API shape
func ToDeliveryStateResponse(campaignUUID string, state models.DeliveryState) dto.DeliveryStateResponse {
	return dto.DeliveryStateResponse{
		CampaignUUID:   campaignUUID,
		Stage:          string(state.Stage()),
		Complete:       state.Complete(),
		CampaignID:     state.CampaignID,
		AdSetID:        state.AdSetID,
		CreativeID:     state.CreativeID,
		AdID:           state.AdID,
		ImageHash:      state.ImageHash,
		LeadFormID:     state.LeadFormID,
		CampaignStatus: state.CampaignStatus,
		AdStatus:       state.AdStatus,
		PublishedAt:    state.PublishedAt,
		LastFailedStep: nonEmpty(state.LastFailedStep),
		LastError:      nonEmpty(state.LastError),
		UpdatedAt:      state.UpdatedAt,
	}
}

// nonEmpty maps an empty string to nil. Cleared aux fields are stored as "".
func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
