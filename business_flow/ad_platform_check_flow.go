package businessflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/adbridge/app/dto"
	"github.com/amirphl/adbridge/app/services"
	"github.com/amirphl/adbridge/models"
	"github.com/amirphl/adbridge/repository"
	"gorm.io/gorm"
)

// AdPlatformCheckFlow runs the preflight checks against the stored selection.
// Check failures are results, not errors.
type AdPlatformCheckFlow interface {
	Compatibility(ctx context.Context, req *dto.AdPlatformCampaignRequest) (*dto.CompatibilityResponse, error)
	AdminAccess(ctx context.Context, req *dto.AdPlatformCampaignRequest) (*dto.AdminAccessResponse, error)
	PaymentEligibility(ctx context.Context, req *dto.AdPlatformCampaignRequest) (*dto.PaymentEligibilityResponse, error)
	ConfirmPaymentConnected(ctx context.Context, req *dto.AdPlatformCampaignRequest, metadata *ClientMetadata) (*dto.ConfirmPaymentConnectedResponse, error)
}

// AdPlatformCheckFlowImpl implements AdPlatformCheckFlow
type AdPlatformCheckFlowImpl struct {
	campaignRepo  repository.CampaignRepository
	connRepo      repository.AdPlatformConnectionRepository
	auditRepo     repository.AuditLogRepository
	sessions      sessionLoader
	compatibility CompatibilityValidator
	adminAccess   AdminAccessVerifier
	payment       PaymentEligibilityChecker
	locker        CampaignLocker
}

// NewAdPlatformCheckFlow creates a new check flow
func NewAdPlatformCheckFlow(
	campaignRepo repository.CampaignRepository,
	connRepo repository.AdPlatformConnectionRepository,
	auditRepo repository.AuditLogRepository,
	cipher services.TokenCipher,
	compatibility CompatibilityValidator,
	adminAccess AdminAccessVerifier,
	payment PaymentEligibilityChecker,
	locker CampaignLocker,
) AdPlatformCheckFlow {
	return &AdPlatformCheckFlowImpl{
		campaignRepo:  campaignRepo,
		connRepo:      connRepo,
		auditRepo:     auditRepo,
		sessions:      sessionLoader{connRepo: connRepo, cipher: cipher},
		compatibility: compatibility,
		adminAccess:   adminAccess,
		payment:       payment,
		locker:        locker,
	}
}

func (f *AdPlatformCheckFlowImpl) session(ctx context.Context, req *dto.AdPlatformCampaignRequest) (*adPlatformSession, error) {
	campaign, err := getOwnedCampaign(ctx, f.campaignRepo, req.CampaignUUID, req.CustomerID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	session, err := f.sessions.load(ctx, campaign)
	if err != nil {
		return nil, tokenBusinessError(err)
	}
	return session, nil
}

// Compatibility validates the stored page and ad account, plus business and Instagram when selected
func (f *AdPlatformCheckFlowImpl) Compatibility(ctx context.Context, req *dto.AdPlatformCampaignRequest) (*dto.CompatibilityResponse, error) {
	session, err := f.session(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := session.requireSelection(true, true); err != nil {
		return nil, NewBusinessError("SELECTION_INCOMPLETE", "Select a page and an ad account first", err)
	}

	result, err := f.compatibility.ValidateSelection(ctx, session.token, selectionOf(session))
	if err != nil {
		return nil, NewBusinessError("AD_PLATFORM_REQUEST_FAILED", "Failed to validate selection", err)
	}

	return ToCompatibilityResponse(result), nil
}

// AdminAccess reports the connected user's roles on the stored business and ad account
func (f *AdPlatformCheckFlowImpl) AdminAccess(ctx context.Context, req *dto.AdPlatformCampaignRequest) (*dto.AdminAccessResponse, error) {
	session, err := f.session(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := session.requireSelection(false, true); err != nil {
		return nil, NewBusinessError("SELECTION_INCOMPLETE", "Select an ad account first", err)
	}

	result, err := f.adminAccess.Verify(ctx, session.token, session.fbUserID(), session.businessID(), session.adAccountID())
	if err != nil {
		return nil, NewBusinessError("AD_PLATFORM_REQUEST_FAILED", "Failed to verify admin access", err)
	}

	return &dto.AdminAccessResponse{
		AdminConnected: result.AdminConnected,
		FBUserID:       result.FBUserID,
		BusinessRole:   string(result.BusinessRole),
		AdAccountRole:  string(result.AdAccountRole),
		Reason:         result.Reason,
	}, nil
}

// PaymentEligibility reads the stored ad account's funding state live
func (f *AdPlatformCheckFlowImpl) PaymentEligibility(ctx context.Context, req *dto.AdPlatformCampaignRequest) (*dto.PaymentEligibilityResponse, error) {
	session, err := f.session(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := session.requireSelection(false, true); err != nil {
		return nil, NewBusinessError("SELECTION_INCOMPLETE", "Select an ad account first", err)
	}

	result, err := f.payment.CheckEligibility(ctx, session.token, session.adAccountID())
	if err != nil {
		return nil, NewBusinessError("AD_PLATFORM_REQUEST_FAILED", "Failed to check payment eligibility", err)
	}

	resp := ToPaymentEligibilityResponse(result)
	return &resp, nil
}

// ConfirmPaymentConnected re-runs the eligibility check and stores its outcome
// as the connection's payment flag
func (f *AdPlatformCheckFlowImpl) ConfirmPaymentConnected(ctx context.Context, req *dto.AdPlatformCampaignRequest, metadata *ClientMetadata) (*dto.ConfirmPaymentConnectedResponse, error) {
	campaign, err := getOwnedCampaign(ctx, f.campaignRepo, req.CampaignUUID, req.CustomerID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}

	unlock, err := f.locker.Lock(ctx, campaign.ID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOCKED", "Another operation is in progress for this campaign", err)
	}
	defer unlock()

	session, err := f.sessions.load(ctx, campaign)
	if err != nil {
		return nil, tokenBusinessError(err)
	}
	if err := session.requireSelection(false, true); err != nil {
		return nil, NewBusinessError("SELECTION_INCOMPLETE", "Select an ad account first", err)
	}
	adAccountID := session.adAccountID()

	result, err := f.payment.CheckEligibility(ctx, session.token, adAccountID)
	if err != nil {
		return nil, NewBusinessError("AD_PLATFORM_REQUEST_FAILED", "Failed to check payment eligibility", err)
	}

	// The write is conditional on the checked account still being selected
	if err := f.connRepo.SetPaymentConnected(ctx, campaign.ID, adAccountID, result.Eligible); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewBusinessError("SELECTION_CHANGED", "The ad account selection changed, check payment again", ErrSelectionChanged)
		}
		return nil, NewBusinessError("PAYMENT_FLAG_UPDATE_FAILED", "Failed to store payment state", err)
	}

	var errMsg *string
	if !result.Eligible {
		errMsg = &result.Reason
	}
	entry := campaignAudit(campaign, models.AuditActionPaymentConfirmed,
		fmt.Sprintf("Payment eligibility confirmed for ad account %s", result.AdAccountID), result.Eligible, errMsg)
	entry.metadata = map[string]any{"status": result.Status, "capabilities": result.Capabilities}
	_ = createAuditLog(ctx, f.auditRepo, entry, metadata)

	return &dto.ConfirmPaymentConnectedResponse{
		PaymentConnected: result.Eligible,
		Eligibility:      ToPaymentEligibilityResponse(result),
	}, nil
}

func selectionOf(session *adPlatformSession) AssetSelection {
	return AssetSelection{
		BusinessID:  session.businessID(),
		PageID:      session.pageID(),
		AdAccountID: session.adAccountID(),
		IGUserID:    session.igUserID(),
	}
}

// ToCompatibilityResponse converts a compatibility result to its API shape
func ToCompatibilityResponse(result CompatibilityResult) *dto.CompatibilityResponse {
	resp := &dto.CompatibilityResponse{OK: result.OK, Reason: result.Reason, Checks: make([]dto.CompatibilityCheck, 0, len(result.Checks))}
	for _, c := range result.Checks {
		resp.Checks = append(resp.Checks, dto.CompatibilityCheck{Name: c.Name, OK: c.OK, Reason: c.Reason})
	}
	return resp
}

// ToPaymentEligibilityResponse converts an eligibility result to its API shape
func ToPaymentEligibilityResponse(result PaymentEligibilityResult) dto.PaymentEligibilityResponse {
	return dto.PaymentEligibilityResponse{
		Eligible:      result.Eligible,
		AdAccountID:   result.AdAccountID,
		Status:        result.Status,
		StatusName:    result.StatusName,
		Capabilities:  result.Capabilities,
		DisableReason: result.DisableReason,
		Currency:      result.Currency,
		Reason:        result.Reason,
	}
}
