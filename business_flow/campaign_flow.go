package businessflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/adbridge/app/dto"
	"github.com/amirphl/adbridge/models"
	"github.com/amirphl/adbridge/repository"
	"gorm.io/gorm"
)

// CampaignFlow handles the local campaign that the ad platform pipeline publishes
type CampaignFlow interface {
	CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest, metadata *ClientMetadata) (*dto.CreateCampaignResponse, error)
	GetCampaign(ctx context.Context, req *dto.GetCampaignRequest) (*dto.GetCampaignResponse, error)
	UpdateCampaign(ctx context.Context, req *dto.UpdateCampaignRequest, metadata *ClientMetadata) (*dto.UpdateCampaignResponse, error)
	DeleteCampaign(ctx context.Context, req *dto.DeleteCampaignRequest, metadata *ClientMetadata) (*dto.DeleteCampaignResponse, error)
}

// CampaignFlowImpl implements the campaign business flow
type CampaignFlowImpl struct {
	campaignRepo repository.CampaignRepository
	connRepo     repository.AdPlatformConnectionRepository
	auditRepo    repository.AuditLogRepository
	locker       CampaignLocker
	db           *gorm.DB
}

// NewCampaignFlow creates a new campaign flow instance
func NewCampaignFlow(
	campaignRepo repository.CampaignRepository,
	connRepo repository.AdPlatformConnectionRepository,
	auditRepo repository.AuditLogRepository,
	locker CampaignLocker,
	db *gorm.DB,
) CampaignFlow {
	return &CampaignFlowImpl{
		campaignRepo: campaignRepo,
		connRepo:     connRepo,
		auditRepo:    auditRepo,
		locker:       locker,
		db:           db,
	}
}

// CreateCampaign stores a new campaign in initiated status
func (s *CampaignFlowImpl) CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest, metadata *ClientMetadata) (*dto.CreateCampaignResponse, error) {
	spec := models.CampaignSpec{
		Title:          trimPtr(req.Title),
		Goal:           req.Goal,
		DailyBudget:    req.DailyBudget,
		Currency:       upperPtr(req.Currency),
		Countries:      upperAll(req.Countries),
		AgeMin:         req.AgeMin,
		AgeMax:         req.AgeMax,
		Genders:        req.Genders,
		DestinationURL: trimPtr(req.DestinationURL),
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
	}
	if err := validateCampaignSpec(spec); err != nil {
		return nil, NewBusinessError("CAMPAIGN_VALIDATION_FAILED", "Campaign validation failed", err)
	}

	campaign := &models.Campaign{
		CustomerID: req.CustomerID,
		Status:     models.CampaignStatusInitiated,
		Spec:       spec,
		State:      models.CampaignState{},
	}
	if err := s.campaignRepo.Save(ctx, campaign); err != nil {
		errMsg := fmt.Sprintf("Campaign creation failed: %s", err.Error())
		_ = createAuditLog(ctx, s.auditRepo, auditEntry{
			customerID:  &req.CustomerID,
			action:      models.AuditActionCampaignCreated,
			description: errMsg,
			errorMsg:    &errMsg,
		}, metadata)
		return nil, NewBusinessError("CAMPAIGN_CREATION_FAILED", "Campaign creation failed", err)
	}

	msg := fmt.Sprintf("Campaign created successfully: %s", campaign.UUID.String())
	_ = createAuditLog(ctx, s.auditRepo, campaignAudit(campaign, models.AuditActionCampaignCreated, msg, true, nil), metadata)

	return &dto.CreateCampaignResponse{
		Message:   "Campaign created successfully",
		ID:        campaign.ID,
		UUID:      campaign.UUID.String(),
		Status:    string(campaign.Status),
		CreatedAt: campaign.CreatedAt.Format(time.RFC3339),
	}, nil
}

// GetCampaign returns the campaign spec with its delivery stage
func (s *CampaignFlowImpl) GetCampaign(ctx context.Context, req *dto.GetCampaignRequest) (*dto.GetCampaignResponse, error) {
	campaign, err := getOwnedCampaign(ctx, s.campaignRepo, req.UUID, req.CustomerID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}

	state, err := campaign.DeliveryState()
	if err != nil {
		return nil, NewBusinessError("DELIVERY_STATE_LOOKUP_FAILED", "Failed to load delivery state", err)
	}

	spec := campaign.Spec
	return &dto.GetCampaignResponse{
		UUID:           campaign.UUID.String(),
		Status:         string(campaign.Status),
		CreatedAt:      campaign.CreatedAt,
		UpdatedAt:      campaign.UpdatedAt,
		Title:          spec.Title,
		Goal:           spec.Goal,
		DailyBudget:    spec.DailyBudget,
		Currency:       spec.Currency,
		Countries:      spec.Countries,
		AgeMin:         spec.AgeMin,
		AgeMax:         spec.AgeMax,
		Genders:        spec.Genders,
		DestinationURL: spec.DestinationURL,
		StartTime:      spec.StartTime,
		EndTime:        spec.EndTime,
		DeliveryStage:  string(state.Stage()),
	}, nil
}

// UpdateCampaign patches the spec. Published and archived campaigns are frozen.
func (s *CampaignFlowImpl) UpdateCampaign(ctx context.Context, req *dto.UpdateCampaignRequest, metadata *ClientMetadata) (*dto.UpdateCampaignResponse, error) {
	if !hasCampaignUpdate(req) {
		return nil, NewBusinessError("CAMPAIGN_UPDATE_VALIDATION_FAILED", "Campaign update validation failed", ErrCampaignUpdateRequired)
	}

	campaign, err := getOwnedCampaign(ctx, s.campaignRepo, req.UUID, req.CustomerID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	if !campaign.IsEditable() {
		return nil, NewBusinessError("CAMPAIGN_UPDATE_NOT_ALLOWED", "Campaign cannot be updated in current status", ErrCampaignUpdateNotAllowed)
	}

	unlock, err := s.locker.Lock(ctx, campaign.ID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOCKED", "Another operation is in progress for this campaign", err)
	}
	defer unlock()

	// Merge onto the latest spec; a concurrent update or publish may have landed while waiting
	campaign, err = reloadCampaign(ctx, s.campaignRepo, campaign.ID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	if !campaign.IsEditable() {
		return nil, NewBusinessError("CAMPAIGN_UPDATE_NOT_ALLOWED", "Campaign cannot be updated in current status", ErrCampaignUpdateNotAllowed)
	}

	spec := campaign.Spec
	if req.Title != nil {
		spec.Title = trimPtr(req.Title)
	}
	if req.Goal != nil {
		spec.Goal = req.Goal
	}
	if req.DailyBudget != nil {
		spec.DailyBudget = req.DailyBudget
	}
	if req.Currency != nil {
		spec.Currency = upperPtr(req.Currency)
	}
	if req.Countries != nil {
		spec.Countries = upperAll(req.Countries)
	}
	if req.AgeMin != nil {
		spec.AgeMin = req.AgeMin
	}
	if req.AgeMax != nil {
		spec.AgeMax = req.AgeMax
	}
	if req.Genders != nil {
		spec.Genders = req.Genders
	}
	if req.DestinationURL != nil {
		spec.DestinationURL = trimPtr(req.DestinationURL)
	}
	if req.StartTime != nil {
		spec.StartTime = req.StartTime
	}
	if req.EndTime != nil {
		spec.EndTime = req.EndTime
	}
	if err := validateCampaignSpec(spec); err != nil {
		return nil, NewBusinessError("CAMPAIGN_UPDATE_VALIDATION_FAILED", "Campaign update validation failed", err)
	}

	campaign.Spec = spec
	if err := s.campaignRepo.Update(ctx, campaign); err != nil {
		errMsg := fmt.Sprintf("Campaign update failed: %s", err.Error())
		_ = createAuditLog(ctx, s.auditRepo, campaignAudit(campaign, models.AuditActionCampaignUpdated, errMsg, false, &errMsg), metadata)
		return nil, NewBusinessError("CAMPAIGN_UPDATE_FAILED", "Campaign update failed", err)
	}

	msg := fmt.Sprintf("Campaign updated successfully: %s", campaign.UUID.String())
	_ = createAuditLog(ctx, s.auditRepo, campaignAudit(campaign, models.AuditActionCampaignUpdated, msg, true, nil), metadata)

	return &dto.UpdateCampaignResponse{Message: "Campaign updated successfully"}, nil
}

// DeleteCampaign removes the campaign and its connection together.
// Remote objects already created on the ad platform are left alone.
func (s *CampaignFlowImpl) DeleteCampaign(ctx context.Context, req *dto.DeleteCampaignRequest, metadata *ClientMetadata) (*dto.DeleteCampaignResponse, error) {
	campaign, err := getOwnedCampaign(ctx, s.campaignRepo, req.UUID, req.CustomerID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}

	unlock, err := s.locker.Lock(ctx, campaign.ID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOCKED", "Another operation is in progress for this campaign", err)
	}
	defer unlock()

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		if err := s.connRepo.DeleteByCampaignID(txCtx, campaign.ID); err != nil {
			return err
		}
		return s.campaignRepo.Delete(txCtx, campaign.ID)
	})
	if err != nil {
		errMsg := fmt.Sprintf("Campaign deletion failed: %s", err.Error())
		_ = createAuditLog(ctx, s.auditRepo, campaignAudit(campaign, models.AuditActionCampaignDeleted, errMsg, false, &errMsg), metadata)
		return nil, NewBusinessError("CAMPAIGN_DELETION_FAILED", "Campaign deletion failed", err)
	}

	msg := fmt.Sprintf("Campaign deleted: %s", campaign.UUID.String())
	_ = createAuditLog(ctx, s.auditRepo, campaignAudit(campaign, models.AuditActionCampaignDeleted, msg, true, nil), metadata)

	return &dto.DeleteCampaignResponse{Message: "Campaign deleted successfully"}, nil
}

func validateCampaignSpec(spec models.CampaignSpec) error {
	if spec.AgeMin != nil && spec.AgeMax != nil && *spec.AgeMin > *spec.AgeMax {
		return ErrCampaignAgeRangeInvalid
	}
	if spec.StartTime != nil && spec.EndTime != nil && !spec.EndTime.After(*spec.StartTime) {
		return ErrCampaignScheduleInvalid
	}
	return nil
}

func hasCampaignUpdate(req *dto.UpdateCampaignRequest) bool {
	return req.Title != nil || req.Goal != nil || req.DailyBudget != nil || req.Currency != nil ||
		req.Countries != nil || req.AgeMin != nil || req.AgeMax != nil || req.Genders != nil ||
		req.DestinationURL != nil || req.StartTime != nil || req.EndTime != nil
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func upperPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.ToUpper(strings.TrimSpace(*s))
	return &v
}

func upperAll(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToUpper(strings.TrimSpace(v)))
	}
	return out
}
