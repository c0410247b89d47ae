package businessflow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/amirphl/adbridge/app/dto"
	"github.com/amirphl/adbridge/app/services"
	"github.com/amirphl/adbridge/config"
	"github.com/amirphl/adbridge/models"
	"github.com/amirphl/adbridge/repository"
	"github.com/amirphl/adbridge/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery pipeline steps, in creation order
const (
	DeliveryStepCampaign = "campaign"
	DeliveryStepAdSet    = "adset"
	DeliveryStepImage    = "image"
	DeliveryStepLeadForm = "lead_form"
	DeliveryStepCreative = "creative"
	DeliveryStepAd       = "ad"
)

// Publish targets
const (
	PublishTargetCampaign = "campaign"
	PublishTargetAd       = "ad"
)

var pipelineStepsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "adbridge_pipeline_steps_total",
		Help: "Delivery pipeline steps by outcome (created, skipped, failed)",
	},
	[]string{"step", "outcome"},
)

// leadFormQuestions are the prefilled fields of generated lead forms
var leadFormQuestions = []string{"FULL_NAME", "EMAIL", "PHONE"}

// DeliveryFlow creates the remote campaign chain of a local campaign and
// later activates it. Every remote object is created PAUSED.
type DeliveryFlow interface {
	Orchestrate(ctx context.Context, req *dto.OrchestrateDeliveryRequest, metadata *ClientMetadata) (*dto.OrchestrateDeliveryResponse, error)
	Publish(ctx context.Context, req *dto.PublishDeliveryRequest, metadata *ClientMetadata) (*dto.PublishDeliveryResponse, error)
	GetDeliveryState(ctx context.Context, req *dto.AdPlatformCampaignRequest) (*dto.DeliveryStateResponse, error)
	ResetDelivery(ctx context.Context, req *dto.AdPlatformCampaignRequest, metadata *ClientMetadata) (*dto.ResetDeliveryResponse, error)
}

// DeliveryFlowImpl implements DeliveryFlow
type DeliveryFlowImpl struct {
	campaignRepo  repository.CampaignRepository
	auditRepo     repository.AuditLogRepository
	graph         services.GraphClient
	sessions      sessionLoader
	compatibility CompatibilityValidator
	locker        CampaignLocker
	cfg           config.AdPlatformConfig
}

// NewDeliveryFlow creates a new delivery flow
func NewDeliveryFlow(
	campaignRepo repository.CampaignRepository,
	connRepo repository.AdPlatformConnectionRepository,
	auditRepo repository.AuditLogRepository,
	graph services.GraphClient,
	cipher services.TokenCipher,
	compatibility CompatibilityValidator,
	locker CampaignLocker,
	cfg config.AdPlatformConfig,
) DeliveryFlow {
	return &DeliveryFlowImpl{
		campaignRepo:  campaignRepo,
		auditRepo:     auditRepo,
		graph:         graph,
		sessions:      sessionLoader{connRepo: connRepo, cipher: cipher},
		compatibility: compatibility,
		locker:        locker,
		cfg:           cfg,
	}
}

// deliveryRun carries one orchestration attempt
type deliveryRun struct {
	session  *adPlatformSession
	req      *dto.OrchestrateDeliveryRequest
	metadata *ClientMetadata
	state    models.DeliveryState
	created  []string
	skipped  []string
}

// Orchestrate creates whatever part of the chain is still missing. Stored ids
// are never re-created, so a failed run can simply be repeated.
func (f *DeliveryFlowImpl) Orchestrate(ctx context.Context, req *dto.OrchestrateDeliveryRequest, metadata *ClientMetadata) (*dto.OrchestrateDeliveryResponse, error) {
	if err := validateImageSource(req); err != nil {
		return nil, err
	}

	campaign, err := getOwnedCampaign(ctx, f.campaignRepo, req.CampaignUUID, req.CustomerID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}

	unlock, err := f.locker.Lock(ctx, campaign.ID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOCKED", "Another operation is in progress for this campaign", err)
	}
	defer unlock()

	// Everything below is read under the lock: a run that just finished may
	// have stored ids, and the spec or the connection may have changed
	campaign, err = reloadCampaign(ctx, f.campaignRepo, campaign.ID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	session, err := f.sessions.load(ctx, campaign)
	if err != nil {
		return nil, tokenBusinessError(err)
	}
	if err := session.requireSelection(true, true); err != nil {
		return nil, NewBusinessError("SELECTION_INCOMPLETE", "Select a page and an ad account first", err)
	}

	state, err := f.campaignRepo.DeliveryData(ctx, campaign.ID)
	if err != nil {
		return nil, NewBusinessError("DELIVERY_STATE_LOOKUP_FAILED", "Failed to load delivery state", err)
	}
	if err := state.CheckOrdering(); err != nil {
		return nil, NewBusinessError("DELIVERY_STATE_CORRUPT", "Stored delivery state is inconsistent, reset delivery to start over", err)
	}

	if !state.Complete() {
		if err := f.checkPrerequisites(campaign, state, req); err != nil {
			return nil, err
		}
		if err := f.preflight(ctx, session); err != nil {
			return nil, err
		}
	}

	run := &deliveryRun{session: session, req: req, metadata: metadata, state: state}
	steps := []struct {
		name   string
		done   func(models.DeliveryState) bool
		create func(context.Context, *deliveryRun) (models.DeliveryState, error)
	}{
		{DeliveryStepCampaign, func(s models.DeliveryState) bool { return isSet(s.CampaignID) }, f.createCampaign},
		{DeliveryStepAdSet, func(s models.DeliveryState) bool { return isSet(s.AdSetID) }, f.createAdSet},
		{DeliveryStepImage, f.imageReady(req), f.uploadImage},
		{DeliveryStepLeadForm, f.leadFormReady(campaign, req), f.createLeadForm},
		{DeliveryStepCreative, func(s models.DeliveryState) bool { return isSet(s.CreativeID) }, f.createCreative},
		{DeliveryStepAd, func(s models.DeliveryState) bool { return isSet(s.AdID) }, f.createAd},
	}

	for _, step := range steps {
		if step.done(run.state) {
			run.skipped = append(run.skipped, step.name)
			pipelineStepsTotal.WithLabelValues(step.name, "skipped").Inc()
			continue
		}
		if err := f.runStep(ctx, run, step.name, step.create); err != nil {
			return nil, err
		}
	}

	if len(run.created) > 0 {
		if campaign.Status == models.CampaignStatusInitiated {
			if err := f.campaignRepo.UpdateStatus(ctx, campaign.ID, models.CampaignStatusInProgress); err != nil {
				return nil, NewBusinessError("CAMPAIGN_STATUS_UPDATE_FAILED", "Failed to update campaign status", err)
			}
		}
		entry := campaignAudit(campaign, models.AuditActionDeliveryCompleted,
			fmt.Sprintf("Remote campaign chain created for campaign %s", campaign.UUID), true, nil)
		entry.metadata = map[string]any{
			"created_steps": run.created,
			"campaign_id":   utils.Deref(run.state.CampaignID),
			"ad_id":         utils.Deref(run.state.AdID),
		}
		_ = createAuditLog(ctx, f.auditRepo, entry, metadata)
	}

	message := "Remote campaign chain created in paused state"
	if len(run.created) == 0 {
		message = "Remote campaign chain already exists"
	}
	return &dto.OrchestrateDeliveryResponse{
		Message:      message,
		CreatedSteps: nonNil(run.created),
		SkippedSteps: nonNil(run.skipped),
		State:        ToDeliveryStateResponse(campaign.UUID.String(), run.state),
	}, nil
}

// runStep issues one remote creation and stores its id. On failure only the
// aux error fields are written; the chain ids stay as they were.
func (f *DeliveryFlowImpl) runStep(ctx context.Context, run *deliveryRun, step string, create func(context.Context, *deliveryRun) (models.DeliveryState, error)) error {
	campaign := run.session.campaign

	patch, err := create(ctx, run)
	if err != nil {
		pipelineStepsTotal.WithLabelValues(step, "failed").Inc()
		errMsg := err.Error()
		if merged, mergeErr := f.campaignRepo.MergeDeliveryData(ctx, campaign.ID, models.DeliveryState{
			LastFailedStep: utils.ToPtr(step),
			LastError:      &errMsg,
		}); mergeErr == nil {
			run.state = merged
		}
		entry := campaignAudit(campaign, models.AuditActionDeliveryStepFailed,
			fmt.Sprintf("Delivery step %s failed", step), false, &errMsg)
		entry.metadata = map[string]any{"step": step}
		if remote, ok := services.AsRemoteAPIError(err); ok {
			entry.metadata["remote_code"] = remote.Code
			entry.metadata["fbtrace_id"] = remote.FBTraceID
		}
		_ = createAuditLog(ctx, f.auditRepo, entry, run.metadata)

		return NewBusinessErrorf("DELIVERY_STEP_FAILED", "Failed to create remote %s", &PipelineStepFailed{Step: step, Cause: err}, step)
	}

	if isSet(run.state.LastFailedStep) {
		patch.LastFailedStep = utils.ToPtr("")
		patch.LastError = utils.ToPtr("")
	}
	merged, err := f.campaignRepo.MergeDeliveryData(ctx, campaign.ID, patch)
	if err != nil {
		// The remote object exists but its id is lost; report it so it can be cleaned up
		return NewBusinessError("DELIVERY_STATE_SAVE_FAILED", "Failed to store remote object id", &PipelineStepFailed{Step: step, Cause: err})
	}
	run.state = merged
	run.created = append(run.created, step)
	pipelineStepsTotal.WithLabelValues(step, "created").Inc()

	entry := campaignAudit(campaign, models.AuditActionDeliveryStepSucceeded,
		fmt.Sprintf("Delivery step %s succeeded", step), true, nil)
	entry.metadata = map[string]any{"step": step}
	_ = createAuditLog(ctx, f.auditRepo, entry, run.metadata)
	return nil
}

// checkPrerequisites rejects a run that is bound to fail part way
func (f *DeliveryFlowImpl) checkPrerequisites(campaign *models.Campaign, state models.DeliveryState, req *dto.OrchestrateDeliveryRequest) error {
	if !isSet(state.AdSetID) {
		if campaign.Spec.DailyBudget == nil || *campaign.Spec.DailyBudget <= 0 {
			return NewBusinessError("DELIVERY_BUDGET_REQUIRED", "Set a daily budget before publishing", ErrDeliveryBudgetRequired)
		}
	}
	if !isSet(state.CreativeID) && !isSet(state.ImageHash) &&
		strings.TrimSpace(req.ImageHash) == "" && strings.TrimSpace(req.ImageURL) == "" {
		return NewBusinessError("DELIVERY_IMAGE_REQUIRED", "An image is required to create the ad creative", ErrDeliveryImageRequired)
	}
	return nil
}

// preflight runs the compatibility checks before anything is created
func (f *DeliveryFlowImpl) preflight(ctx context.Context, session *adPlatformSession) error {
	result, err := f.compatibility.ValidateSelection(ctx, session.token, selectionOf(session))
	if err != nil {
		return NewBusinessError("AD_PLATFORM_REQUEST_FAILED", "Failed to validate selection", err)
	}
	if !result.OK {
		return NewBusinessError("SELECTION_INCOMPATIBLE", result.Reason, &CompatibilityError{Reason: result.Reason})
	}
	return nil
}

func (f *DeliveryFlowImpl) createCampaign(ctx context.Context, run *deliveryRun) (models.DeliveryState, error) {
	spec := run.session.campaign.Spec
	id, err := f.graph.CreateCampaign(ctx, run.session.token, run.session.adAccountID(), services.CreateCampaignParams{
		Name:                remoteName(run.session.campaign, ""),
		Objective:           goalProfileOf(spec.Goal).objective,
		Status:              models.RemoteStatusPaused,
		SpecialAdCategories: []string{},
	})
	if err != nil {
		return models.DeliveryState{}, err
	}
	return models.DeliveryState{CampaignID: &id, CampaignStatus: utils.ToPtr(models.RemoteStatusPaused)}, nil
}

func (f *DeliveryFlowImpl) createAdSet(ctx context.Context, run *deliveryRun) (models.DeliveryState, error) {
	campaign := run.session.campaign
	spec := campaign.Spec
	profile := goalProfileOf(spec.Goal)

	targeting := services.Targeting{
		GeoLocations: services.GeoLocations{Countries: spec.Countries},
		AgeMin:       utils.Deref(spec.AgeMin),
		AgeMax:       utils.Deref(spec.AgeMax),
		Genders:      spec.Genders,
	}
	if run.session.igUserID() != "" {
		targeting.PublisherPlatforms = []string{"facebook", "instagram"}
	}

	id, err := f.graph.CreateAdSet(ctx, run.session.token, run.session.adAccountID(), services.CreateAdSetParams{
		Name:             remoteName(campaign, "Ad Set"),
		CampaignID:       utils.Deref(run.state.CampaignID),
		DailyBudget:      utils.Deref(spec.DailyBudget),
		BillingEvent:     "IMPRESSIONS",
		OptimizationGoal: profile.optimizationGoal,
		BidStrategy:      "LOWEST_COST_WITHOUT_CAP",
		DestinationType:  profile.destinationType,
		Status:           models.RemoteStatusPaused,
		PromotedObject:   services.PromotedObject{PageID: run.session.pageID()},
		Targeting:        targeting,
		StartTime:        spec.StartTime,
		EndTime:          spec.EndTime,
	})
	if err != nil {
		return models.DeliveryState{}, err
	}
	return models.DeliveryState{AdSetID: &id}, nil
}

// imageReady is true once a hash is stored, supplied, or no longer needed
func (f *DeliveryFlowImpl) imageReady(req *dto.OrchestrateDeliveryRequest) func(models.DeliveryState) bool {
	return func(s models.DeliveryState) bool {
		return isSet(s.ImageHash) || isSet(s.CreativeID) || strings.TrimSpace(req.ImageHash) != ""
	}
}

func (f *DeliveryFlowImpl) uploadImage(ctx context.Context, run *deliveryRun) (models.DeliveryState, error) {
	image, err := f.graph.UploadImage(ctx, run.session.token, run.session.adAccountID(), strings.TrimSpace(run.req.ImageURL))
	if err != nil {
		return models.DeliveryState{}, err
	}
	return models.DeliveryState{ImageHash: &image.Hash}, nil
}

// leadFormReady is true unless a lead generation creative still needs a form
func (f *DeliveryFlowImpl) leadFormReady(campaign *models.Campaign, req *dto.OrchestrateDeliveryRequest) func(models.DeliveryState) bool {
	return func(s models.DeliveryState) bool {
		if utils.Deref(campaign.Spec.Goal) != models.CampaignGoalLeadGeneration {
			return true
		}
		return isSet(s.LeadFormID) || isSet(s.CreativeID) || strings.TrimSpace(req.LeadFormID) != ""
	}
}

func (f *DeliveryFlowImpl) createLeadForm(ctx context.Context, run *deliveryRun) (models.DeliveryState, error) {
	pageToken, err := run.session.pageToken()
	if err != nil {
		return models.DeliveryState{}, err
	}
	if pageToken == "" {
		return models.DeliveryState{}, fmt.Errorf("%w: no page access token stored for page %s", ErrPageNotAccessible, run.session.pageID())
	}

	id, err := f.graph.CreateLeadForm(ctx, pageToken, run.session.pageID(), services.CreateLeadFormParams{
		Name:              remoteName(run.session.campaign, "Lead Form"),
		Questions:         leadFormQuestions,
		PrivacyPolicyURL:  f.cfg.PrivacyPolicyURL,
		FollowUpActionURL: utils.Deref(run.session.campaign.Spec.DestinationURL),
	})
	if err != nil {
		return models.DeliveryState{}, err
	}
	return models.DeliveryState{LeadFormID: &id}, nil
}

func (f *DeliveryFlowImpl) createCreative(ctx context.Context, run *deliveryRun) (models.DeliveryState, error) {
	campaign := run.session.campaign
	profile := goalProfileOf(campaign.Spec.Goal)

	imageHash := strings.TrimSpace(run.req.ImageHash)
	if imageHash == "" {
		imageHash = utils.Deref(run.state.ImageHash)
	}
	if imageHash == "" {
		return models.DeliveryState{}, ErrDeliveryImageRequired
	}

	leadFormID := ""
	if profile.usesLeadForm {
		leadFormID = strings.TrimSpace(run.req.LeadFormID)
		if leadFormID == "" {
			leadFormID = utils.Deref(run.state.LeadFormID)
		}
	}

	callToAction := strings.TrimSpace(run.req.CallToActionType)
	if callToAction == "" {
		callToAction = profile.callToAction
	}
	link := utils.Deref(campaign.Spec.DestinationURL)
	if link == "" && profile.usesLeadForm {
		link = "https://fb.me/"
	}

	id, err := f.graph.CreateAdCreative(ctx, run.session.token, run.session.adAccountID(), services.CreateAdCreativeParams{
		Name:             remoteName(campaign, "Creative"),
		PageID:           run.session.pageID(),
		InstagramActorID: run.session.igUserID(),
		ImageHash:        imageHash,
		Message:          run.req.Message,
		Headline:         run.req.Headline,
		Description:      run.req.Description,
		Link:             link,
		CallToActionType: callToAction,
		LeadFormID:       leadFormID,
	})
	if err != nil {
		return models.DeliveryState{}, err
	}

	patch := models.DeliveryState{CreativeID: &id}
	if !isSet(run.state.ImageHash) {
		patch.ImageHash = &imageHash
	}
	if leadFormID != "" && !isSet(run.state.LeadFormID) {
		patch.LeadFormID = &leadFormID
	}
	return patch, nil
}

func (f *DeliveryFlowImpl) createAd(ctx context.Context, run *deliveryRun) (models.DeliveryState, error) {
	id, err := f.graph.CreateAd(ctx, run.session.token, run.session.adAccountID(), services.CreateAdParams{
		Name:       remoteName(run.session.campaign, "Ad"),
		AdSetID:    utils.Deref(run.state.AdSetID),
		CreativeID: utils.Deref(run.state.CreativeID),
		Status:     models.RemoteStatusPaused,
	})
	if err != nil {
		return models.DeliveryState{}, err
	}
	return models.DeliveryState{AdID: &id, AdStatus: utils.ToPtr(models.RemoteStatusPaused)}, nil
}

// Publish sets the stored campaign or ad to ACTIVE. The target must be the
// object this campaign created.
func (f *DeliveryFlowImpl) Publish(ctx context.Context, req *dto.PublishDeliveryRequest, metadata *ClientMetadata) (*dto.PublishDeliveryResponse, error) {
	if req.TargetType != PublishTargetCampaign && req.TargetType != PublishTargetAd {
		return nil, NewBusinessError("INVALID_PUBLISH_TARGET", "Publish target must be campaign or ad", ErrInvalidPublishTarget)
	}

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

	state, err := f.campaignRepo.DeliveryData(ctx, campaign.ID)
	if err != nil {
		return nil, NewBusinessError("DELIVERY_STATE_LOOKUP_FAILED", "Failed to load delivery state", err)
	}
	if !state.Complete() {
		return nil, NewBusinessError("DELIVERY_INCOMPLETE", "Create the remote campaign chain before publishing", ErrDeliveryIncomplete)
	}

	stored := utils.Deref(state.CampaignID)
	if req.TargetType == PublishTargetAd {
		stored = utils.Deref(state.AdID)
	}
	targetID := strings.TrimSpace(req.TargetID)
	if targetID != stored {
		return nil, NewBusinessErrorf("PUBLISH_TARGET_MISMATCH", "Target %s is not the %s created for this campaign",
			ErrPublishTargetMismatch, targetID, req.TargetType)
	}

	if err := f.graph.UpdateStatus(ctx, session.token, targetID, models.RemoteStatusActive); err != nil {
		errMsg := err.Error()
		entry := campaignAudit(campaign, models.AuditActionDeliveryPublishFailed,
			fmt.Sprintf("Publishing %s %s failed", req.TargetType, targetID), false, &errMsg)
		entry.metadata = map[string]any{"target_type": req.TargetType, "target_id": targetID}
		_ = createAuditLog(ctx, f.auditRepo, entry, metadata)
		return nil, NewBusinessError("AD_PLATFORM_REQUEST_FAILED", "Failed to publish on the ad platform", err)
	}

	patch := models.DeliveryState{PublishedAt: utils.UTCNowPtr()}
	if req.TargetType == PublishTargetCampaign {
		patch.CampaignStatus = utils.ToPtr(models.RemoteStatusActive)
	} else {
		patch.AdStatus = utils.ToPtr(models.RemoteStatusActive)
	}
	merged, err := f.campaignRepo.MergeDeliveryData(ctx, campaign.ID, patch)
	if err != nil {
		return nil, NewBusinessError("DELIVERY_STATE_SAVE_FAILED", "Failed to store publish state", err)
	}
	if err := f.campaignRepo.UpdateStatus(ctx, campaign.ID, models.CampaignStatusPublished); err != nil {
		return nil, NewBusinessError("CAMPAIGN_STATUS_UPDATE_FAILED", "Failed to update campaign status", err)
	}

	entry := campaignAudit(campaign, models.AuditActionDeliveryPublished,
		fmt.Sprintf("Published %s %s", req.TargetType, targetID), true, nil)
	entry.metadata = map[string]any{"target_type": req.TargetType, "target_id": targetID}
	_ = createAuditLog(ctx, f.auditRepo, entry, metadata)

	return &dto.PublishDeliveryResponse{
		Message: fmt.Sprintf("The %s is now active", req.TargetType),
		State:   ToDeliveryStateResponse(campaign.UUID.String(), merged),
	}, nil
}

// GetDeliveryState returns the stored chain without touching the ad platform
func (f *DeliveryFlowImpl) GetDeliveryState(ctx context.Context, req *dto.AdPlatformCampaignRequest) (*dto.DeliveryStateResponse, error) {
	campaign, err := getOwnedCampaign(ctx, f.campaignRepo, req.CampaignUUID, req.CustomerID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}

	state, err := campaign.DeliveryState()
	if err != nil {
		return nil, NewBusinessError("DELIVERY_STATE_LOOKUP_FAILED", "Failed to load delivery state", err)
	}

	resp := ToDeliveryStateResponse(campaign.UUID.String(), state)
	return &resp, nil
}

// ResetDelivery forgets the stored chain so the next run starts over.
// Remote objects are not deleted and the connection is untouched.
func (f *DeliveryFlowImpl) ResetDelivery(ctx context.Context, req *dto.AdPlatformCampaignRequest, metadata *ClientMetadata) (*dto.ResetDeliveryResponse, error) {
	campaign, err := getOwnedCampaign(ctx, f.campaignRepo, req.CampaignUUID, req.CustomerID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}

	unlock, err := f.locker.Lock(ctx, campaign.ID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOCKED", "Another operation is in progress for this campaign", err)
	}
	defer unlock()

	previous, _ := f.campaignRepo.DeliveryData(ctx, campaign.ID)
	if err := f.campaignRepo.ResetDeliveryData(ctx, campaign.ID); err != nil {
		return nil, NewBusinessError("DELIVERY_RESET_FAILED", "Failed to reset delivery state", err)
	}

	entry := campaignAudit(campaign, models.AuditActionDeliveryReset,
		fmt.Sprintf("Delivery state reset for campaign %s", campaign.UUID), true, nil)
	entry.metadata = map[string]any{
		"campaign_id": utils.Deref(previous.CampaignID),
		"ad_id":       utils.Deref(previous.AdID),
	}
	_ = createAuditLog(ctx, f.auditRepo, entry, metadata)

	return &dto.ResetDeliveryResponse{Message: "Delivery state cleared"}, nil
}

// goalProfile holds the remote settings derived from a campaign goal
type goalProfile struct {
	objective        string
	optimizationGoal string
	destinationType  string
	callToAction     string
	usesLeadForm     bool
}

var goalProfiles = map[string]goalProfile{
	models.CampaignGoalLeadGeneration: {"OUTCOME_LEADS", "LEAD_GENERATION", "ON_AD", "SIGN_UP", true},
	models.CampaignGoalTraffic:        {"OUTCOME_TRAFFIC", "LINK_CLICKS", "WEBSITE", "LEARN_MORE", false},
	models.CampaignGoalAwareness:      {"OUTCOME_AWARENESS", "REACH", "", "LEARN_MORE", false},
	models.CampaignGoalEngagement:     {"OUTCOME_ENGAGEMENT", "POST_ENGAGEMENT", "", "LEARN_MORE", false},
	models.CampaignGoalSales:          {"OUTCOME_SALES", "LINK_CLICKS", "WEBSITE", "SHOP_NOW", false},
}

// goalProfileOf falls back to traffic when no goal was chosen
func goalProfileOf(goal *string) goalProfile {
	if p, ok := goalProfiles[utils.Deref(goal)]; ok {
		return p
	}
	return goalProfiles[models.CampaignGoalTraffic]
}

func remoteName(campaign *models.Campaign, suffix string) string {
	name := strings.TrimSpace(utils.Deref(campaign.Spec.Title))
	if name == "" {
		name = "Campaign " + campaign.UUID.String()
	}
	if suffix != "" {
		name += " - " + suffix
	}
	return name
}

func validateImageSource(req *dto.OrchestrateDeliveryRequest) error {
	raw := strings.TrimSpace(req.ImageURL)
	if raw == "" {
		return nil
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		cause := ErrDeliveryImageURLInvalid
		if err != nil {
			return NewBusinessError("INVALID_IMAGE_URL", "Image URL is invalid", errors.Join(cause, err))
		}
		return NewBusinessError("INVALID_IMAGE_URL", "Image URL is invalid", cause)
	}
	return nil
}

func isSet(s *string) bool {
	return s != nil && *s != ""
}

func nonNil(steps []string) []string {
	if steps == nil {
		return []string{}
	}
	return steps
}
