package businessflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/adbridge/app/dto"
	"github.com/amirphl/adbridge/app/services"
	"github.com/amirphl/adbridge/models"
	"github.com/amirphl/adbridge/repository"
	"github.com/amirphl/adbridge/utils"
	"gorm.io/gorm"
)

// AdPlatformSelectionFlow lists the remote assets visible to the connected
// user and records which of them the campaign will use
type AdPlatformSelectionFlow interface {
	ListBusinesses(ctx context.Context, req *dto.AdPlatformCampaignRequest) (*dto.ListBusinessesResponse, error)
	ListPages(ctx context.Context, req *dto.AdPlatformCampaignRequest) (*dto.ListPagesResponse, error)
	ListAdAccounts(ctx context.Context, req *dto.ListAdAccountsRequest) (*dto.ListAdAccountsResponse, error)
	ListInstagramAccounts(ctx context.Context, req *dto.AdPlatformCampaignRequest) (*dto.ListInstagramAccountsResponse, error)
	UpdateSelection(ctx context.Context, req *dto.UpdateSelectionRequest, metadata *ClientMetadata) (*dto.AdPlatformConnectionResponse, error)
}

// AdPlatformSelectionFlowImpl implements AdPlatformSelectionFlow
type AdPlatformSelectionFlowImpl struct {
	campaignRepo repository.CampaignRepository
	connRepo     repository.AdPlatformConnectionRepository
	auditRepo    repository.AuditLogRepository
	graph        services.GraphClient
	cipher       services.TokenCipher
	sessions     sessionLoader
	locker       CampaignLocker
}

// NewAdPlatformSelectionFlow creates a new selection flow
func NewAdPlatformSelectionFlow(
	campaignRepo repository.CampaignRepository,
	connRepo repository.AdPlatformConnectionRepository,
	auditRepo repository.AuditLogRepository,
	graph services.GraphClient,
	cipher services.TokenCipher,
	locker CampaignLocker,
) AdPlatformSelectionFlow {
	return &AdPlatformSelectionFlowImpl{
		campaignRepo: campaignRepo,
		connRepo:     connRepo,
		auditRepo:    auditRepo,
		graph:        graph,
		cipher:       cipher,
		sessions:     sessionLoader{connRepo: connRepo, cipher: cipher},
		locker:       locker,
	}
}

func (f *AdPlatformSelectionFlowImpl) session(ctx context.Context, campaignUUID string, customerID uint) (*adPlatformSession, error) {
	campaign, err := getOwnedCampaign(ctx, f.campaignRepo, campaignUUID, customerID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	session, err := f.sessions.load(ctx, campaign)
	if err != nil {
		return nil, tokenBusinessError(err)
	}
	return session, nil
}

func (f *AdPlatformSelectionFlowImpl) ListBusinesses(ctx context.Context, req *dto.AdPlatformCampaignRequest) (*dto.ListBusinessesResponse, error) {
	session, err := f.session(ctx, req.CampaignUUID, req.CustomerID)
	if err != nil {
		return nil, err
	}

	businesses, err := f.graph.ListBusinesses(ctx, session.token)
	if err != nil {
		return nil, NewBusinessError("AD_PLATFORM_REQUEST_FAILED", "Failed to list businesses", err)
	}

	resp := &dto.ListBusinessesResponse{Businesses: make([]dto.BusinessItem, 0, len(businesses))}
	for _, b := range businesses {
		resp.Businesses = append(resp.Businesses, dto.BusinessItem{ID: b.ID, Name: b.Name})
	}
	return resp, nil
}

func (f *AdPlatformSelectionFlowImpl) ListPages(ctx context.Context, req *dto.AdPlatformCampaignRequest) (*dto.ListPagesResponse, error) {
	session, err := f.session(ctx, req.CampaignUUID, req.CustomerID)
	if err != nil {
		return nil, err
	}

	pages, err := f.graph.ListPages(ctx, session.token)
	if err != nil {
		return nil, NewBusinessError("AD_PLATFORM_REQUEST_FAILED", "Failed to list pages", err)
	}

	resp := &dto.ListPagesResponse{Pages: make([]dto.PageItem, 0, len(pages))}
	for _, p := range pages {
		item := dto.PageItem{ID: p.ID, Name: p.Name, Category: p.Category, Tasks: p.Tasks}
		if p.InstagramBusinessAccount != nil {
			item.InstagramUserID = p.InstagramBusinessAccount.ID
			item.InstagramUsername = p.InstagramBusinessAccount.Username
		}
		resp.Pages = append(resp.Pages, item)
	}
	return resp, nil
}

// ListAdAccounts lists the user's ad accounts, or the accounts owned by a business when one is given
func (f *AdPlatformSelectionFlowImpl) ListAdAccounts(ctx context.Context, req *dto.ListAdAccountsRequest) (*dto.ListAdAccountsResponse, error) {
	session, err := f.session(ctx, req.CampaignUUID, req.CustomerID)
	if err != nil {
		return nil, err
	}

	var accounts []services.AdAccount
	if req.BusinessID != "" {
		accounts, err = f.graph.ListBusinessAdAccounts(ctx, session.token, req.BusinessID)
	} else {
		accounts, err = f.graph.ListAdAccounts(ctx, session.token)
	}
	if err != nil {
		return nil, NewBusinessError("AD_PLATFORM_REQUEST_FAILED", "Failed to list ad accounts", err)
	}

	resp := &dto.ListAdAccountsResponse{AdAccounts: make([]dto.AdAccountItem, 0, len(accounts))}
	for _, a := range accounts {
		item := dto.AdAccountItem{
			ID:            services.AdAccountNode(a.ID),
			Name:          a.Name,
			AccountStatus: a.AccountStatus,
			StatusName:    services.AdAccountStatusName(a.AccountStatus),
			Currency:      a.Currency,
		}
		if a.Business != nil {
			item.BusinessID = a.Business.ID
		} else if req.BusinessID != "" {
			item.BusinessID = req.BusinessID
		}
		resp.AdAccounts = append(resp.AdAccounts, item)
	}
	return resp, nil
}

// ListInstagramAccounts returns the Instagram account linked to the selected page
func (f *AdPlatformSelectionFlowImpl) ListInstagramAccounts(ctx context.Context, req *dto.AdPlatformCampaignRequest) (*dto.ListInstagramAccountsResponse, error) {
	session, err := f.session(ctx, req.CampaignUUID, req.CustomerID)
	if err != nil {
		return nil, err
	}
	if err := session.requireSelection(true, false); err != nil {
		return nil, NewBusinessError("SELECTION_INCOMPLETE", "Select a page first", err)
	}

	account, err := f.graph.GetPageInstagramAccount(ctx, session.token, session.pageID())
	if err != nil {
		return nil, NewBusinessError("AD_PLATFORM_REQUEST_FAILED", "Failed to load instagram account", err)
	}

	resp := &dto.ListInstagramAccountsResponse{InstagramAccounts: []dto.InstagramAccountItem{}}
	if account != nil && account.ID != "" {
		resp.InstagramAccounts = append(resp.InstagramAccounts, dto.InstagramAccountItem{ID: account.ID, Username: account.Username})
	}
	return resp, nil
}

// UpdateSelection writes the provided selection fields and leaves the rest
// untouched. Selecting a page stores its sealed page access token.
func (f *AdPlatformSelectionFlowImpl) UpdateSelection(ctx context.Context, req *dto.UpdateSelectionRequest, metadata *ClientMetadata) (*dto.AdPlatformConnectionResponse, error) {
	selection := models.ConnectionSelection{
		BusinessID:    req.BusinessID,
		BusinessName:  req.BusinessName,
		PageID:        req.PageID,
		PageName:      req.PageName,
		IGUserID:      req.IGUserID,
		IGUsername:    req.IGUsername,
		AdAccountName: req.AdAccountName,
	}
	if req.AdAccountID != nil {
		selection.AdAccountID = utils.ToPtr(services.AdAccountNode(*req.AdAccountID))
	}
	if selection.IsEmpty() {
		return nil, NewBusinessError("SELECTION_EMPTY", "At least one selection field must be provided", ErrSelectionEmpty)
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

	// The connection is read under the lock so a concurrent disconnect or reconnect is seen
	session, err := f.sessions.load(ctx, campaign)
	if err != nil {
		return nil, tokenBusinessError(err)
	}

	if req.PageID != nil {
		if err := f.resolvePage(ctx, session, &selection); err != nil {
			return nil, err
		}
	}

	if err := f.connRepo.UpdateSelection(ctx, campaign.ID, selection); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewBusinessError("AD_PLATFORM_NOT_CONNECTED", "Ad platform is not connected", ErrTokenMissing)
		}
		errMsg := err.Error()
		_ = createAuditLog(ctx, f.auditRepo, campaignAudit(campaign, models.AuditActionAdPlatformSelection, "Selection update failed", false, &errMsg), metadata)
		return nil, NewBusinessError("SELECTION_UPDATE_FAILED", "Failed to update selection", err)
	}

	conn, err := f.connRepo.ByCampaignID(ctx, campaign.ID)
	if err != nil {
		return nil, NewBusinessError("CONNECTION_LOOKUP_FAILED", "Failed to lookup connection", err)
	}

	entry := campaignAudit(campaign, models.AuditActionAdPlatformSelection,
		fmt.Sprintf("Selection updated for campaign %s", campaign.UUID), true, nil)
	entry.metadata = map[string]any{
		"business_id":   utils.Deref(conn.SelectedBusinessID),
		"page_id":       utils.Deref(conn.SelectedPageID),
		"ig_user_id":    utils.Deref(conn.SelectedIGUserID),
		"ad_account_id": utils.Deref(conn.SelectedAdAccountID),
	}
	_ = createAuditLog(ctx, f.auditRepo, entry, metadata)

	return ToConnectionResponse(conn), nil
}

// resolvePage finds the page among the user's pages and fills its token and name
func (f *AdPlatformSelectionFlowImpl) resolvePage(ctx context.Context, session *adPlatformSession, selection *models.ConnectionSelection) error {
	pages, err := f.graph.ListPages(ctx, session.token)
	if err != nil {
		return NewBusinessError("AD_PLATFORM_REQUEST_FAILED", "Failed to list pages", err)
	}

	for _, p := range pages {
		if p.ID != *selection.PageID {
			continue
		}
		if selection.PageName == nil {
			selection.PageName = utils.ToPtr(p.Name)
		}
		if p.AccessToken != "" {
			sealed, err := f.cipher.Encrypt(p.AccessToken)
			if err != nil {
				return NewBusinessError("SELECTION_UPDATE_FAILED", "Failed to store page token", err)
			}
			selection.PageAccessToken = &sealed
		}
		return nil
	}

	return NewBusinessError("PAGE_NOT_ACCESSIBLE", "Selected page is not accessible with the connected account", ErrPageNotAccessible)
}

// tokenBusinessError wraps session load failures
func tokenBusinessError(err error) error {
	switch {
	case errors.Is(err, ErrTokenMissing):
		return NewBusinessError("AD_PLATFORM_NOT_CONNECTED", "Ad platform is not connected", err)
	case errors.Is(err, ErrTokenExpired):
		return NewBusinessError("AD_PLATFORM_TOKEN_EXPIRED", "Ad platform token has expired, reconnect to continue", err)
	default:
		return NewBusinessError("CONNECTION_LOOKUP_FAILED", "Failed to load ad platform connection", err)
	}
}
