package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/amirphl/adbridge/app/dto"
	"github.com/amirphl/adbridge/app/services"
	"github.com/amirphl/adbridge/config"
	"github.com/amirphl/adbridge/models"
	"github.com/amirphl/adbridge/repository"
	"github.com/amirphl/adbridge/utils"
	"gorm.io/gorm"
)

// ExchangedToken is a long-lived token with its absolute expiry
type ExchangedToken struct {
	AccessToken string
	ExpiresAt   time.Time
}

// AdPlatformTokenFlow manages the delegated token of a campaign's connection
type AdPlatformTokenFlow interface {
	Exchange(ctx context.Context, shortLivedToken string) (*ExchangedToken, error)
	Persist(ctx context.Context, campaignID uint, fbUserID, token string, expiresAt time.Time) error
	Connect(ctx context.Context, req *dto.ConnectAdPlatformRequest, metadata *ClientMetadata) (*dto.ConnectAdPlatformResponse, error)
	Disconnect(ctx context.Context, req *dto.AdPlatformCampaignRequest, metadata *ClientMetadata) (*dto.DisconnectAdPlatformResponse, error)
	Status(ctx context.Context, req *dto.AdPlatformCampaignRequest) (*dto.AdPlatformConnectionResponse, error)
}

// AdPlatformTokenFlowImpl implements AdPlatformTokenFlow
type AdPlatformTokenFlowImpl struct {
	campaignRepo repository.CampaignRepository
	connRepo     repository.AdPlatformConnectionRepository
	auditRepo    repository.AuditLogRepository
	graph        services.GraphClient
	cipher       services.TokenCipher
	locker       CampaignLocker
	cfg          config.AdPlatformConfig
	db           *gorm.DB
}

// NewAdPlatformTokenFlow creates a new token lifecycle flow
func NewAdPlatformTokenFlow(
	campaignRepo repository.CampaignRepository,
	connRepo repository.AdPlatformConnectionRepository,
	auditRepo repository.AuditLogRepository,
	graph services.GraphClient,
	cipher services.TokenCipher,
	locker CampaignLocker,
	cfg config.AdPlatformConfig,
	db *gorm.DB,
) AdPlatformTokenFlow {
	return &AdPlatformTokenFlowImpl{
		campaignRepo: campaignRepo,
		connRepo:     connRepo,
		auditRepo:    auditRepo,
		graph:        graph,
		cipher:       cipher,
		locker:       locker,
		cfg:          cfg,
		db:           db,
	}
}

// Exchange trades a short-lived token for a long-lived one. Missing app
// credentials are a configuration fault and are never retried.
func (f *AdPlatformTokenFlowImpl) Exchange(ctx context.Context, shortLivedToken string) (*ExchangedToken, error) {
	if !f.cfg.HasCredentials() {
		return nil, ErrCredentialsMissing
	}

	result, err := f.graph.ExchangeToken(ctx, shortLivedToken)
	if err != nil {
		if errors.Is(err, services.ErrAppCredentialsMissing) {
			return nil, ErrCredentialsMissing
		}
		if remote, ok := services.AsRemoteAPIError(err); ok && remote.HTTPStatus < http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: %w", ErrExchangeRejected, err)
		}
		return nil, err
	}

	ttl := f.cfg.DefaultTokenTTL
	if ttl <= 0 {
		ttl = utils.DefaultLongLivedTokenTTL
	}

	return &ExchangedToken{
		AccessToken: result.AccessToken,
		ExpiresAt:   result.ExpiresAt(utils.UTCNow(), ttl),
	}, nil
}

// Persist seals and stores the token, overwriting any prior one
func (f *AdPlatformTokenFlowImpl) Persist(ctx context.Context, campaignID uint, fbUserID, token string, expiresAt time.Time) error {
	sealed, err := f.cipher.Encrypt(token)
	if err != nil {
		return err
	}
	return f.connRepo.UpsertToken(ctx, campaignID, fbUserID, sealed, expiresAt)
}

// Connect exchanges and persists a token for the campaign. Reconnecting as a
// different platform user drops the previous selection.
func (f *AdPlatformTokenFlowImpl) Connect(ctx context.Context, req *dto.ConnectAdPlatformRequest, metadata *ClientMetadata) (*dto.ConnectAdPlatformResponse, error) {
	campaign, err := getOwnedCampaign(ctx, f.campaignRepo, req.CampaignUUID, req.CustomerID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}

	unlock, err := f.locker.Lock(ctx, campaign.ID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOCKED", "Another operation is in progress for this campaign", err)
	}
	defer unlock()

	exchanged, err := f.Exchange(ctx, req.ShortLivedToken)
	if err != nil {
		f.auditFailure(ctx, campaign, models.AuditActionAdPlatformConnectFail, "Token exchange failed", err, metadata)
		switch {
		case errors.Is(err, ErrCredentialsMissing):
			return nil, NewBusinessError("AD_PLATFORM_NOT_CONFIGURED", "Ad platform integration is not configured", err)
		case errors.Is(err, ErrExchangeRejected):
			return nil, NewBusinessError("TOKEN_EXCHANGE_REJECTED", "Ad platform rejected the token", err)
		default:
			return nil, NewBusinessError("TOKEN_EXCHANGE_FAILED", "Token exchange failed", err)
		}
	}

	fbUserID := req.FBUserID
	if fbUserID == "" {
		me, err := f.graph.GetMe(ctx, exchanged.AccessToken)
		if err != nil {
			f.auditFailure(ctx, campaign, models.AuditActionAdPlatformConnectFail, "Failed to resolve ad platform user", err, metadata)
			return nil, NewBusinessError("AD_PLATFORM_USER_LOOKUP_FAILED", "Failed to resolve ad platform user", err)
		}
		fbUserID = me.ID
	}

	previous, err := f.connRepo.ByCampaignID(ctx, campaign.ID)
	if err != nil {
		return nil, NewBusinessError("CONNECTION_LOOKUP_FAILED", "Failed to lookup connection", err)
	}
	userChanged := previous != nil && previous.FBUserID != nil && *previous.FBUserID != fbUserID

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		if err := f.Persist(txCtx, campaign.ID, fbUserID, exchanged.AccessToken, exchanged.ExpiresAt); err != nil {
			return err
		}
		if userChanged {
			return f.connRepo.ClearSelection(txCtx, campaign.ID)
		}
		return nil
	})
	if err != nil {
		f.auditFailure(ctx, campaign, models.AuditActionAdPlatformConnectFail, "Failed to store token", err, metadata)
		return nil, NewBusinessError("CONNECTION_SAVE_FAILED", "Failed to store ad platform connection", err)
	}

	entry := campaignAudit(campaign, models.AuditActionAdPlatformConnected,
		fmt.Sprintf("Ad platform connected for campaign %s", campaign.UUID), true, nil)
	entry.metadata = map[string]any{"fb_user_id": fbUserID, "selection_cleared": userChanged}
	_ = createAuditLog(ctx, f.auditRepo, entry, metadata)

	return &dto.ConnectAdPlatformResponse{
		Message:        "Ad platform connected successfully",
		FBUserID:       fbUserID,
		TokenExpiresAt: exchanged.ExpiresAt,
	}, nil
}

// Disconnect revokes remotely on a best-effort basis and then clears every
// token and selection field. It is idempotent.
func (f *AdPlatformTokenFlowImpl) Disconnect(ctx context.Context, req *dto.AdPlatformCampaignRequest, metadata *ClientMetadata) (*dto.DisconnectAdPlatformResponse, error) {
	campaign, err := getOwnedCampaign(ctx, f.campaignRepo, req.CampaignUUID, req.CustomerID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}

	unlock, err := f.locker.Lock(ctx, campaign.ID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOCKED", "Another operation is in progress for this campaign", err)
	}
	defer unlock()

	conn, err := f.connRepo.ByCampaignID(ctx, campaign.ID)
	if err != nil {
		return nil, NewBusinessError("CONNECTION_LOOKUP_FAILED", "Failed to lookup connection", err)
	}

	revoked := false
	if conn.HasToken() {
		revoked = f.revoke(ctx, campaign.ID, *conn.LongLivedToken)
	}

	if err := f.connRepo.Disconnect(ctx, campaign.ID); err != nil {
		f.auditFailure(ctx, campaign, models.AuditActionAdPlatformDisconnected, "Failed to clear connection", err, metadata)
		return nil, NewBusinessError("DISCONNECT_FAILED", "Failed to disconnect ad platform", err)
	}

	entry := campaignAudit(campaign, models.AuditActionAdPlatformDisconnected,
		fmt.Sprintf("Ad platform disconnected for campaign %s", campaign.UUID), true, nil)
	entry.metadata = map[string]any{"remote_revoked": revoked}
	_ = createAuditLog(ctx, f.auditRepo, entry, metadata)

	return &dto.DisconnectAdPlatformResponse{
		Message:       "Ad platform disconnected successfully",
		RemoteRevoked: revoked,
	}, nil
}

// revoke reports whether the platform acknowledged the revocation. Failures
// are logged and never block the local disconnect.
func (f *AdPlatformTokenFlowImpl) revoke(ctx context.Context, campaignID uint, sealed string) bool {
	token, err := f.cipher.Decrypt(sealed)
	if err != nil {
		log.Printf("Skipping remote revocation for campaign %d: %v", campaignID, err)
		return false
	}
	if err := f.graph.RevokePermissions(ctx, token); err != nil {
		log.Printf("Remote revocation failed for campaign %d: %v", campaignID, err)
		return false
	}
	return true
}

// Status summarizes the connection without touching the platform
func (f *AdPlatformTokenFlowImpl) Status(ctx context.Context, req *dto.AdPlatformCampaignRequest) (*dto.AdPlatformConnectionResponse, error) {
	campaign, err := getOwnedCampaign(ctx, f.campaignRepo, req.CampaignUUID, req.CustomerID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}

	conn, err := f.connRepo.ByCampaignID(ctx, campaign.ID)
	if err != nil {
		return nil, NewBusinessError("CONNECTION_LOOKUP_FAILED", "Failed to lookup connection", err)
	}

	return ToConnectionResponse(conn), nil
}

func (f *AdPlatformTokenFlowImpl) auditFailure(ctx context.Context, campaign *models.Campaign, action, description string, cause error, metadata *ClientMetadata) {
	errMsg := cause.Error()
	_ = createAuditLog(ctx, f.auditRepo, campaignAudit(campaign, action, description, false, &errMsg), metadata)
}

// ToConnectionResponse converts a connection to its API summary. Tokens are never exposed.
func ToConnectionResponse(conn *models.AdPlatformConnection) *dto.AdPlatformConnectionResponse {
	if conn == nil {
		return &dto.AdPlatformConnectionResponse{}
	}

	expired := conn.HasToken() && conn.IsTokenExpired(utils.UTCNow())
	return &dto.AdPlatformConnectionResponse{
		Connected:                 conn.HasToken() && !expired,
		TokenExpired:              expired,
		TokenExpiresAt:            conn.TokenExpiresAt,
		FBUserID:                  conn.FBUserID,
		BusinessID:                conn.SelectedBusinessID,
		BusinessName:              conn.SelectedBusinessName,
		PageID:                    conn.SelectedPageID,
		PageName:                  conn.SelectedPageName,
		IGUserID:                  conn.SelectedIGUserID,
		IGUsername:                conn.SelectedIGUsername,
		AdAccountID:               conn.SelectedAdAccountID,
		AdAccountName:             conn.SelectedAdAccountName,
		AdAccountPaymentConnected: conn.AdAccountPaymentConnected,
	}
}
