package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/adbridge/models"
	"github.com/amirphl/adbridge/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AdPlatformConnectionRepositoryImpl implements AdPlatformConnectionRepository
type AdPlatformConnectionRepositoryImpl struct {
	*BaseRepository[models.AdPlatformConnection, models.AdPlatformConnectionFilter]
}

// NewAdPlatformConnectionRepository creates a new connection repository
func NewAdPlatformConnectionRepository(db *gorm.DB) AdPlatformConnectionRepository {
	return &AdPlatformConnectionRepositoryImpl{
		BaseRepository: NewBaseRepository[models.AdPlatformConnection, models.AdPlatformConnectionFilter](db),
	}
}

// ByCampaignID returns the connection of a campaign, or nil when none exists
func (r *AdPlatformConnectionRepositoryImpl) ByCampaignID(ctx context.Context, campaignID uint) (*models.AdPlatformConnection, error) {
	db := r.getDB(ctx)

	var conn models.AdPlatformConnection
	err := db.Where("campaign_id = ?", campaignID).First(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find connection by campaign %d: %w", campaignID, err)
	}

	return &conn, nil
}

// ByCampaignIDs returns the connections of the given campaigns
func (r *AdPlatformConnectionRepositoryImpl) ByCampaignIDs(ctx context.Context, campaignIDs []uint) ([]*models.AdPlatformConnection, error) {
	if len(campaignIDs) == 0 {
		return nil, nil
	}
	db := r.getDB(ctx)

	var conns []*models.AdPlatformConnection
	if err := db.Where("campaign_id IN ?", campaignIDs).Find(&conns).Error; err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	return conns, nil
}

// UpsertToken stores a token for the campaign, creating the connection on
// first use and overwriting any prior token otherwise.
func (r *AdPlatformConnectionRepositoryImpl) UpsertToken(ctx context.Context, campaignID uint, fbUserID, token string, expiresAt time.Time) (err error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}
	defer finish(db, shouldCommit, &err)

	now := utils.UTCNow()
	conn := models.AdPlatformConnection{
		CampaignID:     campaignID,
		FBUserID:       &fbUserID,
		LongLivedToken: &token,
		TokenExpiresAt: &expiresAt,
		CreatedAt:      now,
		UpdatedAt:      &now,
	}

	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "campaign_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"fb_user_id", "long_lived_token", "token_expires_at", "updated_at"}),
	}).Create(&conn).Error
	if err != nil {
		return fmt.Errorf("failed to upsert connection token: %w", err)
	}

	return nil
}

// UpdateSelection writes only the non-nil selection fields. Choosing a
// different ad account drops the payment flag since it belonged to the old one.
func (r *AdPlatformConnectionRepositoryImpl) UpdateSelection(ctx context.Context, campaignID uint, selection models.ConnectionSelection) (err error) {
	if selection.IsEmpty() {
		return nil
	}

	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}
	defer finish(db, shouldCommit, &err)

	updates := map[string]any{"updated_at": utils.UTCNow()}
	set := func(column string, v *string) {
		if v != nil {
			updates[column] = *v
		}
	}
	set("selected_business_id", selection.BusinessID)
	set("selected_business_name", selection.BusinessName)
	set("selected_page_id", selection.PageID)
	set("selected_page_name", selection.PageName)
	set("selected_page_access_token", selection.PageAccessToken)
	set("selected_ig_user_id", selection.IGUserID)
	set("selected_ig_username", selection.IGUsername)
	set("selected_ad_account_id", selection.AdAccountID)
	set("selected_ad_account_name", selection.AdAccountName)

	if selection.AdAccountID != nil {
		var current models.AdPlatformConnection
		err = db.Select("id", "selected_ad_account_id").Where("campaign_id = ?", campaignID).First(&current).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("connection for campaign %d: %w", campaignID, gorm.ErrRecordNotFound)
			}
			return fmt.Errorf("failed to load connection: %w", err)
		}
		if utils.Deref(current.SelectedAdAccountID) != *selection.AdAccountID {
			updates["ad_account_payment_connected"] = false
		}
	}

	res := db.Model(&models.AdPlatformConnection{}).Where("campaign_id = ?", campaignID).Updates(updates)
	if err = res.Error; err != nil {
		return fmt.Errorf("failed to update selection: %w", err)
	}
	if res.RowsAffected == 0 {
		err = fmt.Errorf("connection for campaign %d: %w", campaignID, gorm.ErrRecordNotFound)
		return err
	}

	return nil
}

// ClearSelection nulls every selection field and the payment flag, keeping the token
func (r *AdPlatformConnectionRepositoryImpl) ClearSelection(ctx context.Context, campaignID uint) (err error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}
	defer finish(db, shouldCommit, &err)

	updates := selectionNulls()
	updates["updated_at"] = utils.UTCNow()

	if err = db.Model(&models.AdPlatformConnection{}).Where("campaign_id = ?", campaignID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to clear selection: %w", err)
	}
	return nil
}

// SetPaymentConnected records whether the selected ad account can pay. The flag
// is only written while adAccountID is still the selected account; otherwise
// gorm.ErrRecordNotFound is returned and nothing changes.
func (r *AdPlatformConnectionRepositoryImpl) SetPaymentConnected(ctx context.Context, campaignID uint, adAccountID string, connected bool) (err error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}
	defer finish(db, shouldCommit, &err)

	res := db.Model(&models.AdPlatformConnection{}).
		Where("campaign_id = ? AND selected_ad_account_id = ?", campaignID, adAccountID).
		Updates(map[string]any{
			"ad_account_payment_connected": connected,
			"updated_at":                   utils.UTCNow(),
		})
	if err = res.Error; err != nil {
		return fmt.Errorf("failed to update payment flag: %w", err)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("connection for campaign %d with ad account %s: %w", campaignID, adAccountID, gorm.ErrRecordNotFound)
	}
	return nil
}

// Disconnect nulls the token, the identity and every selection in a single
// statement. It is a no-op for a campaign without a connection.
func (r *AdPlatformConnectionRepositoryImpl) Disconnect(ctx context.Context, campaignID uint) (err error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}
	defer finish(db, shouldCommit, &err)

	updates := selectionNulls()
	updates["fb_user_id"] = nil
	updates["long_lived_token"] = nil
	updates["token_expires_at"] = nil
	updates["updated_at"] = utils.UTCNow()

	if err = db.Model(&models.AdPlatformConnection{}).Where("campaign_id = ?", campaignID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	return nil
}

// DeleteByCampaignID removes the connection row of a campaign
func (r *AdPlatformConnectionRepositoryImpl) DeleteByCampaignID(ctx context.Context, campaignID uint) (err error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}
	defer finish(db, shouldCommit, &err)

	if err = db.Where("campaign_id = ?", campaignID).Delete(&models.AdPlatformConnection{}).Error; err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	return nil
}

func selectionNulls() map[string]any {
	return map[string]any{
		"selected_business_id":         nil,
		"selected_business_name":       nil,
		"selected_page_id":             nil,
		"selected_page_name":           nil,
		"selected_page_access_token":   nil,
		"selected_ig_user_id":          nil,
		"selected_ig_username":         nil,
		"selected_ad_account_id":       nil,
		"selected_ad_account_name":     nil,
		"ad_account_payment_connected": false,
	}
}
