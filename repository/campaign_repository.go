package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/amirphl/adbridge/models"
	"github.com/amirphl/adbridge/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CampaignRepositoryImpl implements the CampaignRepository interface
type CampaignRepositoryImpl struct {
	*BaseRepository[models.Campaign, models.CampaignFilter]
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &CampaignRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Campaign, models.CampaignFilter](db),
	}
}

// ByUUID retrieves a campaign by UUID
func (r *CampaignRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Campaign, error) {
	parsedUUID, err := utils.ParseUUID(uuid)
	if err != nil {
		return nil, err
	}

	filter := models.CampaignFilter{UUID: &parsedUUID}
	campaigns, err := r.ByFilter(ctx, filter, "", 1, 0)
	if err != nil {
		return nil, err
	}

	if len(campaigns) == 0 {
		return nil, nil
	}

	return campaigns[0], nil
}

// ByFilter retrieves campaigns based on filter criteria
func (r *CampaignRepositoryImpl) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	db := r.getDB(ctx)

	query := r.applyFilter(db.Model(&models.Campaign{}), filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	} else {
		query = query.Order("id DESC")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var campaigns []*models.Campaign
	if err := query.Find(&campaigns).Error; err != nil {
		return nil, fmt.Errorf("failed to find campaigns by filter: %w", err)
	}

	return campaigns, nil
}

func (r *CampaignRepositoryImpl) applyFilter(db *gorm.DB, filter models.CampaignFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.CustomerID != nil {
		db = db.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return db
}

// Update persists the campaign spec and status. The state container is
// owned by the delivery methods below and is never written here.
func (r *CampaignRepositoryImpl) Update(ctx context.Context, campaign *models.Campaign) (err error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}
	defer finish(db, shouldCommit, &err)

	now := utils.UTCNow()
	campaign.UpdatedAt = &now

	err = db.Model(&models.Campaign{}).
		Where("id = ?", campaign.ID).
		Updates(map[string]any{
			"spec":       campaign.Spec,
			"status":     campaign.Status,
			"updated_at": now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update campaign: %w", err)
	}

	return nil
}

// UpdateStatus updates only the status of a campaign
func (r *CampaignRepositoryImpl) UpdateStatus(ctx context.Context, id uint, status models.CampaignStatus) (err error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}
	defer finish(db, shouldCommit, &err)

	err = db.Model(&models.Campaign{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": utils.UTCNow(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update campaign status: %w", err)
	}

	return nil
}

// Delete removes a campaign
func (r *CampaignRepositoryImpl) Delete(ctx context.Context, id uint) (err error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}
	defer finish(db, shouldCommit, &err)

	if err = db.Delete(&models.Campaign{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}

	return nil
}

// DeliveryData returns the delivery record of a campaign
func (r *CampaignRepositoryImpl) DeliveryData(ctx context.Context, id uint) (models.DeliveryState, error) {
	db := r.getDB(ctx)

	var campaign models.Campaign
	err := db.Select("id", "state").First(&campaign, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.DeliveryState{}, fmt.Errorf("campaign %d: %w", id, gorm.ErrRecordNotFound)
		}
		return models.DeliveryState{}, fmt.Errorf("failed to load delivery state: %w", err)
	}

	return campaign.DeliveryState()
}

// MergeDeliveryData shallow-merges patch into the stored delivery record.
// The read-modify-write runs under a row lock so that concurrent writers
// never drop each other's keys.
func (r *CampaignRepositoryImpl) MergeDeliveryData(ctx context.Context, id uint, patch models.DeliveryState) (merged models.DeliveryState, err error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return merged, err
	}
	defer finish(db, shouldCommit, &err)

	campaign, err := r.lockState(db, id)
	if err != nil {
		return merged, err
	}

	now := utils.UTCNow()
	patch.UpdatedAt = &now
	fields, err := patch.Patch()
	if err != nil {
		return merged, err
	}

	current := map[string]json.RawMessage{}
	if raw, ok := campaign.State[models.DeliveryStateKey]; ok && len(raw) > 0 && string(raw) != "null" {
		if err = json.Unmarshal(raw, &current); err != nil {
			return merged, fmt.Errorf("failed to decode delivery state: %w", err)
		}
	}
	for k, v := range fields {
		current[k] = v
	}

	encoded, err := json.Marshal(current)
	if err != nil {
		return merged, fmt.Errorf("failed to encode delivery state: %w", err)
	}
	campaign.State[models.DeliveryStateKey] = encoded

	if err = r.writeState(db, id, campaign.State); err != nil {
		return merged, err
	}

	if err = json.Unmarshal(encoded, &merged); err != nil {
		return merged, fmt.Errorf("failed to decode merged delivery state: %w", err)
	}
	return merged, nil
}

// ResetDeliveryData removes the delivery record from the campaign state
func (r *CampaignRepositoryImpl) ResetDeliveryData(ctx context.Context, id uint) (err error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}
	defer finish(db, shouldCommit, &err)

	campaign, err := r.lockState(db, id)
	if err != nil {
		return err
	}
	if _, ok := campaign.State[models.DeliveryStateKey]; !ok {
		return nil
	}
	delete(campaign.State, models.DeliveryStateKey)

	return r.writeState(db, id, campaign.State)
}

func (r *CampaignRepositoryImpl) lockState(db *gorm.DB, id uint) (*models.Campaign, error) {
	var campaign models.Campaign
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "state").
		First(&campaign, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("campaign %d: %w", id, gorm.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("failed to lock campaign state: %w", err)
	}
	if campaign.State == nil {
		campaign.State = models.CampaignState{}
	}
	return &campaign, nil
}

func (r *CampaignRepositoryImpl) writeState(db *gorm.DB, id uint, state models.CampaignState) error {
	err := db.Model(&models.Campaign{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"state":      state,
			"updated_at": utils.UTCNow(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to write campaign state: %w", err)
	}
	return nil
}
