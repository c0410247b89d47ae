// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/adbridge/models"
	"gorm.io/gorm"
)

// AuditLogRepositoryImpl implements AuditLogRepository interface
type AuditLogRepositoryImpl struct {
	*BaseRepository[models.AuditLog, models.AuditLogFilter]
}

// NewAuditLogRepository creates a new audit log repository
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &AuditLogRepositoryImpl{
		BaseRepository: NewBaseRepository[models.AuditLog, models.AuditLogFilter](db),
	}
}

// ByFilter retrieves audit logs based on filter criteria
func (r *AuditLogRepositoryImpl) ByFilter(ctx context.Context, filter models.AuditLogFilter, orderBy string, limit, offset int) ([]*models.AuditLog, error) {
	db := r.getDB(ctx).Model(&models.AuditLog{})

	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.CustomerID != nil {
		db = db.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.CampaignID != nil {
		db = db.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.Action != nil {
		db = db.Where("action = ?", *filter.Action)
	}
	if filter.Success != nil {
		db = db.Where("success = ?", *filter.Success)
	}
	if filter.RequestID != nil {
		db = db.Where("request_id = ?", *filter.RequestID)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at <= ?", *filter.CreatedBefore)
	}

	if orderBy == "" {
		orderBy = "id DESC"
	}
	db = db.Order(orderBy)
	if limit > 0 {
		db = db.Limit(limit)
	}
	if offset > 0 {
		db = db.Offset(offset)
	}

	var logs []*models.AuditLog
	if err := db.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to find audit logs by filter: %w", err)
	}

	return logs, nil
}

// ListByCampaign retrieves audit logs for a specific campaign with pagination
func (r *AuditLogRepositoryImpl) ListByCampaign(ctx context.Context, campaignID uint, limit, offset int) ([]*models.AuditLog, error) {
	return r.ByFilter(ctx, models.AuditLogFilter{CampaignID: &campaignID}, "id DESC", limit, offset)
}
