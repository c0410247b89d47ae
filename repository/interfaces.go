// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/amirphl/adbridge/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
}

// CampaignRepository defines operations for local campaigns and their delivery state
type CampaignRepository interface {
	Repository[models.Campaign, models.CampaignFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Campaign, error)
	Update(ctx context.Context, campaign *models.Campaign) error
	UpdateStatus(ctx context.Context, id uint, status models.CampaignStatus) error
	Delete(ctx context.Context, id uint) error

	// DeliveryData returns the delivery record of a campaign
	DeliveryData(ctx context.Context, id uint) (models.DeliveryState, error)
	// MergeDeliveryData shallow-merges the non-nil fields of patch into the
	// stored record and returns the merged result. Other keys are preserved.
	MergeDeliveryData(ctx context.Context, id uint, patch models.DeliveryState) (models.DeliveryState, error)
	// ResetDeliveryData removes the delivery record, leaving the rest of the state intact
	ResetDeliveryData(ctx context.Context, id uint) error
}

// AdPlatformConnectionRepository defines operations for ad platform connections
type AdPlatformConnectionRepository interface {
	ByCampaignID(ctx context.Context, campaignID uint) (*models.AdPlatformConnection, error)
	ByCampaignIDs(ctx context.Context, campaignIDs []uint) ([]*models.AdPlatformConnection, error)
	UpsertToken(ctx context.Context, campaignID uint, fbUserID, token string, expiresAt time.Time) error
	UpdateSelection(ctx context.Context, campaignID uint, selection models.ConnectionSelection) error
	ClearSelection(ctx context.Context, campaignID uint) error
	SetPaymentConnected(ctx context.Context, campaignID uint, adAccountID string, connected bool) error
	Disconnect(ctx context.Context, campaignID uint) error
	DeleteByCampaignID(ctx context.Context, campaignID uint) error
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	ListByCampaign(ctx context.Context, campaignID uint, limit, offset int) ([]*models.AuditLog, error)
}
