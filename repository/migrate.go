package repository

import (
	"fmt"

	"github.com/amirphl/adbridge/models"
	"gorm.io/gorm"
)

// Models lists every persisted model in dependency order
func Models() []any {
	return []any{
		&models.Campaign{},
		&models.AdPlatformConnection{},
		&models.AuditLog{},
	}
}

// AutoMigrate creates or updates the schema of every persisted model
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
