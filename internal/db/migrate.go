package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/hollandm/switchboard/internal/models"
)

// AllModels returns every GORM model the core persists.
func AllModels() []interface{} {
	return []interface{}{
		&models.Record{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
