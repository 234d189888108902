package db

import (
	"fmt"

	"github.com/imobia/atende/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model the record store carries.
func AllModels() []interface{} {
	return []interface{}{
		&models.Operator{},
		&models.Customer{},
		&models.ConsentRecord{},
		&models.Conversation{},
		&models.ConversationMessage{},
		&models.Negotiation{},
		&models.Alert{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
