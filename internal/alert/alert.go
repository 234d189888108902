// Package alert records operational notifications for failures the
// conversation flow deliberately absorbs, like a consent write that kept
// failing after retries. An operator works the queue out of band.
package alert

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/imobia/atende/internal/models"
)

// RaiseOpts holds optional parameters for raising an alert.
type RaiseOpts struct {
	Phone    string
	Detail   string
	Priority string // "normal" (default), "urgent"
}

// Raise records a new alert from a component.
func Raise(db *gorm.DB, source, subject string, opts RaiseOpts) (*models.Alert, error) {
	if source == "" {
		return nil, fmt.Errorf("alert: source is required")
	}
	if subject == "" {
		return nil, fmt.Errorf("alert: subject is required")
	}

	priority := opts.Priority
	if priority == "" {
		priority = "normal"
	}

	a := models.Alert{
		Source:    source,
		Phone:     opts.Phone,
		Subject:   subject,
		Detail:    opts.Detail,
		Priority:  priority,
		CreatedAt: time.Now(),
	}
	if err := db.Create(&a).Error; err != nil {
		return nil, fmt.Errorf("alert: raise: %w", err)
	}
	return &a, nil
}

// Unresolved returns open alerts, oldest first.
func Unresolved(db *gorm.DB) ([]models.Alert, error) {
	var alerts []models.Alert
	if err := db.Where("resolved = ?", false).
		Order("created_at ASC").Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("alert: unresolved: %w", err)
	}
	return alerts, nil
}

// Resolve marks an alert as handled.
func Resolve(db *gorm.DB, alertID uint) error {
	result := db.Model(&models.Alert{}).Where("id = ?", alertID).
		Update("resolved", true)
	if result.Error != nil {
		return fmt.Errorf("alert: resolve %d: %w", alertID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("alert: alert not found: %d", alertID)
	}
	return nil
}
