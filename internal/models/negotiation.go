package models

import "time"

// Negotiation is the downstream hand-off record created when the data
// collection pipeline completes. Operators pick these up outside this
// system; the orchestrator only writes them, best-effort.
type Negotiation struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	CustomerID *uint  `gorm:"index"`
	Name       string `gorm:"size:128;not null"`
	Phone      string `gorm:"size:20;index;not null"`
	Email      string `gorm:"size:128"`
	NationalID string `gorm:"size:11;index"`
	Modality   string `gorm:"size:32;default:residential"`
	Status     string `gorm:"size:32;default:collecting_documents;index"`
	Address    string `gorm:"size:256"`
	Age        int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (Negotiation) TableName() string { return "negotiations" }
