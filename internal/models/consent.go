package models

import "time"

// ConsentStatus is the aggregate state of a customer's consent record,
// recomputed from the individual flags on every write.
type ConsentStatus string

const (
	ConsentPending  ConsentStatus = "pending"
	ConsentDataOnly ConsentStatus = "data_only"
	ConsentDocsOnly ConsentStatus = "docs_only"
	ConsentComplete ConsentStatus = "complete"
	ConsentRevoked  ConsentStatus = "revoked"
)

// ConsentRecord captures a customer's privacy decision. There is at most one
// active record per national id; later decisions update it in place and the
// boolean flags are monotonic: a granted consent is never reverted by a
// narrower follow-up decision.
type ConsentRecord struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	NationalID string `gorm:"size:11;index;not null"` // digits only
	Name       string `gorm:"size:128"`
	Phone      string `gorm:"size:20"` // digits only, area code retained

	DataProcessing   bool `gorm:"default:false"`
	DocumentSharing  bool `gorm:"default:false"`
	DataProcessingAt *time.Time
	DocumentsAt      *time.Time

	Status        ConsentStatus `gorm:"size:16;default:pending;index"`
	PolicyVersion string        `gorm:"size:16"`
	Origin        string        `gorm:"size:32"` // messaging channel that captured the decision
	MessageID     string        `gorm:"size:128"`
	Notes         string        `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ConsentRecord) TableName() string { return "consent_records" }

// ComputeStatus derives the aggregate status from the flags.
func (c *ConsentRecord) ComputeStatus() ConsentStatus {
	switch {
	case c.DataProcessing && c.DocumentSharing:
		return ConsentComplete
	case c.DataProcessing:
		return ConsentDataOnly
	case c.DocumentSharing:
		return ConsentDocsOnly
	default:
		return ConsentPending
	}
}

// AllowsDataCollection reports whether the record permits collecting
// personal data. Absence of a record also permits collection; this method
// only applies to an existing one.
func (c *ConsentRecord) AllowsDataCollection() bool {
	if c.Status == ConsentRevoked {
		return false
	}
	return c.DataProcessing || c.Status == ConsentPending
}
