package models

import "time"

// Alert is an operational notification raised when a best-effort write
// fails. Failures surface here instead of through the conversation, so the
// user-facing reply path is never blocked on persistence.
type Alert struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Source    string `gorm:"size:32;not null;index"` // component that raised it
	Phone     string `gorm:"size:20;index"`
	Subject   string `gorm:"size:256;not null"`
	Detail    string `gorm:"type:text"`
	Priority  string `gorm:"size:8;default:normal"`
	Resolved  bool   `gorm:"default:false;index"`
	CreatedAt time.Time
}

func (Alert) TableName() string { return "alerts" }
