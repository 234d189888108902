package models

import "time"

// Sender identifies who authored a conversation log entry. The consolidator
// is only ever allowed to drop SenderSystem entries.
type Sender string

const (
	SenderSystem   Sender = "system"
	SenderCustomer Sender = "customer"
	SenderOperator Sender = "operator"
)

// Conversation statuses.
const (
	ConversationActive    = "active"
	ConversationFinalized = "finalized"
)

// Conversation is the durable record of one WhatsApp exchange with a
// participant. Messages hang off it ordered by sequence.
type Conversation struct {
	ID              string `gorm:"primaryKey;size:36"` // UUID
	Phone           string `gorm:"size:20;index;not null"`
	ParticipantName string `gorm:"size:128"`
	NationalID      string `gorm:"size:11;index"`
	Status          string `gorm:"size:16;default:active;index"` // active, finalized
	Consolidated    bool   `gorm:"default:false"`
	NegotiationID   *uint  `gorm:"index"`
	CreatedAt       time.Time
	FinalizedAt     *time.Time

	Messages []ConversationMessage `gorm:"foreignKey:ConversationID"`
}

func (Conversation) TableName() string { return "conversations" }

// ConversationMessage is a single entry in a conversation's log.
type ConversationMessage struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	ConversationID string `gorm:"size:36;not null;index"`
	Sequence       int    `gorm:"not null"`
	Sender         Sender `gorm:"size:16;not null"`
	Content        string `gorm:"type:text;not null"`
	CreatedAt      time.Time
}

func (ConversationMessage) TableName() string { return "conversation_messages" }
