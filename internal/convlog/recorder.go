// Package convlog persists conversation transcripts and consolidates them
// after finalization. Consolidation may drop system noise but never a
// message a person wrote; that rule is enforced here, not delegated.
package convlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/imobia/atende/internal/models"
)

// Recorder appends to and reads conversation transcripts.
type Recorder struct {
	db *gorm.DB
}

func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// Start opens a conversation for phone and returns its id. Any previous
// active conversation for the phone stays untouched; callers use
// ActiveByPhone first when they want to resume.
func (r *Recorder) Start(ctx context.Context, phone, name string) (string, error) {
	conv := models.Conversation{
		ID:              uuid.NewString(),
		Phone:           phone,
		ParticipantName: name,
		Status:          models.ConversationActive,
	}
	if err := r.db.WithContext(ctx).Create(&conv).Error; err != nil {
		return "", fmt.Errorf("convlog: start conversation: %w", err)
	}
	return conv.ID, nil
}

// ActiveByPhone returns the most recent active conversation id for phone,
// or "" when none exists.
func (r *Recorder) ActiveByPhone(ctx context.Context, phone string) (string, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Where("phone = ? AND status = ?", phone, models.ConversationActive).
		Order("created_at DESC").
		First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("convlog: find active conversation: %w", err)
	}
	return conv.ID, nil
}

// Append adds one message to a conversation, sequenced after the last.
func (r *Recorder) Append(ctx context.Context, conversationID string, sender models.Sender, content string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last models.ConversationMessage
		seq := 1
		err := tx.Where("conversation_id = ?", conversationID).
			Order("sequence DESC").
			First(&last).Error
		switch {
		case err == nil:
			seq = last.Sequence + 1
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return fmt.Errorf("convlog: last sequence: %w", err)
		}

		msg := models.ConversationMessage{
			ConversationID: conversationID,
			Sequence:       seq,
			Sender:         sender,
			Content:        content,
		}
		if err := tx.Create(&msg).Error; err != nil {
			return fmt.Errorf("convlog: append message: %w", err)
		}
		return nil
	})
}

// SetIdentity fills in the participant's resolved name and id once known.
func (r *Recorder) SetIdentity(ctx context.Context, conversationID, name, nationalID string) error {
	err := r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Updates(map[string]any{"participant_name": name, "national_id": nationalID}).Error
	if err != nil {
		return fmt.Errorf("convlog: set identity: %w", err)
	}
	return nil
}

// LinkNegotiation records which negotiation a conversation produced.
func (r *Recorder) LinkNegotiation(ctx context.Context, conversationID string, negotiationID uint) error {
	err := r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Update("negotiation_id", negotiationID).Error
	if err != nil {
		return fmt.Errorf("convlog: link negotiation: %w", err)
	}
	return nil
}

// Finalize closes a conversation. Closing an already finalized conversation
// is a no-op.
func (r *Recorder) Finalize(ctx context.Context, conversationID string) error {
	now := time.Now()
	err := r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ? AND status = ?", conversationID, models.ConversationActive).
		Updates(map[string]any{"status": models.ConversationFinalized, "finalized_at": now}).Error
	if err != nil {
		return fmt.Errorf("convlog: finalize: %w", err)
	}
	return nil
}

// Messages returns a conversation's transcript in sequence order.
func (r *Recorder) Messages(ctx context.Context, conversationID string) ([]models.ConversationMessage, error) {
	var msgs []models.ConversationMessage
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("sequence ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("convlog: load messages: %w", err)
	}
	return msgs, nil
}

func (r *Recorder) conversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", conversationID).First(&conv).Error
	if err != nil {
		return nil, fmt.Errorf("convlog: load conversation: %w", err)
	}
	return &conv, nil
}
