package convlog

import (
	"context"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"

	"github.com/imobia/atende/internal/models"
)

// Strategy proposes which messages of a finalized transcript are removable
// noise. Proposals are advisory: the consolidator re-checks every index and
// ignores any that points at a customer or operator message.
type Strategy interface {
	Propose(ctx context.Context, msgs []models.ConversationMessage) []int
}

// Consolidator rewrites finalized transcripts down to their useful content.
type Consolidator struct {
	db       *gorm.DB
	recorder *Recorder
	strategy Strategy
}

func NewConsolidator(db *gorm.DB, strategy Strategy) *Consolidator {
	return &Consolidator{
		db:       db,
		recorder: NewRecorder(db),
		strategy: strategy,
	}
}

// Consolidate trims a finalized conversation's transcript. It is idempotent
// and refuses active conversations. Whatever the strategy proposes, only
// system messages are ever deleted.
func (c *Consolidator) Consolidate(ctx context.Context, conversationID string) error {
	conv, err := c.recorder.conversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.Status != models.ConversationFinalized {
		return fmt.Errorf("convlog: conversation %s is not finalized", conversationID)
	}
	if conv.Consolidated {
		return nil
	}

	msgs, err := c.recorder.Messages(ctx, conversationID)
	if err != nil {
		return err
	}

	proposed := c.strategy.Propose(ctx, msgs)
	drop := make(map[int]bool)
	for _, idx := range proposed {
		if idx < 0 || idx >= len(msgs) {
			continue
		}
		if msgs[idx].Sender != models.SenderSystem {
			log.Printf("convlog: strategy proposed dropping a %s message in %s, ignored",
				msgs[idx].Sender, conversationID)
			continue
		}
		drop[idx] = true
	}

	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for idx := range drop {
			if err := tx.Delete(&models.ConversationMessage{}, msgs[idx].ID).Error; err != nil {
				return fmt.Errorf("convlog: delete message %d: %w", msgs[idx].ID, err)
			}
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Update("consolidated", true).Error
	})
	if err != nil {
		return fmt.Errorf("convlog: consolidate %s: %w", conversationID, err)
	}

	log.Printf("convlog: consolidated %s, dropped %d of %d messages",
		conversationID, len(drop), len(msgs))
	return nil
}

// Collapse is the deterministic strategy: it proposes a system message for
// removal only when it repeats the system message immediately before it.
// Used standalone or as the fallback when the remote strategy proposes
// nothing.
type Collapse struct{}

func (Collapse) Propose(_ context.Context, msgs []models.ConversationMessage) []int {
	var out []int
	for i := 1; i < len(msgs); i++ {
		m, prev := msgs[i], msgs[i-1]
		if m.Sender != models.SenderSystem || prev.Sender != models.SenderSystem {
			continue
		}
		if strings.TrimSpace(m.Content) == strings.TrimSpace(prev.Content) {
			out = append(out, i)
		}
	}
	return out
}

// ProposeFunc adapts a function to the Strategy interface.
type ProposeFunc func(ctx context.Context, msgs []models.ConversationMessage) []int

func (f ProposeFunc) Propose(ctx context.Context, msgs []models.ConversationMessage) []int {
	return f(ctx, msgs)
}
