package convlog

import (
	"context"

	"github.com/imobia/atende/internal/classify"
	"github.com/imobia/atende/internal/models"
)

// Proposer is the model-backed side of the Remote strategy. Satisfied by
// *classify.Client.
type Proposer interface {
	ProposeRemovals(ctx context.Context, entries []classify.LogEntry) []int
}

// Remote asks a model which system messages are noise, falling back to the
// deterministic Collapse when the model proposes nothing.
type Remote struct {
	Proposer Proposer
}

func (r Remote) Propose(ctx context.Context, msgs []models.ConversationMessage) []int {
	entries := make([]classify.LogEntry, len(msgs))
	for i, m := range msgs {
		entries[i] = classify.LogEntry{
			Index:   i,
			Sender:  string(m.Sender),
			Content: m.Content,
		}
	}
	if out := r.Proposer.ProposeRemovals(ctx, entries); len(out) > 0 {
		return out
	}
	return Collapse{}.Propose(ctx, msgs)
}
