package repository

import (
	"context"
	"errors"
	"time"

	chat "github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/application/domain"
)

// ErrNotFound signals that the referenced record does not exist.
var ErrNotFound = errors.New("chat repository: not found")

// MessageRepository defines persistence operations for chat messages.
// Conversations and room membership are not persisted; messages are the
// only durable state this subsystem owns.
type MessageRepository interface {
	// Save inserts the message and returns the storage-assigned id. Saving
	// the same DedupeKey twice is an upsert, so retries cannot duplicate.
	Save(ctx context.Context, m chat.Message) (string, error)

	// History returns up to limit messages of a conversation ordered by
	// created_at descending, skipping offset. Unknown conversations return
	// an empty slice.
	History(ctx context.Context, conversationID string, limit, offset int) ([]chat.Message, error)

	// MarkRead flips read/read_at on every message whose id is in
	// messageIDs and returns the ids that existed. Unknown or malformed
	// ids are skipped, never an error; re-marking refreshes read_at.
	MarkRead(ctx context.Context, messageIDs []string, readAt time.Time) ([]string, error)

	// FirstMessage returns the oldest message of a conversation, or
	// ErrNotFound when it has none.
	FirstMessage(ctx context.Context, conversationID string) (*chat.Message, error)

	// UnreadCount counts unread messages authored by senderType within one
	// conversation.
	UnreadCount(ctx context.Context, senderType, conversationID string) (int, error)

	// UnreadBreakdown counts unread messages authored by senderType across
	// conversations. A non-nil patientID restricts the scan to that
	// patient's conversations. Returns the total and the per-conversation
	// counts.
	UnreadBreakdown(ctx context.Context, senderType string, patientID *string) (int, map[string]int, error)
}
