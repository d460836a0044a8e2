package adapter

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	chat "github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/application/domain"
	repository "github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/persistence/repository/port"
)

// MemoryMessageRepository implements the message repository on in-process
// state. It mirrors the postgres adapter's contract (storage-assigned ids,
// dedupe upsert, descending history) for tests and database-less runs.
type MemoryMessageRepository struct {
	mu       sync.RWMutex
	messages []*chat.Message
	byDedupe map[string]*chat.Message
}

var _ repository.MessageRepository = (*MemoryMessageRepository)(nil)

func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{byDedupe: make(map[string]*chat.Message)}
}

func (r *MemoryMessageRepository) Save(_ context.Context, m chat.Message) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m.DedupeKey != nil {
		if existing, ok := r.byDedupe[*m.DedupeKey]; ok {
			existing.Content = m.Content
			return existing.ID, nil
		}
	}

	stored := m
	stored.ID = uuid.NewString()
	r.messages = append(r.messages, &stored)
	if stored.DedupeKey != nil {
		r.byDedupe[*stored.DedupeKey] = &stored
	}
	return stored.ID, nil
}

func (r *MemoryMessageRepository) History(_ context.Context, conversationID string, limit, offset int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	r.mu.RLock()
	matched := make([]*chat.Message, 0)
	for _, m := range r.messages {
		if m.ConversationID == conversationID {
			matched = append(matched, m)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]chat.Message, len(matched))
	for i, m := range matched {
		out[i] = *m
	}
	return out, nil
}

func (r *MemoryMessageRepository) MarkRead(_ context.Context, messageIDs []string, readAt time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(messageIDs))
	var marked []string
	for _, id := range messageIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, m := range r.messages {
			if m.ID == id {
				at := readAt
				m.Read = true
				m.ReadAt = &at
				marked = append(marked, id)
				break
			}
		}
	}
	return marked, nil
}

func (r *MemoryMessageRepository) FirstMessage(_ context.Context, conversationID string) (*chat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var first *chat.Message
	for _, m := range r.messages {
		if m.ConversationID != conversationID {
			continue
		}
		if first == nil || m.CreatedAt.Before(first.CreatedAt) {
			first = m
		}
	}
	if first == nil {
		return nil, repository.ErrNotFound
	}
	out := *first
	return &out, nil
}

func (r *MemoryMessageRepository) UnreadCount(_ context.Context, senderType, conversationID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, m := range r.messages {
		if m.ConversationID == conversationID && m.SenderType == senderType && !m.Read {
			count++
		}
	}
	return count, nil
}

func (r *MemoryMessageRepository) UnreadBreakdown(_ context.Context, senderType string, patientID *string) (int, map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	byConversation := make(map[string]int)
	for _, m := range r.messages {
		if m.SenderType != senderType || m.Read {
			continue
		}
		if patientID != nil && (m.PatientID == nil || *m.PatientID != *patientID) {
			continue
		}
		byConversation[m.ConversationID]++
		total++
	}
	return total, byConversation, nil
}

// Len reports how many messages are stored.
func (r *MemoryMessageRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.messages)
}
