package usecase

import (
	"context"
	"fmt"

	chat "github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/application/domain"
	repository "github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/persistence/repository/port"
)

// GetHistoryInput carries paging parameters for a conversation's messages.
type GetHistoryInput struct {
	ConversationID string
	Limit          int
	Offset         int
}

// ConversationHistory is one page of messages, newest first. Total counts the
// messages in this page, and HasMore is the full-page heuristic: true exactly
// when the page came back at the limit, so the last page of an exact multiple
// reports one phantom page.
type ConversationHistory struct {
	ConversationID string
	Messages       []chat.Message
	Total          int
	HasMore        bool
}

// GetHistoryUseCase fetches one page of a conversation's messages.
// One class per use case (own file).
type GetHistoryUseCase struct {
	Repo repository.MessageRepository
}

func NewGetHistoryUseCase(repo repository.MessageRepository) *GetHistoryUseCase {
	return &GetHistoryUseCase{Repo: repo}
}

// Execute returns messages ordered created_at descending, window
// [offset, offset+limit). Limit defaults to 50.
func (uc *GetHistoryUseCase) Execute(ctx context.Context, in GetHistoryInput) (*ConversationHistory, error) {
	if in.ConversationID == "" {
		return nil, fmt.Errorf("%w: conversation_id is required", ErrValidation)
	}

	limit := in.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := in.Offset
	if offset < 0 {
		offset = 0
	}

	msgs, err := uc.Repo.History(ctx, in.ConversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	return &ConversationHistory{
		ConversationID: in.ConversationID,
		Messages:       msgs,
		Total:          len(msgs),
		HasMore:        len(msgs) == limit,
	}, nil
}
