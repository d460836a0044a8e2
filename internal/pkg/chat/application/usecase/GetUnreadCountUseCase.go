package usecase

import (
	"context"
	"fmt"

	chat "github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/application/domain"
	repository "github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/persistence/repository/port"
)

// GetUnreadCountInput identifies the reader and an optional conversation
// scope. An empty ConversationID asks for the per-conversation breakdown.
type GetUnreadCountInput struct {
	ReaderID       string
	ReaderType     string
	ConversationID string
}

// UnreadReport carries either a scoped count (ConversationID set) or the
// unscoped totals (ByConversation set), mirroring the two reply shapes.
type UnreadReport struct {
	ConversationID string
	Count          int
	Total          int
	ByConversation map[string]int
}

// GetUnreadCountUseCase counts messages awaiting the reader: staff readers
// count unread patient-authored messages, patient readers count unread
// staff-authored ones. The unscoped breakdown restricts patients to their own
// conversations while staff scan everything.
// One class per use case (own file).
type GetUnreadCountUseCase struct {
	Repo repository.MessageRepository
}

func NewGetUnreadCountUseCase(repo repository.MessageRepository) *GetUnreadCountUseCase {
	return &GetUnreadCountUseCase{Repo: repo}
}

// Execute resolves the unread count for the reader.
func (uc *GetUnreadCountUseCase) Execute(ctx context.Context, in GetUnreadCountInput) (*UnreadReport, error) {
	if in.ReaderID == "" {
		return nil, fmt.Errorf("%w: reader id is required", ErrValidation)
	}

	// The reader counts what the other side wrote.
	counted := chat.SenderTypePatient
	var patientScope *string
	if in.ReaderType == chat.SenderTypePatient {
		counted = chat.SenderTypeStaff
		readerID := in.ReaderID
		patientScope = &readerID
	}

	if in.ConversationID != "" {
		count, err := uc.Repo.UnreadCount(ctx, counted, in.ConversationID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		return &UnreadReport{ConversationID: in.ConversationID, Count: count}, nil
	}

	total, byConversation, err := uc.Repo.UnreadBreakdown(ctx, counted, patientScope)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return &UnreadReport{Total: total, ByConversation: byConversation}, nil
}
