package usecase

import (
	"context"
	"fmt"
	"time"

	repository "github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/persistence/repository/port"
)

// MarkAsReadInput carries the message ids to flag as read.
type MarkAsReadInput struct {
	MessageIDs []string
}

// MarkAsReadUseCase flags messages as read by id lookup alone. Unknown ids
// are skipped silently so one stale id cannot fail the batch, and re-marking
// an already-read message refreshes read_at.
// One class per use case (own file).
type MarkAsReadUseCase struct {
	Repo repository.MessageRepository
}

func NewMarkAsReadUseCase(repo repository.MessageRepository) *MarkAsReadUseCase {
	return &MarkAsReadUseCase{Repo: repo}
}

// Execute marks the given messages and returns the ids that actually existed.
func (uc *MarkAsReadUseCase) Execute(ctx context.Context, in MarkAsReadInput) ([]string, error) {
	if len(in.MessageIDs) == 0 {
		return nil, fmt.Errorf("%w: message_ids are required", ErrValidation)
	}

	marked, err := uc.Repo.MarkRead(ctx, in.MessageIDs, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return marked, nil
}
