package usecase

import (
	"context"
	"fmt"

	chat "github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/application/domain"
	repository "github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/persistence/repository/port"
)

// PersistMessageInput wraps the already-broadcast message to store.
type PersistMessageInput struct {
	Message chat.Message
}

// PersistMessageUseCase stores a message after it has been broadcast. It runs
// on the socket path inside a detached goroutine and on the REST path inside
// the queue worker, so the same retry may arrive twice; the repository's
// dedupe upsert makes that safe.
// One class per use case (own file).
type PersistMessageUseCase struct {
	Repo repository.MessageRepository
}

func NewPersistMessageUseCase(repo repository.MessageRepository) *PersistMessageUseCase {
	return &PersistMessageUseCase{Repo: repo}
}

// Execute validates the payload again (it crossed a queue or goroutine
// boundary) and saves it, returning the storage id.
func (uc *PersistMessageUseCase) Execute(ctx context.Context, in PersistMessageInput) (string, error) {
	msg, err := chat.NewMessage(in.Message)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}

	id, err := uc.Repo.Save(ctx, *msg)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return id, nil
}
