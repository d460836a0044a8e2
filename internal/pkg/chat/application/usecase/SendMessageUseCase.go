package usecase

import (
	"context"
	"fmt"
	"strings"

	chat "github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/application/domain"
	repository "github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/persistence/repository/port"

	"github.com/google/uuid"
)

// SendMessageInput carries the data needed to post a new message.
// SenderID and SenderType come from the verified identity, never from the
// request body.
type SendMessageInput struct {
	ConversationID string
	SenderID       string
	SenderType     string
	Content        string
	Encrypted      *bool // nil means the client omitted the flag; stored as true
	AttachmentURL  *string
	AttachmentType *string
}

// SendMessageUseCase validates and enriches an outgoing message so it is
// ready to broadcast. Persistence happens afterwards, asynchronously, via
// PersistMessageUseCase; the returned message already carries the provisional
// id recipients will see and the dedupe key that keeps a retried persist from
// double-inserting.
// One class per use case (own file).
type SendMessageUseCase struct {
	Repo repository.MessageRepository
}

func NewSendMessageUseCase(repo repository.MessageRepository) *SendMessageUseCase {
	return &SendMessageUseCase{Repo: repo}
}

// Execute builds the broadcast-ready message for a conversation.
func (uc *SendMessageUseCase) Execute(ctx context.Context, in SendMessageInput) (*chat.Message, error) {
	if in.ConversationID == "" || strings.TrimSpace(in.Content) == "" {
		return nil, fmt.Errorf("%w: conversation_id and content are required", ErrValidation)
	}

	encrypted := true
	if in.Encrypted != nil {
		encrypted = *in.Encrypted
	}

	// Provisional id: recipients see it immediately; storage may assign its
	// own id later while the dedupe key keeps retries idempotent.
	provisionalID := uuid.NewString()

	msg := chat.Message{
		ID:             provisionalID,
		ConversationID: in.ConversationID,
		SenderType:     in.SenderType,
		Content:        in.Content,
		Encrypted:      encrypted,
		DedupeKey:      &provisionalID,
	}

	senderID := in.SenderID
	switch in.SenderType {
	case chat.SenderTypePatient:
		msg.PatientID = &senderID
	case chat.SenderTypeStaff:
		msg.UserID = &senderID
		// The patient party comes from the conversation's first message.
		// Lookup failure or an empty conversation leaves it nil and never
		// blocks the send.
		if first, err := uc.Repo.FirstMessage(ctx, in.ConversationID); err == nil {
			msg.PatientID = chat.DeriveConversationMetadata(first).PatientID
		}
	}

	if in.AttachmentURL != nil && *in.AttachmentURL != "" {
		msg.AttachmentURL = in.AttachmentURL
		attachmentType := "file"
		if in.AttachmentType != nil && *in.AttachmentType != "" {
			attachmentType = *in.AttachmentType
		}
		msg.AttachmentType = &attachmentType
	}

	out, err := chat.NewMessage(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return out, nil
}
