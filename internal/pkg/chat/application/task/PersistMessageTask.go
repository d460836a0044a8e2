package task

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	qport "github.com/lailtonjunior/ceriv-faltas/internal/infrastructure/queue/port"
	chat "github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/application/domain"
	"github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/application/usecase"

	"github.com/sirupsen/logrus"
)

// PersistMessageTaskType is the queue task name for storing an already-broadcast message.
const PersistMessageTaskType = "chat:persist_message"

// PersistMessageTaskPayload is the JSON payload transported via the queue.
// Kept decoupled from domain types to avoid tight coupling with JSON tags.
type PersistMessageTaskPayload struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	PatientID      *string   `json:"patient_id"`
	UserID         *string   `json:"user_id"`
	SenderType     string    `json:"sender_type"`
	Content        string    `json:"content"`
	Encrypted      bool      `json:"encrypted"`
	AttachmentURL  *string   `json:"attachment_url,omitempty"`
	AttachmentType *string   `json:"attachment_type,omitempty"`
	DedupeKey      *string   `json:"dedupe_key"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewPersistMessagePayload converts a broadcast-ready message into the queue DTO.
func NewPersistMessagePayload(m chat.Message) PersistMessageTaskPayload {
	return PersistMessageTaskPayload{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		PatientID:      m.PatientID,
		UserID:         m.UserID,
		SenderType:     m.SenderType,
		Content:        m.Content,
		Encrypted:      m.Encrypted,
		AttachmentURL:  m.AttachmentURL,
		AttachmentType: m.AttachmentType,
		DedupeKey:      m.DedupeKey,
		CreatedAt:      m.CreatedAt,
	}
}

// Message converts the queue DTO back into the domain shape.
func (p PersistMessageTaskPayload) Message() chat.Message {
	return chat.Message{
		ID:             p.ID,
		ConversationID: p.ConversationID,
		PatientID:      p.PatientID,
		UserID:         p.UserID,
		SenderType:     p.SenderType,
		Content:        p.Content,
		Encrypted:      p.Encrypted,
		AttachmentURL:  p.AttachmentURL,
		AttachmentType: p.AttachmentType,
		DedupeKey:      p.DedupeKey,
		CreatedAt:      p.CreatedAt,
	}
}

// RegisterPersistMessageTask binds the persist handler to the queue server.
// The dedupe upsert in the repository makes redeliveries safe. After a
// successful save the notification task is enqueued best-effort; client may
// be nil when the process runs without a queue.
func RegisterPersistMessageTask(srv qport.Server, uc *usecase.PersistMessageUseCase, client qport.Client, log logrus.FieldLogger) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	srv.Register(PersistMessageTaskType, func(ctx context.Context, t qport.Task) error {
		var p PersistMessageTaskPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			return errors.Join(err, qport.ErrNoRetry)
		}

		// give DB a reasonable time budget per task execution
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		storageID, err := uc.Execute(ctx, usecase.PersistMessageInput{Message: p.Message()})
		if err != nil {
			if errors.Is(err, usecase.ErrValidation) {
				return errors.Join(err, qport.ErrNoRetry)
			}
			return err
		}

		log.WithFields(logrus.Fields{
			"storage_id":      storageID,
			"conversation_id": p.ConversationID,
		}).Debug("message stored")

		if client != nil {
			notify, err := json.Marshal(NotifyMessageTaskPayload{
				MessageID:      storageID,
				ConversationID: p.ConversationID,
				SenderType:     p.SenderType,
				PatientID:      p.PatientID,
				UserID:         p.UserID,
			})
			if err == nil {
				_, err = client.Enqueue(ctx, qport.Task{Type: NotifyMessageTaskType, Payload: notify}, qport.EnqueueOption{Queue: "chat"})
			}
			if err != nil {
				log.WithError(err).WithField("storage_id", storageID).Warn("notification enqueue failed")
			}
		}
		return nil
	})
}
