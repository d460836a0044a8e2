package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/lailtonjunior/ceriv-faltas/internal/infrastructure/identity"
	queueport "github.com/lailtonjunior/ceriv-faltas/internal/infrastructure/queue/port"
	"github.com/lailtonjunior/ceriv-faltas/internal/infrastructure/realtime"
	"github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/application/task"
	"github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/application/usecase"
	repository "github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/persistence/repository/port"
	"github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/presentation/protocol"

	"github.com/gin-gonic/gin"
)

// SendMessageController handles the REST send endpoint only (one controller
// per endpoint). Unlike the socket path it persists through the queue:
// storage is the primary effect here and enqueue failure must surface to the
// caller before anything is broadcast.
type SendMessageController struct {
	Q       queueport.Client
	UC      *usecase.SendMessageUseCase
	rooms   *realtime.Rooms
	timeout time.Duration
}

func NewSendMessageController(repo repository.MessageRepository, client queueport.Client, rooms *realtime.Rooms) *SendMessageController {
	return &SendMessageController{
		Q:       client,
		UC:      usecase.NewSendMessageUseCase(repo),
		rooms:   rooms,
		timeout: 3 * time.Second,
	}
}

// sendMessageRequest is the DTO for the HTTP request body
type sendMessageRequest struct {
	ConversationID string  `json:"conversation_id" binding:"required"`
	Content        string  `json:"content" binding:"required"`
	Encrypted      *bool   `json:"encrypted"`
	AttachmentURL  *string `json:"attachment_url"`
	AttachmentType *string `json:"attachment_type"`
}

// Handle returns a gin handler that enqueues the persist task and fans the
// message out to connected room members.
func (h *SendMessageController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, ok := identity.FromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Não autenticado"})
			return
		}

		var req sendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Dados incompletos"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
		defer cancel()

		msg, err := h.UC.Execute(ctx, usecase.SendMessageInput{
			ConversationID: req.ConversationID,
			SenderID:       ident.ParticipantID,
			SenderType:     senderType(ident),
			Content:        req.Content,
			Encrypted:      req.Encrypted,
			AttachmentURL:  req.AttachmentURL,
			AttachmentType: req.AttachmentType,
		})
		if err != nil {
			if errors.Is(err, usecase.ErrValidation) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Dados incompletos"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro ao processar mensagem"})
			return
		}

		payload, err := json.Marshal(task.NewPersistMessagePayload(*msg))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode task payload"})
			return
		}

		opts := queueport.EnqueueOption{Queue: "chat", MaxRetry: 20}
		taskID, err := h.Q.Enqueue(ctx, queueport.Task{Type: task.PersistMessageTaskType, Payload: payload}, opts)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to enqueue message"})
			return
		}

		// Fan out to whoever has the room open right now, the sender's own
		// sockets included.
		if frame, err := protocol.Encode(protocol.EventNewMessage, protocol.NewWireMessage(*msg)); err == nil {
			h.rooms.Broadcast(msg.ConversationID, frame, "")
		}

		c.JSON(http.StatusAccepted, gin.H{
			"id":              msg.ID,
			"conversation_id": msg.ConversationID,
			"task_id":         taskID,
			"status":          "queued",
		})
	}
}
