package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/lailtonjunior/ceriv-faltas/internal/infrastructure/identity"
	"github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/application/usecase"
	repository "github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/persistence/repository/port"

	"github.com/gin-gonic/gin"
)

// UnreadController handles the unread-count endpoint (one controller per
// endpoint). The counting side is derived from the authenticated role, never
// from the request.
type UnreadController struct {
	UC *usecase.GetUnreadCountUseCase
}

func NewUnreadController(repo repository.MessageRepository) *UnreadController {
	return &UnreadController{UC: usecase.NewGetUnreadCountUseCase(repo)}
}

func (h *UnreadController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, ok := identity.FromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Não autenticado"})
			return
		}

		conversationID := c.Query("conversation_id")

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		report, err := h.UC.Execute(ctx, usecase.GetUnreadCountInput{
			ReaderID:       ident.ParticipantID,
			ReaderType:     senderType(ident),
			ConversationID: conversationID,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro ao obter contagem"})
			return
		}

		if conversationID != "" {
			c.JSON(http.StatusOK, gin.H{
				"conversation_id": report.ConversationID,
				"count":           report.Count,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"total":           report.Total,
			"by_conversation": report.ByConversation,
		})
	}
}
