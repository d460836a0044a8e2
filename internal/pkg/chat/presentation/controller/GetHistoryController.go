package controller

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/application/usecase"
	repository "github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/persistence/repository/port"
	"github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/presentation/protocol"

	"github.com/gin-gonic/gin"
)

// GetHistoryController handles fetching a conversation's messages (one
// controller per endpoint).
type GetHistoryController struct {
	UC *usecase.GetHistoryUseCase
}

func NewGetHistoryController(repo repository.MessageRepository) *GetHistoryController {
	return &GetHistoryController{UC: usecase.NewGetHistoryUseCase(repo)}
}

func (h *GetHistoryController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversationID")
		if conversationID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ID de conversação não fornecido"})
			return
		}

		limit := 0
		offset := 0
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}
		if v := c.Query("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		page, err := h.UC.Execute(ctx, usecase.GetHistoryInput{
			ConversationID: conversationID,
			Limit:          limit,
			Offset:         offset,
		})
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, usecase.ErrPersistence) {
				status = http.StatusInternalServerError
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"conversation_id": page.ConversationID,
			"messages":        protocol.NewWireMessages(page.Messages),
			"total":           page.Total,
			"has_more":        page.HasMore,
		})
	}
}
