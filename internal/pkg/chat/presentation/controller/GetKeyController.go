package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/keys"

	"github.com/gin-gonic/gin"
)

// GetKeyController resolves a participant's public key (one controller per
// endpoint).
type GetKeyController struct {
	Directory keys.Directory
}

func NewGetKeyController(directory keys.Directory) *GetKeyController {
	return &GetKeyController{Directory: directory}
}

func (h *GetKeyController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		participantID := c.Param("participantID")
		if participantID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "participante não informado"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		publicKey, err := h.Directory.PublicKey(ctx, participantID)
		if err != nil {
			if errors.Is(err, keys.ErrKeyNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "chave não encontrada"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro ao buscar chave"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"participant_id": participantID,
			"public_key":     publicKey,
		})
	}
}
