package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/crypto"
	"github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/keys"

	"github.com/gin-gonic/gin"
)

// RegisterKeyController handles public key registration (one controller per
// endpoint). Only public keys ever arrive here; private keys stay with the
// clients.
type RegisterKeyController struct {
	Directory keys.Directory
}

func NewRegisterKeyController(directory keys.Directory) *RegisterKeyController {
	return &RegisterKeyController{Directory: directory}
}

type registerKeyRequest struct {
	ParticipantID string `json:"participant_id" binding:"required"`
	PublicKey     string `json:"public_key" binding:"required"`
}

func (h *RegisterKeyController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Dados incompletos"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		if err := h.Directory.RegisterPublicKey(ctx, req.ParticipantID, req.PublicKey); err != nil {
			if errors.Is(err, crypto.ErrInvalidKey) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "chave pública inválida"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro ao registrar chave"})
			return
		}

		c.Status(http.StatusNoContent)
	}
}
