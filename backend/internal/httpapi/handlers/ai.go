package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"codeweave/backend/internal/assistant"
)

type AIHandler struct {
	client *assistant.Client
}

func NewAIHandler(client *assistant.Client) *AIHandler {
	return &AIHandler{client: client}
}

func (h *AIHandler) Chat(c *gin.Context) {
	var req assistant.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	res, err := h.client.Chat(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
