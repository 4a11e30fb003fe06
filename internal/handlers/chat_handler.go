package handlers

import (
	"errors"
	"net/http"

	"table_waiter/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ChatHandler serves the diner-facing conversation: messages in, proposals
// and answers to proposals out.
type ChatHandler struct {
	assistant services.AssistantService
	log       logrus.FieldLogger
}

func NewChatHandler(assistant services.AssistantService, log logrus.FieldLogger) *ChatHandler {
	return &ChatHandler{assistant: assistant, log: log}
}

type MessageRequest struct {
	Message string `json:"message" binding:"required"`
}

func (h *ChatHandler) HandleMessage(c *gin.Context) {
	restaurantID, ok := uintParam(c, "restaurant_id")
	if !ok {
		return
	}
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	reply, err := h.assistant.HandleMessage(c.Request.Context(), services.ChatRequest{
		RestaurantID: restaurantID,
		TableNumber:  c.Param("table"),
		Message:      req.Message,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

func (h *ChatHandler) ConfirmAction(c *gin.Context) {
	outcome, err := h.assistant.Confirm(c.Request.Context(), c.Param("action_id"))
	switch {
	case errors.Is(err, services.ErrActionExpired) && outcome != nil:
		c.JSON(http.StatusGone, outcome)
	case err != nil:
		respondError(c, h.log, err)
	case outcome.Conflict:
		c.JSON(http.StatusConflict, outcome)
	default:
		c.JSON(http.StatusOK, outcome)
	}
}

func (h *ChatHandler) DeclineAction(c *gin.Context) {
	outcome, err := h.assistant.Decline(c.Request.Context(), c.Param("action_id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (h *ChatHandler) GetAction(c *gin.Context) {
	action, err := h.assistant.GetAction(c.Request.Context(), c.Param("action_id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, action)
}
