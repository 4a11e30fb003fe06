package handlers

import (
	"net/http"

	"table_waiter/internal/models"
	"table_waiter/internal/repository"
	"table_waiter/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// OrderHandler exposes orders, sessions and the menu to staff screens.
type OrderHandler struct {
	orders        services.OrderService
	sessions      services.SessionService
	menuRepo      repository.MenuRepository
	conversations services.ConversationStore
	log           logrus.FieldLogger
}

func NewOrderHandler(
	orders services.OrderService,
	sessions services.SessionService,
	menuRepo repository.MenuRepository,
	conversations services.ConversationStore,
	log logrus.FieldLogger,
) *OrderHandler {
	return &OrderHandler{
		orders:        orders,
		sessions:      sessions,
		menuRepo:      menuRepo,
		conversations: conversations,
		log:           log,
	}
}

type CreateOrderRequest struct {
	Items []services.OrderItemInput `json:"items" binding:"required"`
	Notes string                    `json:"notes"`
}

type UpdateStatusRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
}

func (h *OrderHandler) GetMenu(c *gin.Context) {
	restaurantID, ok := uintParam(c, "restaurant_id")
	if !ok {
		return
	}
	menu, err := h.menuRepo.ListByRestaurant(c.Request.Context(), restaurantID, c.Query("all") != "true")
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": menu})
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	restaurantID, ok := uintParam(c, "restaurant_id")
	if !ok {
		return
	}
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), restaurantID, c.Param("table"), req.Items, req.Notes)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	orderID, ok := uintParam(c, "order_id")
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	orderID, ok := uintParam(c, "order_id")
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	order, err := h.orders.UpdateOrderStatus(c.Request.Context(), orderID, req.Status)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) GetSession(c *gin.Context) {
	sessionID, ok := uintParam(c, "session_id")
	if !ok {
		return
	}
	session, err := h.sessions.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	orders, err := h.orders.ListSessionOrders(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session, "orders": orders})
}

func (h *OrderHandler) RecomputeSession(c *gin.Context) {
	sessionID, ok := uintParam(c, "session_id")
	if !ok {
		return
	}
	if _, err := h.sessions.GetSession(c.Request.Context(), sessionID); err != nil {
		respondError(c, h.log, err)
		return
	}
	stats, err := h.sessions.RecomputeSessionStats(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// CloseSession ends the table's visit and forgets its conversation.
func (h *OrderHandler) CloseSession(c *gin.Context) {
	sessionID, ok := uintParam(c, "session_id")
	if !ok {
		return
	}
	session, err := h.sessions.CloseSession(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if h.conversations != nil {
		if err := h.conversations.ClearConversation(c.Request.Context(), sessionID); err != nil {
			h.log.WithError(err).WithField("session_id", sessionID).Warn("Failed to clear conversation")
		}
	}
	c.JSON(http.StatusOK, session)
}
