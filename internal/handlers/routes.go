package handlers

import (
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(router gin.IRouter, chat *ChatHandler, orders *OrderHandler) {
	api := router.Group("/api")
	{
		api.GET("/restaurants/:restaurant_id/menu", orders.GetMenu)
		api.POST("/restaurants/:restaurant_id/tables/:table/messages", chat.HandleMessage)
		api.POST("/restaurants/:restaurant_id/tables/:table/orders", orders.CreateOrder)

		api.GET("/actions/:action_id", chat.GetAction)
		api.POST("/actions/:action_id/confirm", chat.ConfirmAction)
		api.POST("/actions/:action_id/decline", chat.DeclineAction)

		api.GET("/orders/:order_id", orders.GetOrder)
		api.PUT("/orders/:order_id/status", orders.UpdateOrderStatus)

		api.GET("/sessions/:session_id", orders.GetSession)
		api.POST("/sessions/:session_id/recompute", orders.RecomputeSession)
		api.POST("/sessions/:session_id/close", orders.CloseSession)
	}
}
