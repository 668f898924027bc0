package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/rgacutan/bizcrm-api/internal/handlers"
	"github.com/rgacutan/bizcrm-api/internal/middleware"
)

func Setup(app *fiber.App, h *handlers.Handler, ws *handlers.SocketHandler) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api", middleware.Protected())

	notifications := api.Group("/notifications")
	notifications.Get("/", h.GetNotifications)
	notifications.Get("/unread-count", h.GetUnreadCount)
	notifications.Put("/:id/read", h.MarkNotificationRead)
	notifications.Post("/read-all", h.MarkAllRead)

	push := api.Group("/push")
	push.Post("/subscribe", h.Subscribe)
	push.Post("/unsubscribe", h.Unsubscribe)
	push.Get("/public-key", h.GetPublicKey)

	// WebSocket for real-time notifications
	app.Use("/ws", ws.Upgrade())
	app.Get("/ws/notifications", websocket.New(ws.Handle, websocket.Config{
		HandshakeTimeout: 10 * time.Second,
	}))
}
