package handlers

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"

	"github.com/rgacutan/bizcrm-api/internal/middleware"
	"github.com/rgacutan/bizcrm-api/internal/models"
	"github.com/rgacutan/bizcrm-api/internal/notify"
	"github.com/rgacutan/bizcrm-api/internal/realtime"
)

// SocketHandler is the connection gateway: it authenticates the upgrade,
// joins the connection to its channels and tears membership down on any exit.
type SocketHandler struct {
	db     *gorm.DB
	hub    *realtime.Hub
	notify *notify.Service
}

func NewSocket(db *gorm.DB, hub *realtime.Hub, notifySvc *notify.Service) *SocketHandler {
	return &SocketHandler{db: db, hub: hub, notify: notifySvc}
}

// inboundFrame is a client message; only the discriminator matters here.
type inboundFrame struct {
	Type string `json:"type"`
}

// Upgrade checks the upgrade request and validates the bearer token carried
// in the `token` query parameter (Authorization header for non-browser
// clients). Invalid, expired, unknown or inactive -> refused before accept.
func (h *SocketHandler) Upgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		tokenString := c.Query("token")
		if tokenString == "" {
			authHeader := c.Get("Authorization")
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				tokenString = ""
			}
		}

		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authentication token",
			})
		}

		claims, err := middleware.ParseToken(tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		var user models.User
		if err := h.db.First(&user, "id = ?", claims.UserID).Error; err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unknown user",
			})
		}
		if !user.Active {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Inactive user",
			})
		}

		c.Locals("user", &user)
		return c.Next()
	}
}

// wsSink adapts *websocket.Conn to the hub's transport interface.
type wsSink struct {
	conn *websocket.Conn
}

func (s wsSink) WriteText(data []byte) error {
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s wsSink) Close() error {
	return s.conn.Close()
}

// Handle runs one authenticated connection: join channels, send the unread
// backlog, then read frames sequentially until the peer goes away.
func (h *SocketHandler) Handle(c *websocket.Conn) {
	user, ok := c.Locals("user").(*models.User)
	if !ok {
		c.Close()
		return
	}

	conn := h.hub.Register(wsSink{conn: c})

	// Membership is recomputed on every connect: user channel always,
	// tenant and store when present.
	channels := []string{realtime.UserChannel(user.ID), realtime.TenantChannel(user.TenantID)}
	if user.StoreID != nil {
		channels = append(channels, realtime.StoreChannel(*user.StoreID))
	}
	for _, ch := range channels {
		h.hub.Join(ch, conn)
	}
	defer func() {
		for _, ch := range channels {
			h.hub.Leave(ch, conn)
		}
		conn.Close()
	}()

	h.sendBacklog(user, conn)

	// Frames are handled sequentially per connection; each iteration's
	// ReadMessage only ever blocks this goroutine.
	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			break
		}
		var frame inboundFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			continue
		}
		if frame.Type == "ping" {
			conn.Send(realtime.Event{Type: realtime.EventPong})
		}
	}
}

// sendBacklog pushes the user's recent unread notifications as one batch so
// a reconnecting client catches up without polling.
func (h *SocketHandler) sendBacklog(user *models.User, conn *realtime.Conn) {
	var backlog []models.Notification
	err := h.db.Where("user_id = ? AND status = ?", user.ID, models.StatusUnread).
		Order("created_at DESC").
		Limit(50).
		Find(&backlog).Error
	if err != nil || len(backlog) == 0 {
		return
	}
	conn.Send(realtime.Event{Type: realtime.EventNotificationBatch, Data: backlog})
}
