package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rgacutan/bizcrm-api/internal/apperr"
	"github.com/rgacutan/bizcrm-api/internal/middleware"
	"github.com/rgacutan/bizcrm-api/internal/models"
	"github.com/rgacutan/bizcrm-api/internal/notify"
	"github.com/rgacutan/bizcrm-api/internal/push"
)

// Handler serves the notification record surface and push registration.
type Handler struct {
	db     *gorm.DB
	notify *notify.Service
	push   *push.Service
}

func New(db *gorm.DB, notifySvc *notify.Service, pushSvc *push.Service) *Handler {
	return &Handler{db: db, notify: notifySvc, push: pushSvc}
}

// currentUser loads the authenticated user row.
func (h *Handler) currentUser(c *fiber.Ctx) (*models.User, error) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return nil, apperr.ErrUnauthorized
	}
	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, apperr.ErrUnauthorized
	}
	if !user.Active {
		return nil, apperr.ErrUnauthorized
	}
	return &user, nil
}

// GetNotifications returns paginated notifications visible to the current user
func (h *Handler) GetNotifications(c *fiber.Ctx) error {
	user, err := h.currentUser(c)
	if err != nil {
		return unauthorized(c)
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	days, _ := strconv.Atoi(c.Query("days", "0"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 50 {
		limit = 20
	}
	offset := (page - 1) * limit

	notifications, err := h.notify.ListVisible(user, days, offset, limit)
	if err != nil {
		return internalError(c, "Failed to load notifications")
	}

	total, unread, err := h.notify.CountVisible(user, days)
	if err != nil {
		return internalError(c, "Failed to count notifications")
	}

	return c.JSON(fiber.Map{
		"notifications": notifications,
		"total":         total,
		"unread":        unread,
		"page":          page,
		"limit":         limit,
	})
}

// GetUnreadCount returns the unread badge count for the current user
func (h *Handler) GetUnreadCount(c *fiber.Ctx) error {
	user, err := h.currentUser(c)
	if err != nil {
		return unauthorized(c)
	}

	unread, err := h.notify.UnreadCount(user)
	if err != nil {
		return internalError(c, "Failed to count notifications")
	}

	return c.JSON(fiber.Map{"unread": unread})
}

// MarkNotificationRead marks a single notification as read
func (h *Handler) MarkNotificationRead(c *fiber.Ctx) error {
	user, err := h.currentUser(c)
	if err != nil {
		return unauthorized(c)
	}

	notifID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid notification ID",
		})
	}

	n, err := h.notify.MarkAsRead(user, notifID)
	if errors.Is(err, apperr.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Notification not found",
		})
	}
	if err != nil {
		return internalError(c, "Failed to mark notification as read")
	}

	return c.JSON(n)
}

// MarkAllRead marks every visible unread notification as read
func (h *Handler) MarkAllRead(c *fiber.Ctx) error {
	user, err := h.currentUser(c)
	if err != nil {
		return unauthorized(c)
	}

	updated, err := h.notify.MarkAllAsRead(user)
	if err != nil {
		return internalError(c, "Failed to mark notifications as read")
	}

	return c.JSON(fiber.Map{"success": true, "updated": updated})
}

// Subscribe registers a Web Push endpoint for the current user
func (h *Handler) Subscribe(c *fiber.Ctx) error {
	user, err := h.currentUser(c)
	if err != nil {
		return unauthorized(c)
	}

	var req models.SubscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid subscription payload",
		})
	}

	sub, err := h.push.Subscribe(user, req.Endpoint, req.Keys.P256dh, req.Keys.Auth)
	var verr *apperr.ValidationError
	if errors.As(err, &verr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": verr.Error(),
		})
	}
	if err != nil {
		return internalError(c, "Failed to save subscription")
	}

	return c.Status(fiber.StatusCreated).JSON(sub)
}

// Unsubscribe removes a Web Push endpoint owned by the current user
func (h *Handler) Unsubscribe(c *fiber.Ctx) error {
	user, err := h.currentUser(c)
	if err != nil {
		return unauthorized(c)
	}

	var req models.UnsubscribeRequest
	if err := c.BodyParser(&req); err != nil || req.Endpoint == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Endpoint is required",
		})
	}

	err = h.push.Unsubscribe(user, req.Endpoint)
	if errors.Is(err, apperr.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Subscription not found",
		})
	}
	if err != nil {
		return internalError(c, "Failed to remove subscription")
	}

	return c.JSON(fiber.Map{"success": true})
}

// GetPublicKey returns the VAPID public key clients subscribe with
func (h *Handler) GetPublicKey(c *fiber.Ctx) error {
	key, err := h.push.PublicKey()
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Web push is not configured",
		})
	}
	return c.JSON(fiber.Map{"publicKey": key})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": "Unknown or inactive user",
	})
}

func internalError(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": msg,
	})
}
