package notify

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rgacutan/bizcrm-api/internal/apperr"
	"github.com/rgacutan/bizcrm-api/internal/models"
	"github.com/rgacutan/bizcrm-api/internal/realtime"
)

// VisibilityWindow is how far back list and count queries reach.
const VisibilityWindow = 7 * 24 * time.Hour

// Broadcaster is the real-time fan-out collaborator (realtime.Hub).
type Broadcaster interface {
	Publish(channel string, ev realtime.Event)
}

// Pusher delivers to offline devices (push.Service). Implementations never
// return an error: push failure must not reach the business caller.
type Pusher interface {
	Send(userID uuid.UUID, title, message, actionURL string, notificationID uuid.UUID)
}

// Service is the durable notification store and the entry point of the
// pipeline: Dispatch resolves recipients, Create persists a row and fans out.
type Service struct {
	db     *gorm.DB
	dir    Directory
	hub    Broadcaster
	pusher Pusher
}

func NewService(db *gorm.DB, hub Broadcaster, pusher Pusher) *Service {
	return &Service{db: db, dir: gormDirectory{db: db}, hub: hub, pusher: pusher}
}

// Event is a business occurrence the pipeline turns into notifications.
type Event struct {
	Type       string
	TenantID   uuid.UUID
	CreatorID  *uuid.UUID
	AssigneeID *uuid.UUID
	StoreID    *uuid.UUID
	Title      string
	Message    string
	Priority   string // optional override of the type's default
	ActionURL  string
	ActionText string
	Metadata   map[string]interface{}
}

// Dispatch resolves the event's recipients and creates one notification per
// recipient. Resolver and store errors return to the caller; broadcast and
// push failures never do.
func (s *Service) Dispatch(ev Event) ([]models.Notification, error) {
	policy, priority, ok := PolicyFor(ev.Type)
	if !ok {
		return nil, &apperr.ValidationError{Field: "type", Reason: "unknown notification type"}
	}
	if ev.Priority != "" {
		if !models.ValidPriority(ev.Priority) {
			return nil, &apperr.ValidationError{Field: "priority", Reason: "unknown priority tier"}
		}
		priority = ev.Priority
	}

	recipients, err := Resolve(s.dir, policy, ResolveInput{
		TenantID:   ev.TenantID,
		CreatorID:  ev.CreatorID,
		AssigneeID: ev.AssigneeID,
		StoreID:    ev.StoreID,
	})
	if err != nil {
		return nil, err
	}

	notifications := make([]models.Notification, 0, len(recipients))
	for _, recipient := range recipients {
		n, err := s.Create(CreateInput{
			Recipient:  recipient,
			StoreID:    ev.StoreID,
			Type:       ev.Type,
			Title:      ev.Title,
			Message:    ev.Message,
			Priority:   priority,
			ActionURL:  ev.ActionURL,
			ActionText: ev.ActionText,
			Metadata:   ev.Metadata,
		})
		if err != nil {
			return notifications, err
		}
		notifications = append(notifications, *n)
	}
	return notifications, nil
}

type CreateInput struct {
	Recipient  models.User
	StoreID    *uuid.UUID
	Type       string
	Title      string
	Message    string
	Priority   string
	ActionURL  string
	ActionText string
	Metadata   map[string]interface{}
}

// Create persists an unread notification, publishes it to the recipient's
// user channel and, for high/urgent priority, also attempts Web Push.
func (s *Service) Create(in CreateInput) (*models.Notification, error) {
	if in.Recipient.TenantID == uuid.Nil {
		return nil, &apperr.ValidationError{Field: "recipient", Reason: "recipient has no tenant"}
	}
	if in.Title == "" {
		return nil, &apperr.ValidationError{Field: "title", Reason: "title is required"}
	}

	priority := in.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}

	n := models.Notification{
		UserID:     in.Recipient.ID,
		TenantID:   in.Recipient.TenantID,
		StoreID:    in.StoreID,
		Type:       in.Type,
		Title:      in.Title,
		Message:    in.Message,
		Priority:   priority,
		Status:     models.StatusUnread,
		ActionURL:  in.ActionURL,
		ActionText: in.ActionText,
	}

	if in.Metadata != nil {
		data, err := json.Marshal(in.Metadata)
		if err == nil {
			str := string(data)
			n.Metadata = &str
		}
	}

	if err := s.db.Create(&n).Error; err != nil {
		return nil, err
	}

	// Individual notifications go to the recipient's user channel only;
	// tenant/store channels are reserved for bulk announcements.
	s.hub.Publish(realtime.UserChannel(n.UserID), realtime.Event{
		Type: realtime.EventNewNotification,
		Data: n,
	})

	if s.pusher != nil && pushWorthy(n.Priority) {
		go s.pusher.Send(n.UserID, n.Title, n.Message, n.ActionURL, n.ID)
	}

	return &n, nil
}

func pushWorthy(priority string) bool {
	return priority == models.PriorityHigh || priority == models.PriorityUrgent
}

// MarkAsRead transitions one notification to read. Idempotent: a second call
// leaves status and read_at untouched. Invisible rows yield ErrNotFound.
func (s *Service) MarkAsRead(user *models.User, id uuid.UUID) (*models.Notification, error) {
	var n models.Notification
	if err := s.visible(user).Where("id = ?", id).First(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}

	if n.Status == models.StatusRead {
		return &n, nil
	}

	now := time.Now()
	// Guard on status so concurrent devices cannot double-write read_at.
	res := s.db.Model(&models.Notification{}).
		Where("id = ? AND status = ?", id, models.StatusUnread).
		Updates(map[string]interface{}{"status": models.StatusRead, "read_at": now})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		n.Status = models.StatusRead
		n.ReadAt = &now
		// Sync read state across the recipient's other sessions.
		s.hub.Publish(realtime.UserChannel(n.UserID), realtime.Event{
			Type: realtime.EventNotificationRead,
			Data: map[string]interface{}{"id": n.ID},
		})
	} else if err := s.db.First(&n, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

// MarkAllAsRead transitions every unread notification visible to the user to
// read in one statement, all sharing a single read_at timestamp.
func (s *Service) MarkAllAsRead(user *models.User) (int64, error) {
	now := time.Now()
	res := s.visible(user).
		Where("status = ?", models.StatusUnread).
		Updates(map[string]interface{}{"status": models.StatusRead, "read_at": now})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// ListVisible returns the user's visible notifications, newest first.
// days <= 0 falls back to the default window.
func (s *Service) ListVisible(user *models.User, days int, offset, limit int) ([]models.Notification, error) {
	var notifications []models.Notification
	err := s.visibleSince(user, windowStart(days)).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&notifications).Error
	return notifications, err
}

// CountVisible returns (total, unread) within the window.
func (s *Service) CountVisible(user *models.User, days int) (int64, int64, error) {
	var total, unread int64
	since := windowStart(days)
	if err := s.visibleSince(user, since).Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err := s.visibleSince(user, since).Where("status = ?", models.StatusUnread).Count(&unread).Error; err != nil {
		return 0, 0, err
	}
	return total, unread, nil
}

// UnreadCount returns the unread total within the default window.
func (s *Service) UnreadCount(user *models.User) (int64, error) {
	var unread int64
	err := s.visible(user).Where("status = ?", models.StatusUnread).Count(&unread).Error
	return unread, err
}

func windowStart(days int) time.Time {
	if days <= 0 {
		return time.Now().Add(-VisibilityWindow)
	}
	return time.Now().AddDate(0, 0, -days)
}

// visible scopes a query to the notifications the user may see within the
// default window: their own rows, plus tenant-wide rows for business admins,
// plus same-store rows for store-scoped roles.
func (s *Service) visible(user *models.User) *gorm.DB {
	return s.visibleSince(user, windowStart(0))
}

func (s *Service) visibleSince(user *models.User, since time.Time) *gorm.DB {
	q := s.db.Model(&models.Notification{}).Where("created_at >= ?", since)
	switch {
	case user.Role == models.RoleBusinessAdmin:
		q = q.Where("tenant_id = ?", user.TenantID)
	case user.IsStoreScoped() && user.StoreID != nil:
		q = q.Where("user_id = ? OR (tenant_id = ? AND store_id = ?)", user.ID, user.TenantID, *user.StoreID)
	default:
		q = q.Where("user_id = ?", user.ID)
	}
	return q
}

// Announce publishes a batch event to a tenant or store channel. No rows are
// written; this is the bulk-announcement path the wide channels exist for.
func (s *Service) Announce(channel string, notifications []models.Notification) {
	if len(notifications) == 0 {
		return
	}
	log.Printf("notify: announcing %d notification(s) on %s", len(notifications), channel)
	s.hub.Publish(channel, realtime.Event{
		Type: realtime.EventNotificationBatch,
		Data: notifications,
	})
}
