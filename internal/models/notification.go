package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Priority tiers. High and urgent notifications are also attempted over
// Web Push; low and medium stay in-app only.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Status values. A notification only ever moves unread -> read.
const (
	StatusUnread = "unread"
	StatusRead   = "read"
)

type Notification struct {
	ID         uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	UserID     uuid.UUID  `json:"userId" gorm:"type:uuid;index;not null"`
	TenantID   uuid.UUID  `json:"tenantId" gorm:"type:uuid;index;not null"`
	StoreID    *uuid.UUID `json:"storeId" gorm:"type:uuid;index"`
	Type       string     `json:"type" gorm:"not null"` // see notify package for the closed set
	Title      string     `json:"title" gorm:"not null"`
	Message    string     `json:"message"`
	Priority   string     `json:"priority" gorm:"default:medium"`
	Status     string     `json:"status" gorm:"default:unread;index"`
	ActionURL  string     `json:"actionUrl"`
	ActionText string     `json:"actionText"`
	Metadata   *string    `json:"metadata"` // JSON string for navigation context (customerId, ticketId, etc.)
	CreatedAt  time.Time  `json:"createdAt"`
	ReadAt     *time.Time `json:"readAt"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}
