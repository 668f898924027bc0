package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role values for User.Role
const (
	RoleBusinessAdmin = "business_admin"
	RoleStoreManager  = "store_manager"
	RoleSalesperson   = "salesperson"
	RoleTeleCaller    = "tele_caller"
	RoleSupport       = "support"
)

type User struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID  uuid.UUID  `json:"tenantId" gorm:"type:uuid;index;not null"`
	StoreID   *uuid.UUID `json:"storeId" gorm:"type:uuid;index"`
	ManagerID *uuid.UUID `json:"managerId" gorm:"type:uuid"`
	Role      string     `json:"role" gorm:"not null;default:salesperson"`
	Name      string     `json:"name"`
	Email     string     `json:"email" gorm:"uniqueIndex;not null"`
	Active    bool       `json:"active" gorm:"default:true"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// IsStoreScoped reports whether the user's notification visibility is limited
// to their own store. Business admins see across the whole tenant instead.
func (u *User) IsStoreScoped() bool {
	switch u.Role {
	case RoleStoreManager, RoleSalesperson, RoleTeleCaller, RoleSupport:
		return true
	}
	return false
}
