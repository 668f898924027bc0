package notify

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rgacutan/bizcrm-api/internal/apperr"
	"github.com/rgacutan/bizcrm-api/internal/models"
)

// gormDirectory backs the resolver with the users table.
type gormDirectory struct {
	db *gorm.DB
}

func (d gormDirectory) UserByID(id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := d.db.First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (d gormDirectory) ActiveUsersByRole(tenantID uuid.UUID, roles []string, storeID *uuid.UUID) ([]models.User, error) {
	q := d.db.Where("tenant_id = ? AND active = ? AND role IN ?", tenantID, true, roles)
	if storeID != nil {
		q = q.Where("store_id = ?", *storeID)
	}
	var users []models.User
	if err := q.Order("created_at ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
