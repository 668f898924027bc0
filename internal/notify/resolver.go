package notify

import (
	"errors"

	"github.com/google/uuid"

	"github.com/rgacutan/bizcrm-api/internal/apperr"
	"github.com/rgacutan/bizcrm-api/internal/models"
)

// Directory supplies the user lookups the resolver needs. The GORM-backed
// implementation lives in directory.go; tests substitute their own.
type Directory interface {
	// UserByID returns the user or apperr.ErrNotFound.
	UserByID(id uuid.UUID) (*models.User, error)
	// ActiveUsersByRole returns active users of the tenant holding any of
	// the given roles, limited to a store when storeID is set.
	ActiveUsersByRole(tenantID uuid.UUID, roles []string, storeID *uuid.UUID) ([]models.User, error)
}

// ResolveInput carries the event context the policy flags refer to.
type ResolveInput struct {
	TenantID   uuid.UUID
	CreatorID  *uuid.UUID
	AssigneeID *uuid.UUID
	StoreID    *uuid.UUID
}

// Resolve evaluates a recipient policy into an ordered, deduplicated user
// list. Every returned user belongs to in.TenantID; without a tenant the
// result is empty. Dangling creator/assignee/manager references are skipped
// silently, directory failures are returned.
func Resolve(dir Directory, policy RecipientPolicy, in ResolveInput) ([]models.User, error) {
	if in.TenantID == uuid.Nil {
		return nil, nil
	}

	r := resolution{tenantID: in.TenantID, seen: make(map[uuid.UUID]bool)}

	if policy.Creator || policy.CreatorManager {
		creator, err := lookup(dir, in.CreatorID)
		if err != nil {
			return nil, err
		}
		if creator != nil {
			if policy.Creator {
				r.admit(*creator)
			}
			if policy.CreatorManager {
				if err := r.admitManager(dir, creator); err != nil {
					return nil, err
				}
			}
		}
	}

	if policy.Assignee || policy.AssigneeManager {
		assignee, err := lookup(dir, in.AssigneeID)
		if err != nil {
			return nil, err
		}
		if assignee != nil {
			if policy.Assignee {
				r.admit(*assignee)
			}
			if policy.AssigneeManager {
				if err := r.admitManager(dir, assignee); err != nil {
					return nil, err
				}
			}
		}
	}

	if policy.BusinessAdmins {
		admins, err := dir.ActiveUsersByRole(in.TenantID, []string{models.RoleBusinessAdmin}, nil)
		if err != nil {
			return nil, err
		}
		r.admitAll(admins)
	}

	if in.StoreID != nil {
		if policy.StoreManagers {
			managers, err := dir.ActiveUsersByRole(in.TenantID, []string{models.RoleStoreManager}, in.StoreID)
			if err != nil {
				return nil, err
			}
			r.admitAll(managers)
		}
		if len(policy.StoreStaffRoles) > 0 {
			staff, err := dir.ActiveUsersByRole(in.TenantID, policy.StoreStaffRoles, in.StoreID)
			if err != nil {
				return nil, err
			}
			r.admitAll(staff)
		}
	}

	return r.users, nil
}

type resolution struct {
	tenantID uuid.UUID
	seen     map[uuid.UUID]bool
	users    []models.User
}

// admit appends the user unless already seen or outside the tenant.
func (r *resolution) admit(u models.User) {
	if r.seen[u.ID] || u.TenantID != r.tenantID {
		return
	}
	r.seen[u.ID] = true
	r.users = append(r.users, u)
}

func (r *resolution) admitAll(users []models.User) {
	for _, u := range users {
		r.admit(u)
	}
}

func (r *resolution) admitManager(dir Directory, u *models.User) error {
	manager, err := lookup(dir, u.ManagerID)
	if err != nil {
		return err
	}
	if manager != nil {
		r.admit(*manager)
	}
	return nil
}

// lookup fetches an optional user reference; a nil ID or a dangling row both
// resolve to nil without error.
func lookup(dir Directory, id *uuid.UUID) (*models.User, error) {
	if id == nil || *id == uuid.Nil {
		return nil, nil
	}
	u, err := dir.UserByID(*id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}
