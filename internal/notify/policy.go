package notify

import "github.com/rgacutan/bizcrm-api/internal/models"

// Notification types the pipeline can dispatch. The set is closed: adding a
// type means adding a row to the policy table below, not a new code path.
const (
	TypeCustomerCreated  = "customer_created"
	TypeCustomerAssigned = "customer_assigned"
	TypeSaleClosed       = "sale_closed"
	TypeTicketOpened     = "ticket_opened"
	TypeTicketAssigned   = "ticket_assigned"
	TypeTicketEscalated  = "ticket_escalated"
	TypePaymentOverdue   = "payment_overdue"
)

// RecipientPolicy says who gets told about a business event. Flags are
// evaluated in a fixed order: creator, creator's manager, assignee,
// assignee's manager, tenant business admins, store managers, store staff.
type RecipientPolicy struct {
	Creator         bool
	CreatorManager  bool
	Assignee        bool
	AssigneeManager bool
	BusinessAdmins  bool
	StoreManagers   bool
	StoreStaffRoles []string // admit store staff holding any of these roles
}

type typePolicy struct {
	Policy   RecipientPolicy
	Priority string
}

var policies = map[string]typePolicy{
	TypeCustomerCreated: {
		Policy:   RecipientPolicy{Creator: true, CreatorManager: true, BusinessAdmins: true},
		Priority: models.PriorityMedium,
	},
	TypeCustomerAssigned: {
		Policy:   RecipientPolicy{Assignee: true, AssigneeManager: true},
		Priority: models.PriorityMedium,
	},
	TypeSaleClosed: {
		Policy:   RecipientPolicy{Creator: true, CreatorManager: true, BusinessAdmins: true, StoreManagers: true},
		Priority: models.PriorityHigh,
	},
	TypeTicketOpened: {
		Policy:   RecipientPolicy{StoreManagers: true, StoreStaffRoles: []string{models.RoleSupport}},
		Priority: models.PriorityMedium,
	},
	TypeTicketAssigned: {
		Policy:   RecipientPolicy{Assignee: true},
		Priority: models.PriorityHigh,
	},
	TypeTicketEscalated: {
		Policy:   RecipientPolicy{Assignee: true, AssigneeManager: true, BusinessAdmins: true, StoreManagers: true},
		Priority: models.PriorityUrgent,
	},
	TypePaymentOverdue: {
		Policy:   RecipientPolicy{BusinessAdmins: true, StoreManagers: true},
		Priority: models.PriorityHigh,
	},
}

// PolicyFor returns the recipient policy and default priority for a
// notification type. ok is false for unknown types.
func PolicyFor(notifType string) (RecipientPolicy, string, bool) {
	tp, ok := policies[notifType]
	return tp.Policy, tp.Priority, ok
}
