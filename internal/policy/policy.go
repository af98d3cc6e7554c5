// Package policy holds every authorization rule of the service.
//
// Decide is pure: it reads only its arguments, so it can be evaluated for
// every role, action and ownership combination in tests.
package policy

import "github.com/ukydev/fleet-rental/internal/models"

// Kind names a protected resource type.
type Kind string

const (
	KindFleetVehicle Kind = "fleet_vehicle"
	KindConsignment  Kind = "consignment"
	KindUserAccount  Kind = "user_account"
)

// Action names an operation on a resource.
type Action string

const (
	ActionCreate         Action = "create"
	ActionUpdate         Action = "update"
	ActionDelete         Action = "delete"
	ActionReview         Action = "review"
	ActionApprove        Action = "approve"
	ActionReject         Action = "reject"
	ActionPromote        Action = "promote"
	ActionReadOwn        Action = "read_own"
	ActionBan            Action = "ban"
	ActionUnban          Action = "unban"
	ActionUpdateRole     Action = "update_role"
	ActionUpdateMetadata Action = "update_metadata"
)

// Reason explains a denial.
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonUnauthenticated      Reason = "unauthenticated"
	ReasonInsufficientRole     Reason = "insufficient_role"
	ReasonNotOwner             Reason = "not_owner"
	ReasonProtectedAdminTarget Reason = "protected_admin_target"
	ReasonCannotGrantAdmin     Reason = "cannot_grant_admin"
	ReasonActionNotRecognized  Reason = "action_not_recognized"
)

// Ownership carries the facts about the target resource a rule may need.
type Ownership struct {
	// EmailMatches is true when the principal's email equals the
	// consignment owner's email.
	EmailMatches bool
	// TargetIsAdmin is true when the target user account holds the admin role.
	TargetIsAdmin bool
	// RequestedRole is the new role of an update_role request.
	RequestedRole models.Role
}

// Decision is the outcome of a policy evaluation.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
}

// Allow is the decision granting access.
var Allow = Decision{Allowed: true}

func deny(reason Reason) Decision {
	return Decision{Reason: reason}
}

// Decide evaluates the rules in precedence order; the first match wins.
func Decide(p *models.Principal, kind Kind, action Action, own Ownership) Decision {
	if p == nil {
		return deny(ReasonUnauthenticated)
	}

	switch kind {
	case KindFleetVehicle:
		switch action {
		case ActionCreate, ActionUpdate, ActionDelete:
			return requireStaff(p)
		}
	case KindConsignment:
		switch action {
		case ActionReview, ActionApprove, ActionReject, ActionPromote:
			return requireStaff(p)
		case ActionReadOwn:
			if own.EmailMatches || p.Role.IsStaff() {
				return Allow
			}
			return deny(ReasonNotOwner)
		}
	case KindUserAccount:
		return decideUserAccount(p, action, own)
	}

	return deny(ReasonActionNotRecognized)
}

// decideUserAccount applies the administrator protection rules before the
// base role check, so no caller role can ban, delete or demote an admin.
// Only admins may hand out the admin role.
func decideUserAccount(p *models.Principal, action Action, own Ownership) Decision {
	switch action {
	case ActionBan, ActionDelete:
		if own.TargetIsAdmin {
			return deny(ReasonProtectedAdminTarget)
		}
		return requireStaff(p)
	case ActionUpdateRole:
		if own.TargetIsAdmin && own.RequestedRole != models.RoleAdmin {
			return deny(ReasonProtectedAdminTarget)
		}
		if d := requireStaff(p); !d.Allowed {
			return d
		}
		if own.RequestedRole == models.RoleAdmin && p.Role != models.RoleAdmin {
			return deny(ReasonCannotGrantAdmin)
		}
		return Allow
	case ActionUnban, ActionUpdateMetadata:
		return requireStaff(p)
	}
	return deny(ReasonActionNotRecognized)
}

func requireStaff(p *models.Principal) Decision {
	if p.Role.IsStaff() {
		return Allow
	}
	return deny(ReasonInsufficientRole)
}

// ParseUserAction converts a request value into a user administration action.
func ParseUserAction(raw string) (Action, bool) {
	switch a := Action(raw); a {
	case ActionBan, ActionUnban, ActionUpdateRole, ActionUpdateMetadata, ActionDelete:
		return a, true
	}
	return "", false
}
