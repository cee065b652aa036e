package auth

import (
	"medidesk.org/internal/clinic"
)

// Action names one class of guarded operation. Handlers pick the action, the
// policy decides; no handler hand-rolls its own role checks.
type Action string

const (
	ActionProfileRead      Action = "profile.read"
	ActionProfileUpdate    Action = "profile.update"
	ActionEmailChange      Action = "profile.email.change"
	ActionMedicalRead      Action = "medical.read"
	ActionMedicalWrite     Action = "medical.write"
	ActionRolePromote      Action = "role.promote"
	ActionUserDelete       Action = "user.delete"
	ActionUserList         Action = "user.list"
	ActionStaffView        Action = "staff.view"
	ActionCatalogManage    Action = "catalog.manage"
	ActionAppointmentRead  Action = "appointment.read"
	ActionAppointmentWrite Action = "appointment.write"
	ActionNotificationRead Action = "notification.read"
	ActionAuditRead        Action = "audit.read"
)

// Principal is the authenticated caller as seen by the policy.
type Principal struct {
	ID   string
	Role clinic.Role
}

// Decision is the policy verdict. Reason carries a stable code for logs and
// audit entries, never free text.
type Decision struct {
	Allowed bool
	Reason  string
}

const (
	ReasonSelf       = "self"
	ReasonRole       = "role"
	ReasonNotSelf    = "not_self"
	ReasonRoleDenied = "role_denied"
	ReasonUnknown    = "unknown_action"
)

func allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }
func deny(reason string) Decision  { return Decision{Allowed: false, Reason: reason} }

// Decide is a pure function from (action, actor, target) to a verdict. Target
// is the subject id the action touches, empty for collection-level actions.
func Decide(action Action, actor Principal, targetID string) Decision {
	if actor.Role == clinic.RoleAdmin {
		return allow(ReasonRole)
	}
	switch action {
	case ActionProfileRead:
		return selfOr(actor, targetID, clinic.RoleDoctor)
	case ActionProfileUpdate:
		return selfOr(actor, targetID)
	case ActionEmailChange:
		// Email is the login key; only admins rewire it.
		return deny(ReasonRoleDenied)
	case ActionMedicalRead, ActionMedicalWrite:
		return selfOr(actor, targetID, clinic.RoleDoctor)
	case ActionRolePromote:
		return anyRole(actor, clinic.RoleOperator, clinic.RoleDoctor)
	case ActionUserDelete, ActionUserList:
		return deny(ReasonRoleDenied)
	case ActionAuditRead:
		// The access report covers the subject's own data.
		return selfOr(actor, targetID)
	case ActionCatalogManage:
		return anyRole(actor, clinic.RoleDoctor)
	case ActionStaffView:
		// Any authenticated user may browse the doctor directory.
		return allow(ReasonRole)
	case ActionAppointmentRead, ActionAppointmentWrite:
		return selfOr(actor, targetID, clinic.RoleDoctor, clinic.RoleOperator)
	case ActionNotificationRead:
		return selfOr(actor, targetID)
	}
	return deny(ReasonUnknown)
}

func selfOr(actor Principal, targetID string, roles ...clinic.Role) Decision {
	if targetID != "" && actor.ID == targetID {
		return allow(ReasonSelf)
	}
	for _, r := range roles {
		if actor.Role == r {
			return allow(ReasonRole)
		}
	}
	if targetID != "" && actor.ID != targetID {
		return deny(ReasonNotSelf)
	}
	return deny(ReasonRoleDenied)
}

func anyRole(actor Principal, roles ...clinic.Role) Decision {
	for _, r := range roles {
		if actor.Role == r {
			return allow(ReasonRole)
		}
	}
	return deny(ReasonRoleDenied)
}
