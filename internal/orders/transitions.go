package orders

import (
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
)

// Rule describes who may move an order between two statuses and how the move is recorded.
type Rule struct {
	Roles  []enums.UserRole
	Action enums.OrderHistoryAction
}

func (r Rule) allows(role enums.UserRole) bool {
	for _, candidate := range r.Roles {
		if candidate == role {
			return true
		}
	}
	return false
}

// TransitionTable maps from-status to to-status to the governing rule.
// A missing entry means the move is illegal.
type TransitionTable map[enums.OrderStatus]map[enums.OrderStatus]Rule

var (
	kitchenRoles   = []enums.UserRole{enums.RoleChef, enums.RoleAdmin, enums.RoleStaff}
	cancelAnyRoles = []enums.UserRole{enums.RoleCustomer, enums.RoleChef, enums.RoleAdmin, enums.RoleStaff}
	completeRoles  = []enums.UserRole{enums.RoleCustomer, enums.RoleAdmin, enums.RoleStaff}
)

// DefaultTransitions is the marketplace order lifecycle.
func DefaultTransitions() TransitionTable {
	return TransitionTable{
		enums.OrderStatusPending: {
			enums.OrderStatusConfirmed: {Roles: kitchenRoles, Action: enums.OrderActionConfirmed},
			enums.OrderStatusCancelled: {Roles: cancelAnyRoles, Action: enums.OrderActionCancelled},
		},
		enums.OrderStatusConfirmed: {
			enums.OrderStatusPreparing: {Roles: kitchenRoles, Action: enums.OrderActionPreparing},
			enums.OrderStatusCancelled: {Roles: cancelAnyRoles, Action: enums.OrderActionCancelled},
		},
		enums.OrderStatusPreparing: {
			enums.OrderStatusReady:     {Roles: kitchenRoles, Action: enums.OrderActionReady},
			enums.OrderStatusCancelled: {Roles: kitchenRoles, Action: enums.OrderActionCancelled},
		},
		enums.OrderStatusReady: {
			enums.OrderStatusDelivered: {Roles: kitchenRoles, Action: enums.OrderActionDelivered},
			enums.OrderStatusCancelled: {Roles: kitchenRoles, Action: enums.OrderActionCancelled},
		},
		enums.OrderStatusDelivered: {
			enums.OrderStatusCompleted: {Roles: completeRoles, Action: enums.OrderActionCompleted},
		},
	}
}

// Predecessors lists every status that may move to `to`.
func (t TransitionTable) Predecessors(to enums.OrderStatus) []enums.OrderStatus {
	out := []enums.OrderStatus{}
	for _, from := range enums.OrderStatuses() {
		if _, ok := t[from][to]; ok {
			out = append(out, from)
		}
	}
	return out
}

// RolesFor is the union of roles allowed to move any order into `to`.
func (t TransitionTable) RolesFor(to enums.OrderStatus) []enums.UserRole {
	seen := map[enums.UserRole]bool{}
	out := []enums.UserRole{}
	for _, from := range enums.OrderStatuses() {
		rule, ok := t[from][to]
		if !ok {
			continue
		}
		for _, role := range rule.Roles {
			if !seen[role] {
				seen[role] = true
				out = append(out, role)
			}
		}
	}
	return out
}

// Check authorizes a move from `from` to `to` for a caller holding roles.
// Roles are checked before predecessors: a caller who can never reach `to` gets
// FORBIDDEN regardless of the current status. It returns the rule and the role
// the move is attributed to.
func (t TransitionTable) Check(from, to enums.OrderStatus, roles []enums.UserRole) (Rule, enums.UserRole, error) {
	if !hasAny(t.RolesFor(to), roles) {
		return Rule{}, "", pkgerrors.Newf(pkgerrors.CodeForbidden, "role cannot move orders to %s", to)
	}
	if from == to {
		return Rule{}, "", stateConflict(from, to, "order is already "+string(to))
	}
	rule, ok := t[from][to]
	if !ok {
		return Rule{}, "", stateConflict(from, to, "cannot move order from "+string(from)+" to "+string(to)).
			WithDetails(map[string]any{"from": from, "to": to, "allowed_from": t.Predecessors(to)})
	}
	for _, role := range roles {
		if rule.allows(role) {
			return rule, role, nil
		}
	}
	return Rule{}, "", pkgerrors.Newf(pkgerrors.CodeForbidden, "role cannot move %s orders to %s", from, to)
}

func stateConflict(from, to enums.OrderStatus, msg string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, msg).
		WithDetails(map[string]any{"from": from, "to": to})
}

func hasAny(allowed, roles []enums.UserRole) bool {
	for _, role := range roles {
		for _, candidate := range allowed {
			if candidate == role {
				return true
			}
		}
	}
	return false
}
