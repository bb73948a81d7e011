package auth

import (
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/google/uuid"
)

// rolePrecedence orders roles from most to least privileged.
var rolePrecedence = []enums.UserRole{enums.RoleAdmin, enums.RoleStaff, enums.RoleChef, enums.RoleCustomer}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID uuid.UUID
	Roles  []enums.UserRole
}

func (a Actor) Has(role enums.UserRole) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (a Actor) HasAny(roles ...enums.UserRole) bool {
	for _, r := range roles {
		if a.Has(r) {
			return true
		}
	}
	return false
}

// IsOperator reports whether the actor is admin or staff.
func (a Actor) IsOperator() bool {
	return a.HasAny(enums.RoleAdmin, enums.RoleStaff)
}

// PrimaryRole is the actor's most privileged role, used when a single role is recorded.
func (a Actor) PrimaryRole() enums.UserRole {
	for _, r := range rolePrecedence {
		if a.Has(r) {
			return r
		}
	}
	return enums.RoleCustomer
}

// RoleAmong returns the most privileged of the actor's roles that appears in allowed.
func (a Actor) RoleAmong(allowed []enums.UserRole) (enums.UserRole, bool) {
	for _, r := range rolePrecedence {
		if !a.Has(r) {
			continue
		}
		for _, candidate := range allowed {
			if candidate == r {
				return r, true
			}
		}
	}
	return "", false
}
