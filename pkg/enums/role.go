package enums

// UserRole is a role string carried on users and access tokens.
type UserRole string

const (
	RoleCustomer UserRole = "customer"
	RoleChef     UserRole = "chef"
	RoleAdmin    UserRole = "admin"
	RoleStaff    UserRole = "staff"
)

var validUserRoles = []UserRole{RoleCustomer, RoleChef, RoleAdmin, RoleStaff}

func (r UserRole) String() string {
	return string(r)
}

func (r UserRole) IsValid() bool {
	return contains(validUserRoles, r)
}

// IsOperator reports whether the role belongs to the internal admin/staff team.
func (r UserRole) IsOperator() bool {
	return r == RoleAdmin || r == RoleStaff
}

func ParseUserRole(value string) (UserRole, error) {
	return parse(validUserRoles, value, "user role")
}

// UserStatus is the soft lifecycle of an account; users are never hard-deleted.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusDeleted   UserStatus = "deleted"
)

var validUserStatuses = []UserStatus{UserStatusActive, UserStatusSuspended, UserStatusDeleted}

func (s UserStatus) IsValid() bool {
	return contains(validUserStatuses, s)
}

func ParseUserStatus(value string) (UserStatus, error) {
	return parse(validUserStatuses, value, "user status")
}

// RoleSystem marks history rows written by scheduled jobs. It is never carried on tokens.
const RoleSystem UserRole = "system"
