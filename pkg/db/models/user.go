package models

import (
	"time"

	dbtypes "github.com/cribnosh/cribnosh-backend/pkg/db/types"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/google/uuid"
)

// User is the marketplace identity. Accounts are soft-deleted through Status.
type User struct {
	ID        uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email     string              `gorm:"type:text;not null;uniqueIndex"`
	Phone     *string             `gorm:"column:phone"`
	FirstName string              `gorm:"column:first_name;not null"`
	LastName  string              `gorm:"column:last_name;not null"`
	Roles     dbtypes.StringArray `gorm:"type:text[];column:roles;not null;default:'{customer}'"`
	Status    enums.UserStatus    `gorm:"column:status;type:text;not null;default:'active'"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// HasRole reports whether the user currently holds role.
func (u User) HasRole(role enums.UserRole) bool {
	return u.Roles.Contains(string(role))
}

// IsActive reports whether the account may act.
func (u User) IsActive() bool {
	return u.Status == enums.UserStatusActive
}

// DisplayName joins first and last names.
func (u User) DisplayName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
