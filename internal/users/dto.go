package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	dbtypes "github.com/cribnosh/cribnosh-backend/pkg/db/types"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
)

// UserDTO is the public shape of a marketplace user.
type UserDTO struct {
	ID        uuid.UUID        `json:"id"`
	Email     string           `json:"email"`
	FirstName string           `json:"first_name"`
	LastName  string           `json:"last_name"`
	Phone     *string          `json:"phone,omitempty"`
	Roles     []string         `json:"roles"`
	Status    enums.UserStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	ID        uuid.UUID
	Email     string
	FirstName string
	LastName  string
	Phone     *string
	Roles     []enums.UserRole
	Status    enums.UserStatus
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	roles := make([]string, len(u.Roles))
	copy(roles, u.Roles)
	return &UserDTO{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.Phone,
		Roles:     roles,
		Status:    u.Status,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (dto CreateUserDTO) ToModel() *models.User {
	roles := dbtypes.StringArray{}
	for _, r := range dto.Roles {
		roles = append(roles, string(r))
	}
	if len(roles) == 0 {
		roles = append(roles, string(enums.RoleCustomer))
	}
	status := dto.Status
	if status == "" {
		status = enums.UserStatusActive
	}
	return &models.User{
		ID:        dto.ID,
		Email:     dto.Email,
		FirstName: dto.FirstName,
		LastName:  dto.LastName,
		Phone:     dto.Phone,
		Roles:     roles,
		Status:    status,
	}
}
