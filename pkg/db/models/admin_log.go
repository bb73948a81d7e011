package models

import (
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/types"
	"github.com/google/uuid"
)

// AdminLog is an append-only record of an operator action.
type AdminLog struct {
	ID        uuid.UUID     `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Action    string        `gorm:"column:action;type:text;not null"`
	Details   types.JSONMap `gorm:"column:details;type:jsonb;serializer:json"`
	UserID    uuid.UUID     `gorm:"column:user_id;type:uuid;not null"`
	AdminID   *uuid.UUID    `gorm:"column:admin_id;type:uuid"`
	CreatedAt time.Time     `gorm:"column:created_at;not null"`
}
