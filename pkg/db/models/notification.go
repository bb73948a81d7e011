package models

import (
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/cribnosh/cribnosh-backend/pkg/types"
	"github.com/google/uuid"
)

// Notification stores an in-app notification for one user.
type Notification struct {
	ID        uuid.UUID                  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID                  `gorm:"type:uuid;not null;index"`
	Type      enums.NotificationType     `gorm:"type:text;not null"`
	Title     string                     `gorm:"type:text;not null"`
	Message   string                     `gorm:"type:text;not null"`
	Priority  enums.NotificationPriority `gorm:"type:text;not null;default:'medium'"`
	ActionURL *string                    `gorm:"column:action_url;type:text"`
	Metadata  types.JSONMap              `gorm:"type:jsonb;serializer:json"`
	ReadAt    *time.Time                 `gorm:"type:timestamptz"`
	CreatedAt time.Time                  `gorm:"type:timestamptz;not null"`
}
