package models

import (
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/google/uuid"
)

// SupportCase links a customer to a support chat.
type SupportCase struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	Subject          string                `gorm:"column:subject;not null"`
	Message          string                `gorm:"column:message;not null"`
	Category         enums.SupportCategory `gorm:"column:category;type:text;not null"`
	Priority         enums.SupportPriority `gorm:"column:priority;type:text;not null;default:'medium'"`
	Status           enums.SupportStatus   `gorm:"column:status;type:text;not null;default:'open'"`
	OrderID          *uuid.UUID            `gorm:"column:order_id;type:uuid"`
	Attachments      []string              `gorm:"column:attachments;type:jsonb;serializer:json;not null"`
	SupportReference string                `gorm:"column:support_reference;type:text;not null;uniqueIndex"`
	LastMessage      *string               `gorm:"column:last_message"`
	ChatID           *uuid.UUID            `gorm:"column:chat_id;type:uuid"`
	AssignedAgentID  *uuid.UUID            `gorm:"column:assigned_agent_id;type:uuid"`
	ResolvedAt       *time.Time            `gorm:"column:resolved_at"`
	ClosedAt         *time.Time            `gorm:"column:closed_at"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
