package support

import (
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/auth"
	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/cribnosh/cribnosh-backend/pkg/types"
	"github.com/google/uuid"
)

type CreateCaseInput struct {
	Actor       auth.Actor
	Subject     string
	Message     string
	Category    enums.SupportCategory
	Priority    enums.SupportPriority
	OrderID     *uuid.UUID
	Attachments []string
}

type ListCasesInput struct {
	Actor  auth.Actor
	Status *enums.SupportStatus
	Page   int
	Limit  int
}

type AssignInput struct {
	Actor   auth.Actor
	CaseID  uuid.UUID
	AgentID uuid.UUID
}

type StatusInput struct {
	Actor  auth.Actor
	CaseID uuid.UUID
	Status enums.SupportStatus
}

type CaseDTO struct {
	ID               uuid.UUID             `json:"id"`
	UserID           uuid.UUID             `json:"user_id"`
	Subject          string                `json:"subject"`
	Message          string                `json:"message"`
	Category         enums.SupportCategory `json:"category"`
	Priority         enums.SupportPriority `json:"priority"`
	Status           enums.SupportStatus   `json:"status"`
	OrderID          *uuid.UUID            `json:"order_id,omitempty"`
	Attachments      []string              `json:"attachments"`
	SupportReference string                `json:"support_reference"`
	LastMessage      *string               `json:"last_message,omitempty"`
	ChatID           *uuid.UUID            `json:"chat_id,omitempty"`
	AssignedAgentID  *uuid.UUID            `json:"assigned_agent_id,omitempty"`
	ResolvedAt       *time.Time            `json:"resolved_at,omitempty"`
	ClosedAt         *time.Time            `json:"closed_at,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

type CaseList struct {
	Cases []CaseDTO      `json:"cases"`
	Meta  types.PageMeta `json:"meta"`
}

func toCaseDTO(c *models.SupportCase) CaseDTO {
	attachments := c.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	return CaseDTO{
		ID:               c.ID,
		UserID:           c.UserID,
		Subject:          c.Subject,
		Message:          c.Message,
		Category:         c.Category,
		Priority:         c.Priority,
		Status:           c.Status,
		OrderID:          c.OrderID,
		Attachments:      attachments,
		SupportReference: c.SupportReference,
		LastMessage:      c.LastMessage,
		ChatID:           c.ChatID,
		AssignedAgentID:  c.AssignedAgentID,
		ResolvedAt:       c.ResolvedAt,
		ClosedAt:         c.ClosedAt,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}
