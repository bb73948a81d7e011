package orders

import (
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/auth"
	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/cribnosh/cribnosh-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateInput carries a customer's new order.
type CreateInput struct {
	Actor               auth.Actor
	ChefID              uuid.UUID
	Items               types.OrderItems
	DeliveryAddress     *types.DeliveryAddress
	SpecialInstructions *string
	DeliveryTime        *time.Time
	Currency            string
	Metadata            map[string]any
}

// ListInput filters an order listing for the caller.
type ListInput struct {
	Actor  auth.Actor
	Status *enums.OrderStatus
	Limit  int
	Cursor string
}

// ConfirmInput accepts a pending order.
type ConfirmInput struct {
	Actor             auth.Actor
	OrderID           uuid.UUID
	EstimatedPrepTime *int
	ChefNotes         *string
}

// PrepareInput starts cooking a confirmed order.
type PrepareInput struct {
	Actor           auth.Actor
	OrderID         uuid.UUID
	PrepNotes       *string
	UpdatedPrepTime *int
}

// StepInput is the shared shape of ready, deliver and complete.
type StepInput struct {
	Actor   auth.Actor
	OrderID uuid.UUID
	Notes   *string
}

// ReviewInput marks a delivered order as reviewed.
type ReviewInput struct {
	Actor       auth.Actor
	OrderID     uuid.UUID
	Rating      *int
	ReviewNotes *string
}

// CancelInput cancels an order with a categorized reason.
type CancelInput struct {
	Actor       auth.Actor
	OrderID     uuid.UUID
	Reason      enums.CancellationReason
	Description *string
}

// UpdateInput edits mutable order fields. Nil fields are left untouched.
type UpdateInput struct {
	Actor               auth.Actor
	OrderID             uuid.UUID
	DeliveryAddress     *types.DeliveryAddress
	SpecialInstructions *string
	DeliveryTime        *time.Time
	EstimatedPrepTime   *int
	ChefNotes           *string
}

// NoteInput attaches a note to an order.
type NoteInput struct {
	Actor    auth.Actor
	OrderID  uuid.UUID
	NoteType enums.OrderNoteType
	Note     string
}

// RefundWindowInput overrides the refund window of a delivered order.
type RefundWindowInput struct {
	Actor   auth.Actor
	OrderID uuid.UUID
	Hours   int
	Reason  string
}

// OrderDTO is the API shape of an order.
type OrderDTO struct {
	ID                  uuid.UUID                 `json:"id"`
	OrderNumber         string                    `json:"order_number"`
	CustomerID          uuid.UUID                 `json:"customer_id"`
	ChefID              uuid.UUID                 `json:"chef_id"`
	ChatID              *uuid.UUID                `json:"chat_id,omitempty"`
	Items               types.OrderItems          `json:"order_items"`
	TotalAmount         decimal.Decimal           `json:"total_amount"`
	Currency            string                    `json:"currency"`
	Status              enums.OrderStatus         `json:"order_status"`
	PaymentStatus       enums.PaymentStatus       `json:"payment_status"`
	DeliveryAddress     *types.DeliveryAddress    `json:"delivery_address,omitempty"`
	SpecialInstructions *string                   `json:"special_instructions,omitempty"`
	DeliveryTime        *time.Time                `json:"delivery_time,omitempty"`
	EstimatedPrepTime   *int                      `json:"estimated_prep_time,omitempty"`
	ChefNotes           *string                   `json:"chef_notes,omitempty"`
	Metadata            types.JSONMap             `json:"metadata"`
	ConfirmedAt         *time.Time                `json:"confirmed_at,omitempty"`
	PreparingAt         *time.Time                `json:"preparing_at,omitempty"`
	ReadyAt             *time.Time                `json:"ready_at,omitempty"`
	DeliveredAt         *time.Time                `json:"delivered_at,omitempty"`
	CompletedAt         *time.Time                `json:"completed_at,omitempty"`
	ReviewedAt          *time.Time                `json:"reviewed_at,omitempty"`
	ReviewRating        *int                      `json:"review_rating,omitempty"`
	ReviewNotes         *string                   `json:"review_notes,omitempty"`
	CancelledAt         *time.Time                `json:"cancelled_at,omitempty"`
	CancelledBy         *uuid.UUID                `json:"cancelled_by,omitempty"`
	CancellationReason  *enums.CancellationReason `json:"cancellation_reason,omitempty"`
	CancellationDetail  *string                   `json:"cancellation_description,omitempty"`
	RefundEligibleUntil *time.Time                `json:"refund_eligible_until,omitempty"`
	IsRefundable        bool                      `json:"is_refundable"`
	CreatedAt           time.Time                 `json:"created_at"`
	UpdatedAt           time.Time                 `json:"updated_at"`
}

func toOrderDTO(o *models.Order) *OrderDTO {
	if o == nil {
		return nil
	}
	return &OrderDTO{
		ID:                  o.ID,
		OrderNumber:         o.OrderNumber,
		CustomerID:          o.CustomerID,
		ChefID:              o.ChefID,
		ChatID:              o.ChatID,
		Items:               o.Items,
		TotalAmount:         o.TotalAmount,
		Currency:            o.Currency,
		Status:              o.Status,
		PaymentStatus:       o.PaymentStatus,
		DeliveryAddress:     o.DeliveryAddress,
		SpecialInstructions: o.SpecialInstructions,
		DeliveryTime:        o.DeliveryTime,
		EstimatedPrepTime:   o.EstimatedPrepTime,
		ChefNotes:           o.ChefNotes,
		Metadata:            o.Metadata,
		ConfirmedAt:         o.ConfirmedAt,
		PreparingAt:         o.PreparingAt,
		ReadyAt:             o.ReadyAt,
		DeliveredAt:         o.DeliveredAt,
		CompletedAt:         o.CompletedAt,
		ReviewedAt:          o.ReviewedAt,
		ReviewRating:        o.ReviewRating,
		ReviewNotes:         o.ReviewNotes,
		CancelledAt:         o.CancelledAt,
		CancelledBy:         o.CancelledBy,
		CancellationReason:  o.CancellationReason,
		CancellationDetail:  o.CancellationDetail,
		RefundEligibleUntil: o.RefundEligibleUntil,
		IsRefundable:        o.IsRefundable,
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
	}
}

// OrderList is one cursor page of orders.
type OrderList struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// HistoryDTO is one entry of the order audit trail.
type HistoryDTO struct {
	ID              uuid.UUID                `json:"id"`
	Action          enums.OrderHistoryAction `json:"action"`
	FromStatus      *enums.OrderStatus       `json:"from_status,omitempty"`
	ToStatus        *enums.OrderStatus       `json:"to_status,omitempty"`
	Reason          *string                  `json:"reason,omitempty"`
	PerformedBy     uuid.UUID                `json:"performed_by"`
	PerformedByRole enums.UserRole           `json:"performed_by_role"`
	Description     string                   `json:"description"`
	Metadata        types.JSONMap            `json:"metadata,omitempty"`
	PerformedAt     time.Time                `json:"performed_at"`
}

func toHistoryDTO(h models.OrderHistory) HistoryDTO {
	return HistoryDTO{
		ID:              h.ID,
		Action:          h.Action,
		FromStatus:      h.FromStatus,
		ToStatus:        h.ToStatus,
		Reason:          h.Reason,
		PerformedBy:     h.PerformedBy,
		PerformedByRole: h.PerformedByRole,
		Description:     h.Description,
		Metadata:        h.Metadata,
		PerformedAt:     h.PerformedAt,
	}
}

// NoteDTO is the API shape of an order note.
type NoteDTO struct {
	ID       uuid.UUID           `json:"id"`
	OrderID  uuid.UUID           `json:"order_id"`
	NoteType enums.OrderNoteType `json:"note_type"`
	Note     string              `json:"note"`
	AddedBy  uuid.UUID           `json:"added_by"`
	AddedAt  time.Time           `json:"added_at"`
}

func toNoteDTO(n models.OrderNote) NoteDTO {
	return NoteDTO{ID: n.ID, OrderID: n.OrderID, NoteType: n.NoteType, Note: n.Note, AddedBy: n.AddedBy, AddedAt: n.AddedAt}
}

// RefundEligibility reports whether an order can still be refunded and why.
type RefundEligibility struct {
	OrderID             uuid.UUID         `json:"order_id"`
	Status              enums.OrderStatus `json:"order_status"`
	IsRefundable        bool              `json:"is_refundable"`
	Reason              string            `json:"reason"`
	RefundEligibleUntil *time.Time        `json:"refund_eligible_until,omitempty"`
	RemainingSeconds    int64             `json:"remaining_seconds"`
}
