package models

import (
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/cribnosh/cribnosh-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is a customer's order from a single chef.
type Order struct {
	ID                  uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber         string                    `gorm:"column:order_number;type:text;not null;uniqueIndex"`
	CustomerID          uuid.UUID                 `gorm:"column:customer_id;type:uuid;not null"`
	ChefID              uuid.UUID                 `gorm:"column:chef_id;type:uuid;not null"`
	ChatID              *uuid.UUID                `gorm:"column:chat_id;type:uuid"`
	Items               types.OrderItems          `gorm:"column:order_items;type:jsonb;serializer:json;not null"`
	TotalAmount         decimal.Decimal           `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Currency            string                    `gorm:"column:currency;type:text;not null;default:'GBP'"`
	Status              enums.OrderStatus         `gorm:"column:order_status;type:text;not null;default:'pending'"`
	PaymentStatus       enums.PaymentStatus       `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	DeliveryAddress     *types.DeliveryAddress    `gorm:"column:delivery_address;type:jsonb;serializer:json"`
	SpecialInstructions *string                   `gorm:"column:special_instructions"`
	DeliveryTime        *time.Time                `gorm:"column:delivery_time"`
	EstimatedPrepTime   *int                      `gorm:"column:estimated_prep_time_minutes"`
	ChefNotes           *string                   `gorm:"column:chef_notes"`
	Metadata            types.JSONMap             `gorm:"column:metadata;type:jsonb;serializer:json;not null"`
	ConfirmedAt         *time.Time                `gorm:"column:confirmed_at"`
	PreparingAt         *time.Time                `gorm:"column:preparing_at"`
	ReadyAt             *time.Time                `gorm:"column:ready_at"`
	DeliveredAt         *time.Time                `gorm:"column:delivered_at"`
	CompletedAt         *time.Time                `gorm:"column:completed_at"`
	ReviewedAt          *time.Time                `gorm:"column:reviewed_at"`
	ReviewRating        *int                      `gorm:"column:review_rating"`
	ReviewNotes         *string                   `gorm:"column:review_notes"`
	CancelledAt         *time.Time                `gorm:"column:cancelled_at"`
	CancelledBy         *uuid.UUID                `gorm:"column:cancelled_by;type:uuid"`
	CancellationReason  *enums.CancellationReason `gorm:"column:cancellation_reason;type:text"`
	CancellationDetail  *string                   `gorm:"column:cancellation_description"`
	RefundEligibleUntil *time.Time                `gorm:"column:refund_eligible_until"`
	IsRefundable        bool                      `gorm:"column:is_refundable;not null;default:true"`
	CreatedAt           time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderHistory is one append-only row in an order's audit trail.
type OrderHistory struct {
	ID              uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID                `gorm:"column:order_id;type:uuid;not null;index"`
	Action          enums.OrderHistoryAction `gorm:"column:action;type:text;not null"`
	FromStatus      *enums.OrderStatus       `gorm:"column:from_status;type:text"`
	ToStatus        *enums.OrderStatus       `gorm:"column:to_status;type:text"`
	Reason          *string                  `gorm:"column:reason"`
	PerformedBy     uuid.UUID                `gorm:"column:performed_by;type:uuid;not null"`
	PerformedByRole enums.UserRole           `gorm:"column:performed_by_role;type:text;not null"`
	Description     string                   `gorm:"column:description;not null"`
	Metadata        types.JSONMap            `gorm:"column:metadata;type:jsonb;serializer:json"`
	PerformedAt     time.Time                `gorm:"column:performed_at;not null"`
}

func (OrderHistory) TableName() string { return "order_history" }

// OrderNote is a free-text note attached to an order.
type OrderNote struct {
	ID       uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID  uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	NoteType enums.OrderNoteType `gorm:"column:note_type;type:text;not null"`
	Note     string              `gorm:"column:note;not null"`
	AddedBy  uuid.UUID           `gorm:"column:added_by;type:uuid;not null"`
	Metadata types.JSONMap       `gorm:"column:metadata;type:jsonb;serializer:json"`
	AddedAt  time.Time           `gorm:"column:added_at;not null"`
}

// OrderNotification records an explicit notification sent about an order.
type OrderNotification struct {
	ID       uuid.UUID                     `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID  uuid.UUID                     `gorm:"column:order_id;type:uuid;not null;index"`
	Type     enums.OrderNotificationType   `gorm:"column:notification_type;type:text;not null"`
	Message  string                        `gorm:"column:message;not null"`
	Priority enums.NotificationPriority    `gorm:"column:priority;type:text;not null"`
	Channels []enums.NotificationChannel   `gorm:"column:channels;type:jsonb;serializer:json;not null"`
	SentBy   uuid.UUID                     `gorm:"column:sent_by;type:uuid;not null"`
	Metadata types.JSONMap                 `gorm:"column:metadata;type:jsonb;serializer:json"`
	Status   enums.OrderNotificationStatus `gorm:"column:status;type:text;not null;default:'sent'"`
	SentAt   time.Time                     `gorm:"column:sent_at;not null"`
}
