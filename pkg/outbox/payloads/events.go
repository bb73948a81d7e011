package payloads

import (
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Audienced payloads name the users that should see the event in their change feed.
// An empty audience means everyone.
type Audienced interface {
	Audience() []uuid.UUID
}

// OrderCreatedEvent is emitted when a customer places an order.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID       `json:"orderId"`
	OrderNumber string          `json:"orderNumber"`
	CustomerID  uuid.UUID       `json:"customerId"`
	ChefID      uuid.UUID       `json:"chefId"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Currency    string          `json:"currency"`
}

func (e OrderCreatedEvent) Audience() []uuid.UUID { return []uuid.UUID{e.CustomerID, e.ChefID} }

// OrderStatusChangedEvent is emitted for every lifecycle transition.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID                `json:"orderId"`
	OrderNumber string                   `json:"orderNumber"`
	CustomerID  uuid.UUID                `json:"customerId"`
	ChefID      uuid.UUID                `json:"chefId"`
	FromStatus  enums.OrderStatus        `json:"fromStatus"`
	ToStatus    enums.OrderStatus        `json:"toStatus"`
	Action      enums.OrderHistoryAction `json:"action"`
	Reason      string                   `json:"reason,omitempty"`
	ChangedAt   time.Time                `json:"changedAt"`
}

func (e OrderStatusChangedEvent) Audience() []uuid.UUID { return []uuid.UUID{e.CustomerID, e.ChefID} }

// OrderReviewedEvent marks a delivered order as reviewed.
type OrderReviewedEvent struct {
	OrderID    uuid.UUID `json:"orderId"`
	CustomerID uuid.UUID `json:"customerId"`
	ChefID     uuid.UUID `json:"chefId"`
	Rating     *int      `json:"rating,omitempty"`
	Notes      string    `json:"notes,omitempty"`
}

func (e OrderReviewedEvent) Audience() []uuid.UUID { return []uuid.UUID{e.CustomerID, e.ChefID} }

// OrderUpdatedEvent lists the fields changed by an order edit.
type OrderUpdatedEvent struct {
	OrderID    uuid.UUID `json:"orderId"`
	CustomerID uuid.UUID `json:"customerId"`
	ChefID     uuid.UUID `json:"chefId"`
	Fields     []string  `json:"fields"`
}

func (e OrderUpdatedEvent) Audience() []uuid.UUID { return []uuid.UUID{e.CustomerID, e.ChefID} }

// OrderNoteAddedEvent is emitted when a note is attached to an order.
type OrderNoteAddedEvent struct {
	OrderID    uuid.UUID           `json:"orderId"`
	CustomerID uuid.UUID           `json:"customerId"`
	ChefID     uuid.UUID           `json:"chefId"`
	NoteID     uuid.UUID           `json:"noteId"`
	NoteType   enums.OrderNoteType `json:"noteType"`
}

func (e OrderNoteAddedEvent) Audience() []uuid.UUID {
	if e.NoteType == enums.OrderNoteInternal {
		return nil
	}
	return []uuid.UUID{e.CustomerID, e.ChefID}
}

// OrderRefundWindowClosedEvent is emitted when an order stops being refundable.
type OrderRefundWindowClosedEvent struct {
	OrderID    uuid.UUID `json:"orderId"`
	CustomerID uuid.UUID `json:"customerId"`
	ChefID     uuid.UUID `json:"chefId"`
	Reason     string    `json:"reason"`
	ClosedAt   time.Time `json:"closedAt"`
}

func (e OrderRefundWindowClosedEvent) Audience() []uuid.UUID { return []uuid.UUID{e.CustomerID} }

// OrderNotificationSentEvent records an operator-sent order notification.
type OrderNotificationSentEvent struct {
	OrderID        uuid.UUID                   `json:"orderId"`
	NotificationID uuid.UUID                   `json:"notificationId"`
	CustomerID     uuid.UUID                   `json:"customerId"`
	Type           enums.OrderNotificationType `json:"type"`
	Priority       enums.NotificationPriority  `json:"priority"`
	Channels       []enums.NotificationChannel `json:"channels"`
	Message        string                      `json:"message"`
}

func (e OrderNotificationSentEvent) Audience() []uuid.UUID { return []uuid.UUID{e.CustomerID} }

// ChatMessageSentEvent is emitted for every message posted to a chat.
type ChatMessageSentEvent struct {
	ChatID      uuid.UUID         `json:"chatId"`
	MessageID   uuid.UUID         `json:"messageId"`
	SenderID    uuid.UUID         `json:"senderId"`
	Recipients  []uuid.UUID       `json:"recipients"`
	MessageType enums.MessageType `json:"messageType"`
	Preview     string            `json:"preview"`
	OrderID     *uuid.UUID        `json:"orderId,omitempty"`
}

func (e ChatMessageSentEvent) Audience() []uuid.UUID { return e.Recipients }

// SupportCaseCreatedEvent is emitted when a customer opens a case.
type SupportCaseCreatedEvent struct {
	CaseID    uuid.UUID             `json:"caseId"`
	UserID    uuid.UUID             `json:"userId"`
	Reference string                `json:"reference"`
	Category  enums.SupportCategory `json:"category"`
	Priority  enums.SupportPriority `json:"priority"`
	ChatID    uuid.UUID             `json:"chatId"`
}

func (e SupportCaseCreatedEvent) Audience() []uuid.UUID { return []uuid.UUID{e.UserID} }

// SupportCaseAssignedEvent is emitted when a human agent takes a case.
type SupportCaseAssignedEvent struct {
	CaseID  uuid.UUID `json:"caseId"`
	UserID  uuid.UUID `json:"userId"`
	AgentID uuid.UUID `json:"agentId"`
	ChatID  uuid.UUID `json:"chatId"`
}

func (e SupportCaseAssignedEvent) Audience() []uuid.UUID { return []uuid.UUID{e.UserID, e.AgentID} }

// SupportCaseStatusChangedEvent is emitted when a case is resolved, closed or reopened.
type SupportCaseStatusChangedEvent struct {
	CaseID     uuid.UUID           `json:"caseId"`
	UserID     uuid.UUID           `json:"userId"`
	FromStatus enums.SupportStatus `json:"fromStatus"`
	ToStatus   enums.SupportStatus `json:"toStatus"`
}

func (e SupportCaseStatusChangedEvent) Audience() []uuid.UUID { return []uuid.UUID{e.UserID} }

// ChangeBroadcastEvent carries an admin broadcast to every connected client.
type ChangeBroadcastEvent struct {
	ChangeID   uuid.UUID        `json:"changeId"`
	ChangeType enums.ChangeType `json:"changeType"`
	AdminID    uuid.UUID        `json:"adminId"`
	Data       map[string]any   `json:"data"`
}

func (e ChangeBroadcastEvent) Audience() []uuid.UUID { return nil }
