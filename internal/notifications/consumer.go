package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cribnosh/cribnosh-backend/internal/consumers"
	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox/payloads"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox/registry"
	"github.com/cribnosh/cribnosh-backend/pkg/types"
	"github.com/google/uuid"
)

const orderNotificationConsumer = "order-notifications"

var handledEvents = map[enums.OutboxEventType]struct{}{
	enums.EventOrderCreated:            {},
	enums.EventOrderStatusChanged:      {},
	enums.EventOrderReviewed:           {},
	enums.EventOrderRefundWindowClosed: {},
	enums.EventChatMessageSent:         {},
	enums.EventSupportCaseAssigned:     {},
	enums.EventSupportCaseStatus:       {},
}

type notificationWriter interface {
	Create(ctx context.Context, notifications ...*models.Notification) error
}

// Consumer turns domain events into in-app notifications for the users involved.
// The user who caused an event is never notified about it.
type Consumer struct {
	repo notificationWriter
	logg *logger.Logger
}

// NewConsumer builds the notification handler run by the worker.
func NewConsumer(repo notificationWriter, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{repo: repo, logg: logg}, nil
}

func (c *Consumer) Name() string { return orderNotificationConsumer }

func (c *Consumer) Handles(eventType enums.OutboxEventType) bool {
	_, ok := handledEvents[eventType]
	return ok
}

func (c *Consumer) Handle(ctx context.Context, event consumers.Event) error {
	drafts, err := draftsFor(event)
	if err != nil {
		return registry.NewNonRetryableError(err)
	}

	var actor uuid.UUID
	if event.Envelope.Actor != nil {
		actor = event.Envelope.Actor.UserID
	}
	createdAt := event.Envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	rows := make([]*models.Notification, 0, len(drafts))
	seen := make(map[uuid.UUID]struct{}, len(drafts))
	for _, d := range drafts {
		if d.userID == uuid.Nil || d.userID == actor {
			continue
		}
		if _, dup := seen[d.userID]; dup {
			continue
		}
		seen[d.userID] = struct{}{}
		url := d.actionURL
		rows = append(rows, &models.Notification{
			UserID:    d.userID,
			Type:      d.kind,
			Title:     d.title,
			Message:   d.message,
			Priority:  d.priority,
			ActionURL: &url,
			Metadata:  types.JSONMap{"event_id": event.ID.String(), "event_type": string(event.Type)},
			CreatedAt: createdAt,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := c.repo.Create(ctx, rows...); err != nil {
		return fmt.Errorf("store notifications: %w", err)
	}

	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id":   event.ID.String(),
		"event_type": string(event.Type),
		"count":      len(rows),
	})
	c.logg.Info(logCtx, "notifications created")
	return nil
}

type draft struct {
	userID    uuid.UUID
	kind      enums.NotificationType
	title     string
	message   string
	priority  enums.NotificationPriority
	actionURL string
}

func draftsFor(event consumers.Event) ([]draft, error) {
	switch p := event.Payload.(type) {
	case *payloads.OrderCreatedEvent:
		return []draft{{
			userID:    p.ChefID,
			kind:      enums.NotificationTypeOrderUpdate,
			title:     "New order " + p.OrderNumber,
			message:   fmt.Sprintf("You have a new order totalling %s %s.", p.TotalAmount.StringFixed(2), p.Currency),
			priority:  enums.NotificationPriorityHigh,
			actionURL: orderActionURL(p.OrderID),
		}}, nil
	case *payloads.OrderStatusChangedEvent:
		title, message, priority := statusCopy(p)
		base := draft{
			kind:      enums.NotificationTypeOrderUpdate,
			title:     title,
			message:   message,
			priority:  priority,
			actionURL: orderActionURL(p.OrderID),
		}
		customer, chef := base, base
		customer.userID = p.CustomerID
		chef.userID = p.ChefID
		return []draft{customer, chef}, nil
	case *payloads.OrderReviewedEvent:
		message := "A customer reviewed their order."
		if p.Rating != nil {
			message = fmt.Sprintf("A customer rated their order %d/5.", *p.Rating)
		}
		return []draft{{
			userID:    p.ChefID,
			kind:      enums.NotificationTypeOrderUpdate,
			title:     "New review",
			message:   message,
			priority:  enums.NotificationPriorityLow,
			actionURL: orderActionURL(p.OrderID),
		}}, nil
	case *payloads.OrderRefundWindowClosedEvent:
		return []draft{{
			userID:    p.CustomerID,
			kind:      enums.NotificationTypeOrderUpdate,
			title:     "Refund window closed",
			message:   "This order is no longer eligible for a refund.",
			priority:  enums.NotificationPriorityLow,
			actionURL: orderActionURL(p.OrderID),
		}}, nil
	case *payloads.ChatMessageSentEvent:
		// status updates already produce an order notification
		if p.MessageType == enums.MessageTypeStatusUpdate || p.MessageType == enums.MessageTypeSystem {
			return nil, nil
		}
		out := make([]draft, 0, len(p.Recipients))
		for _, recipient := range p.Recipients {
			if recipient == p.SenderID {
				continue
			}
			out = append(out, draft{
				userID:    recipient,
				kind:      enums.NotificationTypeChatMessage,
				title:     "New message",
				message:   preview(p.Preview, p.MessageType),
				priority:  enums.NotificationPriorityMedium,
				actionURL: "/chat/conversations/" + p.ChatID.String(),
			})
		}
		return out, nil
	case *payloads.SupportCaseAssignedEvent:
		return []draft{{
			userID:    p.UserID,
			kind:      enums.NotificationTypeSupport,
			title:     "Support agent assigned",
			message:   "An agent has joined your support case.",
			priority:  enums.NotificationPriorityMedium,
			actionURL: "/support/cases/" + p.CaseID.String(),
		}}, nil
	case *payloads.SupportCaseStatusChangedEvent:
		return []draft{{
			userID:    p.UserID,
			kind:      enums.NotificationTypeSupport,
			title:     "Support case " + string(p.ToStatus),
			message:   fmt.Sprintf("Your support case moved from %s to %s.", p.FromStatus, p.ToStatus),
			priority:  enums.NotificationPriorityLow,
			actionURL: "/support/cases/" + p.CaseID.String(),
		}}, nil
	default:
		return nil, fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
}

func statusCopy(e *payloads.OrderStatusChangedEvent) (string, string, enums.NotificationPriority) {
	number := e.OrderNumber
	switch e.ToStatus {
	case enums.OrderStatusConfirmed:
		return "Order confirmed", fmt.Sprintf("Order %s has been confirmed by the chef.", number), enums.NotificationPriorityMedium
	case enums.OrderStatusPreparing:
		return "Order being prepared", fmt.Sprintf("Order %s is being prepared.", number), enums.NotificationPriorityMedium
	case enums.OrderStatusReady:
		return "Order ready", fmt.Sprintf("Order %s is ready.", number), enums.NotificationPriorityHigh
	case enums.OrderStatusDelivered:
		return "Order delivered", fmt.Sprintf("Order %s has been delivered.", number), enums.NotificationPriorityHigh
	case enums.OrderStatusCompleted:
		return "Order completed", fmt.Sprintf("Order %s is complete.", number), enums.NotificationPriorityLow
	case enums.OrderStatusCancelled:
		message := fmt.Sprintf("Order %s was cancelled.", number)
		if reason := strings.TrimSpace(e.Reason); reason != "" {
			message = fmt.Sprintf("Order %s was cancelled: %s.", number, reason)
		}
		return "Order cancelled", message, enums.NotificationPriorityHigh
	default:
		return "Order updated", fmt.Sprintf("Order %s is now %s.", number, e.ToStatus), enums.NotificationPriorityMedium
	}
}

func preview(text string, kind enums.MessageType) string {
	text = strings.TrimSpace(text)
	switch {
	case text != "":
		return text
	case kind == enums.MessageTypeImage:
		return "Sent an image"
	case kind == enums.MessageTypeFile:
		return "Sent a file"
	default:
		return "Sent a message"
	}
}
