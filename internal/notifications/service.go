package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/auth"
	pkgdb "github.com/cribnosh/cribnosh-backend/pkg/db"
	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox/payloads"
	"github.com/cribnosh/cribnosh-backend/pkg/pagination"
	"github.com/cribnosh/cribnosh-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxOrderMessageLength = 1000

var senderRoles = []enums.UserRole{enums.RoleAdmin, enums.RoleStaff, enums.RoleChef}

// Service defines notification list/read operations and explicit order notifications.
type Service interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	SendOrderNotification(ctx context.Context, input SendOrderNotificationInput) (*OrderNotificationDTO, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams bundles the service dependencies.
type ServiceParams struct {
	Repo   Repository
	Tx     txRunner
	Outbox outboxPublisher
	Logger *logger.Logger
	Now    func() time.Time
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
	now    func() time.Time
}

// ListParams configures pagination for notifications.
type ListParams struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items       []NotificationDTO `json:"items"`
	Cursor      string            `json:"cursor"`
	UnreadCount int64             `json:"unread_count"`
}

// NotificationDTO is the API shape of an in-app notification.
type NotificationDTO struct {
	ID        uuid.UUID                  `json:"id"`
	Type      enums.NotificationType     `json:"type"`
	Title     string                     `json:"title"`
	Message   string                     `json:"message"`
	Priority  enums.NotificationPriority `json:"priority"`
	ActionURL *string                    `json:"action_url,omitempty"`
	Metadata  types.JSONMap              `json:"metadata,omitempty"`
	Read      bool                       `json:"read"`
	ReadAt    *time.Time                 `json:"read_at,omitempty"`
	CreatedAt time.Time                  `json:"created_at"`
}

// SendOrderNotificationInput is an explicit notification about one order.
type SendOrderNotificationInput struct {
	Actor    auth.Actor
	OrderID  uuid.UUID
	Type     string
	Message  string
	Priority string
	Channels []string
	Metadata map[string]any
}

// OrderNotificationDTO is the stored order notification record.
type OrderNotificationDTO struct {
	ID       uuid.UUID                     `json:"id"`
	OrderID  uuid.UUID                     `json:"order_id"`
	Type     enums.OrderNotificationType   `json:"type"`
	Message  string                        `json:"message"`
	Priority enums.NotificationPriority    `json:"priority"`
	Channels []enums.NotificationChannel   `json:"channels"`
	SentBy   uuid.UUID                     `json:"sent_by"`
	Status   enums.OrderNotificationStatus `json:"status"`
	SentAt   time.Time                     `json:"sent_at"`
}

// NewService wires notifications dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &service{
		repo:   params.Repo,
		tx:     params.Tx,
		outbox: params.Outbox,
		logg:   params.Logger,
		now:    params.Now,
	}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}

	query := listNotificationsParams{
		UserID:     params.UserID,
		Limit:      params.Limit,
		UnreadOnly: params.UnreadOnly,
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	query.Cursor = cursor

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	unread, err := s.repo.CountUnread(ctx, params.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count unread notifications")
	}

	result := &ListResult{Items: make([]NotificationDTO, 0, len(rows)), UnreadCount: unread}
	for i := range rows {
		result.Items = append(result.Items, toDTO(rows[i]))
	}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	result, err := s.repo.MarkRead(ctx, userID, notificationID, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}

	count, err := s.repo.MarkAllRead(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}

func (s *service) SendOrderNotification(ctx context.Context, input SendOrderNotificationInput) (*OrderNotificationDTO, error) {
	role, ok := input.Actor.RoleAmong(senderRoles)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only chefs and staff can send order notifications")
	}
	kind, priority, channels, err := parseOrderNotification(input)
	if err != nil {
		return nil, err
	}
	message := strings.TrimSpace(input.Message)

	order, err := s.repo.FindOrder(ctx, input.OrderID)
	if err != nil {
		if pkgdb.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if role == enums.RoleChef && order.ChefID != input.Actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another chef")
	}

	now := s.now().UTC()
	record := &models.OrderNotification{
		OrderID:  order.ID,
		Type:     kind,
		Message:  message,
		Priority: priority,
		Channels: channels,
		SentBy:   input.Actor.UserID,
		Metadata: types.JSONMap(input.Metadata).Clone(),
		Status:   enums.OrderNotificationStatusSent,
		SentAt:   now,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.InsertOrderNotification(ctx, record); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store order notification")
		}
		if err := repo.InsertOrderHistory(ctx, &models.OrderHistory{
			OrderID:         order.ID,
			Action:          enums.OrderActionNotificationSent,
			PerformedBy:     input.Actor.UserID,
			PerformedByRole: role,
			Description:     fmt.Sprintf("Notification sent: %s", kind),
			Metadata:        types.JSONMap{"notification_id": record.ID.String(), "channels": channels},
			PerformedAt:     now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record order history")
		}
		actionURL := orderActionURL(order.ID)
		if err := repo.Create(ctx, &models.Notification{
			UserID:    order.CustomerID,
			Type:      enums.NotificationTypeOrderUpdate,
			Title:     orderNotificationTitle(kind, order.OrderNumber),
			Message:   message,
			Priority:  priority,
			ActionURL: &actionURL,
			Metadata:  types.JSONMap{"order_id": order.ID.String(), "order_notification_id": record.ID.String()},
			CreatedAt: now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store in-app notification")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderNotificationSent,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: input.Actor.UserID, Role: string(role)},
			Data: payloads.OrderNotificationSentEvent{
				OrderID:        order.ID,
				NotificationID: record.ID,
				CustomerID:     order.CustomerID,
				Type:           kind,
				Priority:       priority,
				Channels:       channels,
				Message:        message,
			},
		})
	})
	if err != nil {
		return nil, asDependency(err, "send order notification")
	}

	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "order notification sent")
	return &OrderNotificationDTO{
		ID:       record.ID,
		OrderID:  record.OrderID,
		Type:     record.Type,
		Message:  record.Message,
		Priority: record.Priority,
		Channels: record.Channels,
		SentBy:   record.SentBy,
		Status:   record.Status,
		SentAt:   record.SentAt,
	}, nil
}

func parseOrderNotification(input SendOrderNotificationInput) (enums.OrderNotificationType, enums.NotificationPriority, []enums.NotificationChannel, error) {
	if input.OrderID == uuid.Nil {
		return "", "", nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	kind, err := enums.ParseOrderNotificationType(input.Type)
	if err != nil {
		return "", "", nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid notification type").
			WithDetails(map[string]any{"type": input.Type})
	}
	message := strings.TrimSpace(input.Message)
	if message == "" || len(message) > maxOrderMessageLength {
		return "", "", nil, pkgerrors.Newf(pkgerrors.CodeValidation, "message must be between 1 and %d characters", maxOrderMessageLength)
	}

	priority := enums.NotificationPriorityMedium
	if strings.TrimSpace(input.Priority) != "" {
		priority, err = enums.ParseNotificationPriority(input.Priority)
		if err != nil {
			return "", "", nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid priority").
				WithDetails(map[string]any{"priority": input.Priority})
		}
	}

	if len(input.Channels) == 0 {
		return kind, priority, []enums.NotificationChannel{enums.NotificationChannelInApp}, nil
	}
	channels := make([]enums.NotificationChannel, 0, len(input.Channels))
	seen := make(map[enums.NotificationChannel]struct{}, len(input.Channels))
	for _, raw := range input.Channels {
		channel, err := enums.ParseNotificationChannel(raw)
		if err != nil {
			return "", "", nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid channel").
				WithDetails(map[string]any{"channel": raw})
		}
		if _, dup := seen[channel]; dup {
			continue
		}
		seen[channel] = struct{}{}
		channels = append(channels, channel)
	}
	return kind, priority, channels, nil
}

func orderNotificationTitle(kind enums.OrderNotificationType, orderNumber string) string {
	switch kind {
	case enums.OrderNotificationConfirmed:
		return "Order " + orderNumber + " confirmed"
	case enums.OrderNotificationPreparing:
		return "Order " + orderNumber + " is being prepared"
	case enums.OrderNotificationReady:
		return "Order " + orderNumber + " is ready"
	case enums.OrderNotificationDelivered:
		return "Order " + orderNumber + " delivered"
	case enums.OrderNotificationCompleted:
		return "Order " + orderNumber + " completed"
	case enums.OrderNotificationCancelled:
		return "Order " + orderNumber + " cancelled"
	default:
		return "Update on order " + orderNumber
	}
}

func orderActionURL(orderID uuid.UUID) string {
	return "/orders/" + orderID.String()
}

func toDTO(n models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Priority:  n.Priority,
		ActionURL: n.ActionURL,
		Metadata:  n.Metadata,
		Read:      n.ReadAt != nil,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}

func asDependency(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
