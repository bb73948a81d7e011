package notifications

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/cribnosh/cribnosh-backend/internal/consumers"
	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox/payloads"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox/registry"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryWriter struct {
	rows []*models.Notification
	err  error
}

func (m *memoryWriter) Create(_ context.Context, notifications ...*models.Notification) error {
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, notifications...)
	return nil
}

func newConsumer(t *testing.T, w notificationWriter) *Consumer {
	t.Helper()
	c, err := NewConsumer(w, logger.New(logger.Options{Output: io.Discard}))
	require.NoError(t, err)
	return c
}

func eventOf(eventType enums.OutboxEventType, actor uuid.UUID, payload any) consumers.Event {
	env := outbox.PayloadEnvelope{OccurredAt: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	if actor != uuid.Nil {
		env.Actor = &outbox.ActorRef{UserID: actor}
	}
	return consumers.Event{ID: uuid.New(), Type: eventType, Envelope: env, Payload: payload}
}

func recipients(rows []*models.Notification) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.UserID)
	}
	return out
}

func TestConsumerStatusChangeSkipsActor(t *testing.T) {
	w := &memoryWriter{}
	c := newConsumer(t, w)
	customer, chef := uuid.New(), uuid.New()
	event := eventOf(enums.EventOrderStatusChanged, chef, &payloads.OrderStatusChangedEvent{
		OrderID:     uuid.New(),
		OrderNumber: "CN-1001",
		CustomerID:  customer,
		ChefID:      chef,
		FromStatus:  enums.OrderStatusPreparing,
		ToStatus:    enums.OrderStatusReady,
	})

	require.NoError(t, c.Handle(context.Background(), event))
	require.Len(t, w.rows, 1)
	row := w.rows[0]
	assert.Equal(t, customer, row.UserID)
	assert.Equal(t, "Order ready", row.Title)
	assert.Equal(t, enums.NotificationPriorityHigh, row.Priority)
	assert.Equal(t, event.Envelope.OccurredAt, row.CreatedAt)
	assert.Equal(t, event.ID.String(), row.Metadata.String("event_id"))
}

func TestConsumerSystemTransitionNotifiesBoth(t *testing.T) {
	w := &memoryWriter{}
	c := newConsumer(t, w)
	customer, chef := uuid.New(), uuid.New()
	event := eventOf(enums.EventOrderStatusChanged, uuid.Nil, &payloads.OrderStatusChangedEvent{
		OrderID:    uuid.New(),
		CustomerID: customer,
		ChefID:     chef,
		ToStatus:   enums.OrderStatusCancelled,
		Reason:     "chef unavailable",
	})

	require.NoError(t, c.Handle(context.Background(), event))
	assert.ElementsMatch(t, []uuid.UUID{customer, chef}, recipients(w.rows))
	assert.Contains(t, w.rows[0].Message, "chef unavailable")
}

func TestConsumerEventRouting(t *testing.T) {
	customer, chef, agent := uuid.New(), uuid.New(), uuid.New()
	rating := 5
	cases := []struct {
		name  string
		event consumers.Event
		want  []uuid.UUID
		kind  enums.NotificationType
	}{
		{"created", eventOf(enums.EventOrderCreated, customer, &payloads.OrderCreatedEvent{OrderID: uuid.New(), CustomerID: customer, ChefID: chef}), []uuid.UUID{chef}, enums.NotificationTypeOrderUpdate},
		{"reviewed", eventOf(enums.EventOrderReviewed, customer, &payloads.OrderReviewedEvent{OrderID: uuid.New(), CustomerID: customer, ChefID: chef, Rating: &rating}), []uuid.UUID{chef}, enums.NotificationTypeOrderUpdate},
		{"refund window", eventOf(enums.EventOrderRefundWindowClosed, uuid.Nil, &payloads.OrderRefundWindowClosedEvent{OrderID: uuid.New(), CustomerID: customer, ChefID: chef}), []uuid.UUID{customer}, enums.NotificationTypeOrderUpdate},
		{"chat", eventOf(enums.EventChatMessageSent, chef, &payloads.ChatMessageSentEvent{ChatID: uuid.New(), SenderID: chef, Recipients: []uuid.UUID{customer, chef}, MessageType: enums.MessageTypeText, Preview: "on my way"}), []uuid.UUID{customer}, enums.NotificationTypeChatMessage},
		{"support assigned", eventOf(enums.EventSupportCaseAssigned, agent, &payloads.SupportCaseAssignedEvent{CaseID: uuid.New(), UserID: customer, AgentID: agent}), []uuid.UUID{customer}, enums.NotificationTypeSupport},
		{"support status", eventOf(enums.EventSupportCaseStatus, agent, &payloads.SupportCaseStatusChangedEvent{CaseID: uuid.New(), UserID: customer, FromStatus: enums.SupportStatusOpen, ToStatus: enums.SupportStatusResolved}), []uuid.UUID{customer}, enums.NotificationTypeSupport},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := &memoryWriter{}
			c := newConsumer(t, w)
			require.True(t, c.Handles(tc.event.Type))
			require.NoError(t, c.Handle(context.Background(), tc.event))
			assert.ElementsMatch(t, tc.want, recipients(w.rows))
			for _, row := range w.rows {
				assert.Equal(t, tc.kind, row.Type)
				require.NotNil(t, row.ActionURL)
			}
		})
	}
}

func TestConsumerSkipsStatusUpdateMessages(t *testing.T) {
	w := &memoryWriter{}
	c := newConsumer(t, w)
	event := eventOf(enums.EventChatMessageSent, uuid.Nil, &payloads.ChatMessageSentEvent{
		ChatID:      uuid.New(),
		SenderID:    uuid.New(),
		Recipients:  []uuid.UUID{uuid.New()},
		MessageType: enums.MessageTypeStatusUpdate,
	})
	require.NoError(t, c.Handle(context.Background(), event))
	assert.Empty(t, w.rows)
}

func TestConsumerErrors(t *testing.T) {
	c := newConsumer(t, &memoryWriter{})
	assert.False(t, c.Handles(enums.EventChangeBroadcast))

	err := c.Handle(context.Background(), eventOf(enums.EventOrderCreated, uuid.Nil, "not a payload"))
	var nonRetryable registry.NonRetryableError
	assert.True(t, errors.As(err, &nonRetryable))

	failing := newConsumer(t, &memoryWriter{err: errors.New("db down")})
	err = failing.Handle(context.Background(), eventOf(enums.EventOrderCreated, uuid.Nil, &payloads.OrderCreatedEvent{ChefID: uuid.New()}))
	require.Error(t, err)
	assert.False(t, errors.As(err, &nonRetryable))
}
