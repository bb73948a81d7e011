package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cribnosh/cribnosh-backend/pkg/config"
	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// NewEventRegistry builds the registry. Every domain event goes to the domain topic;
// consumers filter on the event_type attribute.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.DomainTopic)
	if topic == "" {
		return nil, fmt.Errorf("domain topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	for _, desc := range []EventDescriptor{
		{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, PayloadFactory: func() interface{} { return &payloads.OrderCreatedEvent{} }},
		{EventType: enums.EventOrderStatusChanged, AggregateType: enums.AggregateOrder, PayloadFactory: func() interface{} { return &payloads.OrderStatusChangedEvent{} }},
		{EventType: enums.EventOrderReviewed, AggregateType: enums.AggregateOrder, PayloadFactory: func() interface{} { return &payloads.OrderReviewedEvent{} }},
		{EventType: enums.EventOrderUpdated, AggregateType: enums.AggregateOrder, PayloadFactory: func() interface{} { return &payloads.OrderUpdatedEvent{} }},
		{EventType: enums.EventOrderNoteAdded, AggregateType: enums.AggregateOrder, PayloadFactory: func() interface{} { return &payloads.OrderNoteAddedEvent{} }},
		{EventType: enums.EventOrderRefundWindowClosed, AggregateType: enums.AggregateOrder, PayloadFactory: func() interface{} { return &payloads.OrderRefundWindowClosedEvent{} }},
		{EventType: enums.EventOrderNotificationSent, AggregateType: enums.AggregateOrder, PayloadFactory: func() interface{} { return &payloads.OrderNotificationSentEvent{} }},
		{EventType: enums.EventChatMessageSent, AggregateType: enums.AggregateChat, PayloadFactory: func() interface{} { return &payloads.ChatMessageSentEvent{} }},
		{EventType: enums.EventSupportCaseCreated, AggregateType: enums.AggregateSupportCase, PayloadFactory: func() interface{} { return &payloads.SupportCaseCreatedEvent{} }},
		{EventType: enums.EventSupportCaseAssigned, AggregateType: enums.AggregateSupportCase, PayloadFactory: func() interface{} { return &payloads.SupportCaseAssignedEvent{} }},
		{EventType: enums.EventSupportCaseStatus, AggregateType: enums.AggregateSupportCase, PayloadFactory: func() interface{} { return &payloads.SupportCaseStatusChangedEvent{} }},
		{EventType: enums.EventChangeBroadcast, AggregateType: enums.AggregateChange, PayloadFactory: func() interface{} { return &payloads.ChangeBroadcastEvent{} }},
	} {
		desc.Topic = topic
		reg.register(desc)
	}
	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	envelope, _, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	payload, err := r.Decode(event.EventType, envelope.Data)
	if err != nil {
		return nil, err
	}
	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

// Decode turns envelope data into the typed payload registered for eventType.
// Consumers use it on received messages; errors are non-retryable.
func (r *EventRegistry) Decode(eventType enums.OutboxEventType, data json.RawMessage) (interface{}, error) {
	desc, ok := r.entries[eventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", eventType))
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", eventType))
	}
	payload := desc.PayloadFactory()
	if err := json.Unmarshal(trimmed, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", eventType, err))
	}
	return payload, nil
}

// EventTypes lists every registered event type.
func (r *EventRegistry) EventTypes() []enums.OutboxEventType {
	out := make([]enums.OutboxEventType, 0, len(r.entries))
	for t := range r.entries {
		out = append(out, t)
	}
	return out
}
