// Package consumers runs Pub/Sub subscriptions over outbox domain events.
// A Runner owns decoding, event-type filtering and per-consumer idempotency;
// Handlers only see typed payloads.
package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox/idempotency"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox/registry"
	"github.com/google/uuid"
)

// Event is a decoded domain event handed to a Handler.
type Event struct {
	ID       uuid.UUID
	Type     enums.OutboxEventType
	Envelope outbox.PayloadEnvelope
	Payload  any
}

// Handler reacts to one family of domain events.
type Handler interface {
	Name() string
	Handles(eventType enums.OutboxEventType) bool
	Handle(ctx context.Context, event Event) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

type decoder interface {
	Decode(eventType enums.OutboxEventType, data json.RawMessage) (interface{}, error)
}

type onceRunner interface {
	Once(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) error
}

// Delivery is the subset of a Pub/Sub message the runner reads.
type Delivery struct {
	ID         string
	Attributes map[string]string
	Data       []byte
}

// Disposition tells the subscription loop whether to ack or nack.
type Disposition int

const (
	Ack Disposition = iota
	Nack
)

type Runner struct {
	subscription receiver
	handler      Handler
	decoder      decoder
	once         onceRunner
	logg         *logger.Logger
}

func NewRunner(subscription receiver, handler Handler, decoder decoder, once onceRunner, logg *logger.Logger) (*Runner, error) {
	if subscription == nil {
		return nil, fmt.Errorf("subscription required")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler required")
	}
	if decoder == nil {
		return nil, fmt.Errorf("event registry required")
	}
	if once == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Runner{
		subscription: subscription,
		handler:      handler,
		decoder:      decoder,
		once:         once,
		logg:         logg,
	}, nil
}

// Name is the handler's consumer name, used in logs and idempotency keys.
func (r *Runner) Name() string {
	return r.handler.Name()
}

// Run receives messages until ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	return r.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := r.Process(ctx, Delivery{ID: msg.ID, Attributes: msg.Attributes, Data: msg.Data})
		if result == Nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Process decodes one delivery and runs the handler at most once per event id.
// Undecodable messages are acked and logged; handler failures are nacked unless
// they are non-retryable.
func (r *Runner) Process(ctx context.Context, d Delivery) Disposition {
	eventType := enums.OutboxEventType(d.Attributes["event_type"])
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"consumer":   r.handler.Name(),
		"message_id": d.ID,
		"event_type": eventType,
	})

	if !r.handler.Handles(eventType) {
		return Ack
	}

	envelope, eventID, err := outbox.DecodeEnvelope(d.Data)
	if err != nil {
		r.logg.Error(logCtx, "failed to decode envelope", err)
		return Ack
	}
	logCtx = r.logg.WithField(logCtx, "event_id", eventID.String())

	payload, err := r.decoder.Decode(eventType, envelope.Data)
	if err != nil {
		r.logg.Error(logCtx, "failed to decode payload", err)
		return Ack
	}

	event := Event{ID: eventID, Type: eventType, Envelope: envelope, Payload: payload}
	err = r.once.Once(ctx, r.handler.Name(), eventID, func(ctx context.Context) error {
		return r.handler.Handle(logCtx, event)
	})
	switch {
	case err == nil:
		return Ack
	case errors.Is(err, idempotency.ErrAlreadyProcessed):
		r.logg.Info(logCtx, "event already processed")
		return Ack
	case isNonRetryable(err):
		r.logg.Error(logCtx, "event dropped", err)
		return Ack
	default:
		r.logg.Error(logCtx, "event handling failed", err)
		return Nack
	}
}

func isNonRetryable(err error) bool {
	var target registry.NonRetryableError
	return errors.As(err, &target)
}
