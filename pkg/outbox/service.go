package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
)

// DomainEvent is what services hand to Emit. Data is marshalled into the
// envelope's data field.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

func (e DomainEvent) validate() error {
	switch {
	case !e.EventType.IsValid():
		return fmt.Errorf("unknown outbox event type %q", e.EventType)
	case !e.AggregateType.IsValid():
		return fmt.Errorf("unknown outbox aggregate type %q", e.AggregateType)
	case e.AggregateID == uuid.Nil:
		return fmt.Errorf("outbox event %s has no aggregate id", e.EventType)
	}
	return nil
}

type inserter interface {
	Insert(tx *gorm.DB, event models.OutboxEvent) error
}

// Service queues domain events in the caller's transaction.
type Service struct {
	repo inserter
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit writes the event inside tx so it commits or rolls back with the
// caller's mutation.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "outbox emit requires a transaction")
	}
	if err := event.validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "invalid outbox event")
	}

	row, eventID, err := s.build(event)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode outbox event")
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert outbox event")
	}

	if s.logg != nil {
		if ctx == nil {
			ctx = context.Background()
		}
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":       eventID,
			"event_type":     event.EventType,
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}

func (s *Service) build(event DomainEvent) (models.OutboxEvent, string, error) {
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = s.now()
	}
	envelope, err := newEnvelope(event.Version, occurred, event.Actor, event.Data)
	if err != nil {
		return models.OutboxEvent{}, "", err
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return models.OutboxEvent{}, "", err
	}
	return models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}, envelope.EventID, nil
}
