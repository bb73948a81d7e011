package changes

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cribnosh/cribnosh-backend/internal/consumers"
	pkgdb "github.com/cribnosh/cribnosh-backend/pkg/db"
	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	dbtypes "github.com/cribnosh/cribnosh-backend/pkg/db/types"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox/payloads"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox/registry"
	"github.com/cribnosh/cribnosh-backend/pkg/types"
	"github.com/google/uuid"
)

const feedConsumerName = "change-feed"

var projectedTypes = map[enums.OutboxEventType]enums.ChangeType{
	enums.EventOrderStatusChanged:    enums.ChangeOrderStatus,
	enums.EventOrderUpdated:          enums.ChangeOrderUpdated,
	enums.EventOrderReviewed:         enums.ChangeOrderUpdated,
	enums.EventOrderNotificationSent: enums.ChangeOrderUpdated,
	enums.EventChatMessageSent:       enums.ChangeChatMessage,
	enums.EventSupportCaseCreated:    enums.ChangeSupportCase,
	enums.EventSupportCaseAssigned:   enums.ChangeSupportCase,
	enums.EventSupportCaseStatus:     enums.ChangeSupportCase,
}

type feedStore interface {
	Insert(ctx context.Context, change *models.Change) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Change, error)
	FindBySourceEvent(ctx context.Context, eventID uuid.UUID) (*models.Change, error)
	MarkSynced(ctx context.Context, ids []uuid.UUID) (int64, error)
}

type fanoutPublisher interface {
	Publish(ctx context.Context, body []byte) error
}

// FeedHandler projects domain events into the changes table and publishes each
// row to the fanout exchange the API instances listen on.
type FeedHandler struct {
	repo      feedStore
	publisher fanoutPublisher
	logg      *logger.Logger
	now       func() time.Time
}

func NewFeedHandler(repo *Repository, publisher fanoutPublisher, logg *logger.Logger) (*FeedHandler, error) {
	if repo == nil {
		return nil, fmt.Errorf("changes repository required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("fanout publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &FeedHandler{repo: repo, publisher: publisher, logg: logg, now: time.Now}, nil
}

var _ consumers.Handler = (*FeedHandler)(nil)

func (h *FeedHandler) Name() string { return feedConsumerName }

func (h *FeedHandler) Handles(eventType enums.OutboxEventType) bool {
	if eventType == enums.EventChangeBroadcast {
		return true
	}
	_, ok := projectedTypes[eventType]
	return ok
}

func (h *FeedHandler) Handle(ctx context.Context, event consumers.Event) error {
	change, err := h.resolve(ctx, event)
	if err != nil {
		return err
	}
	body, err := json.Marshal(toDTO(*change))
	if err != nil {
		return registry.NewNonRetryableError(fmt.Errorf("encode change: %w", err))
	}
	if err := h.publisher.Publish(ctx, body); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	if _, err := h.repo.MarkSynced(ctx, []uuid.UUID{change.ID}); err != nil {
		h.logg.Error(ctx, "failed to mark change synced", err)
	}
	h.logg.Info(h.logg.WithField(ctx, "change_id", change.ID.String()), "change fanned out")
	return nil
}

// resolve returns the feed row for event, creating it on first delivery.
// Rows are stamped with the insert time; the event time is kept as OccurredAt.
// Broadcasts already have their row written by Service.Broadcast.
func (h *FeedHandler) resolve(ctx context.Context, event consumers.Event) (*models.Change, error) {
	if event.Type == enums.EventChangeBroadcast {
		payload, ok := event.Payload.(*payloads.ChangeBroadcastEvent)
		if !ok {
			return nil, registry.NewNonRetryableError(fmt.Errorf("unexpected payload %T", event.Payload))
		}
		change, err := h.repo.FindByID(ctx, payload.ChangeID)
		if pkgdb.IsNotFound(err) {
			return nil, registry.NewNonRetryableError(fmt.Errorf("broadcast change %s not found", payload.ChangeID))
		}
		return change, err
	}

	change, err := project(event, h.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := h.repo.Insert(ctx, change); err != nil {
		if !isDuplicateSource(err) {
			return nil, fmt.Errorf("store change: %w", err)
		}
		return h.repo.FindBySourceEvent(ctx, event.ID)
	}
	return change, nil
}

func project(event consumers.Event, inserted time.Time) (*models.Change, error) {
	changeType, ok := projectedTypes[event.Type]
	if !ok {
		return nil, registry.NewNonRetryableError(fmt.Errorf("event %s is not projected", event.Type))
	}
	data, err := payloadMap(event.Payload)
	if err != nil {
		return nil, registry.NewNonRetryableError(err)
	}
	data["event"] = string(event.Type)

	audience := dbtypes.UUIDArray{}
	if aud, ok := event.Payload.(payloads.Audienced); ok {
		audience = uniqueAudience(aud.Audience())
	}
	eventID := event.ID
	occurred := event.Envelope.OccurredAt.UTC()
	if occurred.IsZero() {
		occurred = inserted
	}
	return &models.Change{
		Type:          changeType,
		Data:          data,
		Audience:      audience,
		SourceEventID: &eventID,
		OccurredAt:    occurred,
		CreatedAt:     inserted,
	}, nil
}

func payloadMap(payload any) (types.JSONMap, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	out := types.JSONMap{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("payload is not an object: %w", err)
	}
	return out, nil
}

func uniqueAudience(ids []uuid.UUID) dbtypes.UUIDArray {
	out := dbtypes.UUIDArray{}
	seen := map[uuid.UUID]struct{}{}
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
