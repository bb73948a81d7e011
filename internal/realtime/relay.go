package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cribnosh/cribnosh-backend/internal/changes"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/rabbitmq"
)

type fanoutSubscriber interface {
	Run(ctx context.Context, handler rabbitmq.Handler) error
}

type publisher interface {
	Publish(ctx context.Context, change changes.ChangeDTO) error
}

// Relay feeds changes from the fanout exchange into the local hub. Every API
// instance runs one, so each sees every change.
type Relay struct {
	subscriber fanoutSubscriber
	hub        publisher
	logg       *logger.Logger
}

func NewRelay(subscriber fanoutSubscriber, hub publisher, logg *logger.Logger) (*Relay, error) {
	if subscriber == nil {
		return nil, fmt.Errorf("fanout subscriber required")
	}
	if hub == nil {
		return nil, fmt.Errorf("hub required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Relay{subscriber: subscriber, hub: hub, logg: logg}, nil
}

func (r *Relay) Run(ctx context.Context) error {
	return r.subscriber.Run(ctx, r.handle)
}

func (r *Relay) handle(ctx context.Context, body []byte) error {
	var change changes.ChangeDTO
	if err := json.Unmarshal(body, &change); err != nil {
		return fmt.Errorf("decode change: %w", err)
	}
	if !change.Type.IsValid() {
		return fmt.Errorf("unknown change type %q", change.Type)
	}
	return r.hub.Publish(ctx, change)
}
