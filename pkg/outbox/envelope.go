package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CurrentVersion is the newest envelope schema this build reads, and the one
// Emit writes when the event names none.
const CurrentVersion = 1

// ActorRef identifies who produced the event.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope wraps every outbox payload, both in outbox_events.payload
// and on the wire.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

func newEnvelope(version int, occurred time.Time, actor *ActorRef, data any) (PayloadEnvelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return PayloadEnvelope{}, fmt.Errorf("encode event data: %w", err)
	}
	if version <= 0 {
		version = CurrentVersion
	}
	return PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: occurred.UTC(),
		Actor:      actor,
		Data:       raw,
	}, nil
}

// DecodeEnvelope parses a stored or published envelope and returns its event
// id. Envelopes from a newer schema than CurrentVersion are rejected.
func DecodeEnvelope(body []byte) (PayloadEnvelope, uuid.UUID, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return env, uuid.Nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version > CurrentVersion {
		return env, uuid.Nil, fmt.Errorf("envelope version %d is newer than supported %d", env.Version, CurrentVersion)
	}
	id, err := uuid.Parse(env.EventID)
	if err != nil {
		return env, uuid.Nil, fmt.Errorf("invalid event id %q: %w", env.EventID, err)
	}
	if len(env.Data) == 0 {
		return env, id, errors.New("envelope data missing")
	}
	return env, id, nil
}
