package models

import (
	"encoding/json"
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/google/uuid"
)

// OutboxEvent is a domain event written in the same transaction as the state
// change it describes. Rows are published in created_at order per aggregate.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:text;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:text;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
	PublishedAt   *time.Time                `gorm:"column:published_at"`
	AttemptCount  int                       `gorm:"column:attempt_count;not null;default:0"`
	LastError     *string                   `gorm:"column:last_error"`
}

// OrderingKey keeps every event of one aggregate on a single ordered stream.
func (e OutboxEvent) OrderingKey() string {
	return string(e.AggregateType) + ":" + e.AggregateID.String()
}

// FinalAttempt reports whether the next failure exhausts the retry budget.
func (e OutboxEvent) FinalAttempt(maxAttempts int) bool {
	return maxAttempts > 0 && e.AttemptCount+1 >= maxAttempts
}

// DeadLetter copies the event into a DLQ row.
func (e OutboxEvent) DeadLetter(reason enums.OutboxDLQErrorReason, cause string, at time.Time) OutboxDLQ {
	row := OutboxDLQ{
		EventID:       e.ID,
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		Payload:       e.Payload,
		ErrorReason:   reason,
		AttemptCount:  e.AttemptCount,
		FailedAt:      at,
	}
	if cause != "" {
		row.ErrorMessage = &cause
	}
	return row
}

// OutboxDLQ holds events the publisher gave up on.
type OutboxDLQ struct {
	ID            uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID       uuid.UUID                  `gorm:"column:event_id;type:uuid;not null"`
	EventType     enums.OutboxEventType      `gorm:"column:event_type;type:text;not null"`
	AggregateType enums.OutboxAggregateType  `gorm:"column:aggregate_type;type:text;not null"`
	AggregateID   uuid.UUID                  `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload       json.RawMessage            `gorm:"column:payload_json;type:jsonb;not null"`
	ErrorReason   enums.OutboxDLQErrorReason `gorm:"column:error_reason;type:text;not null"`
	ErrorMessage  *string                    `gorm:"column:error_message"`
	AttemptCount  int                        `gorm:"column:attempt_count;not null;default:0"`
	FailedAt      time.Time                  `gorm:"column:failed_at;autoCreateTime"`
	CreatedAt     time.Time                  `gorm:"column:created_at;autoCreateTime"`
}

func (OutboxDLQ) TableName() string { return "outbox_dlq" }
