package models

import (
	"time"

	dbtypes "github.com/cribnosh/cribnosh-backend/pkg/db/types"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/cribnosh/cribnosh-backend/pkg/types"
	"github.com/google/uuid"
)

// Change is a row of the client-facing change feed. An empty Audience means
// everyone. Seq is assigned by the database on insert and is the feed cursor;
// OccurredAt is when the source event happened.
type Change struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Seq           int64             `gorm:"column:seq;autoIncrement"`
	Type          enums.ChangeType  `gorm:"column:change_type;type:text;not null"`
	Data          types.JSONMap     `gorm:"column:data;type:jsonb;serializer:json;not null"`
	Audience      dbtypes.UUIDArray `gorm:"column:audience;type:uuid[];not null;default:'{}'"`
	Synced        bool              `gorm:"column:synced;not null;default:false"`
	SourceEventID *uuid.UUID        `gorm:"column:source_event_id;type:uuid;uniqueIndex"`
	OccurredAt    time.Time         `gorm:"column:occurred_at;not null"`
	CreatedAt     time.Time         `gorm:"column:created_at;not null"`
}
