// Package changes keeps the client-facing change feed: admin broadcasts and
// domain events projected into the changes table and fanned out to live sockets.
package changes

import (
	"context"
	"fmt"
	"time"

	"github.com/cribnosh/cribnosh-backend/internal/adminlogs"
	"github.com/cribnosh/cribnosh-backend/pkg/auth"
	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	dbtypes "github.com/cribnosh/cribnosh-backend/pkg/db/types"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox/payloads"
	"github.com/cribnosh/cribnosh-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// visibilityLag holds back freshly inserted rows so a concurrent insert
	// holding a lower seq can commit before the cursor passes it.
	visibilityLag = 2 * time.Second

	defaultSinceLimit = 100
	maxSinceLimit     = 500
	maxSyncBatch      = 500
)

// ChangeDTO is the wire form of a feed row, both over HTTP and on the fanout exchange.
type ChangeDTO struct {
	ID         uuid.UUID        `json:"id"`
	Seq        int64            `json:"seq"`
	Type       enums.ChangeType `json:"type"`
	Data       types.JSONMap    `json:"data"`
	Audience   []uuid.UUID      `json:"audience"`
	OccurredAt time.Time        `json:"occurred_at"`
	CreatedAt  time.Time        `json:"created_at"`
}

type BroadcastInput struct {
	Actor auth.Actor
	Type  string
	Data  map[string]any
}

// ListSinceInput pages the feed by Cursor, the seq of the last row seen.
// After only applies to the first poll, when Cursor is zero.
type ListSinceInput struct {
	Actor  auth.Actor
	Cursor int64
	After  time.Time
	Limit  int
}

type ChangeList struct {
	Changes []ChangeDTO `json:"changes"`
	// NextCursor is the seq to pass back as cursor. It stays put on an empty page.
	NextCursor int64 `json:"next_cursor"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type adminRecorder interface {
	Record(ctx context.Context, entry adminlogs.Entry)
}

type ServiceParams struct {
	Repo      *Repository
	Tx        txRunner
	Outbox    outboxPublisher
	AdminLogs adminRecorder
	Logger    *logger.Logger
	Now       func() time.Time
}

type Service struct {
	repo      *Repository
	tx        txRunner
	outbox    outboxPublisher
	adminLogs adminRecorder
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("changes repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.AdminLogs == nil {
		return nil, fmt.Errorf("admin log recorder required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Service{
		repo:      params.Repo,
		tx:        params.Tx,
		outbox:    params.Outbox,
		adminLogs: params.AdminLogs,
		logg:      params.Logger,
		now:       params.Now,
	}, nil
}

// Broadcast stores an operator-authored change addressed to everyone and emits
// change.broadcast so the feed consumer fans it out.
func (s *Service) Broadcast(ctx context.Context, input BroadcastInput) (*ChangeDTO, error) {
	if !input.Actor.IsOperator() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "broadcasts require admin or staff")
	}
	changeType, err := enums.ParseChangeType(input.Type)
	if err != nil || !changeType.IsBroadcastable() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "type must be announcement, maintenance or configuration").
			WithDetails(map[string]any{"type": input.Type})
	}
	if len(input.Data) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "data is required")
	}

	now := s.now().UTC()
	change := &models.Change{
		Type:       changeType,
		Data:       types.JSONMap(input.Data).Clone(),
		Audience:   dbtypes.UUIDArray{},
		OccurredAt: now,
		CreatedAt:  now,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Insert(ctx, change); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store broadcast")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventChangeBroadcast,
			AggregateType: enums.AggregateChange,
			AggregateID:   change.ID,
			Actor:         &outbox.ActorRef{UserID: input.Actor.UserID, Role: string(input.Actor.PrimaryRole())},
			Data: payloads.ChangeBroadcastEvent{
				ChangeID:   change.ID,
				ChangeType: change.Type,
				AdminID:    input.Actor.UserID,
				Data:       change.Data,
			},
		})
	})
	if err != nil {
		return nil, asDependency(err, "broadcast change")
	}

	s.adminLogs.Record(ctx, adminlogs.Entry{
		AdminID: input.Actor.UserID,
		UserID:  input.Actor.UserID,
		Action:  "change_broadcast",
		Details: map[string]any{"change_id": change.ID.String(), "type": string(change.Type)},
	})
	dto := toDTO(*change)
	return &dto, nil
}

// ListSince returns the actor's feed after a cursor, oldest first. Operators
// see every row.
func (s *Service) ListSince(ctx context.Context, input ListSinceInput) (*ChangeList, error) {
	if input.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultSinceLimit
	}
	if limit > maxSinceLimit {
		limit = maxSinceLimit
	}
	if input.Cursor < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cursor must not be negative")
	}
	q := SinceQuery{
		AfterSeq:       input.Cursor,
		InsertedBefore: s.now().UTC().Add(-visibilityLag),
		Limit:          limit,
	}
	if input.Cursor == 0 {
		q.OccurredAfter = input.After.UTC()
	}
	if !input.Actor.IsOperator() {
		id := input.Actor.UserID
		q.UserID = &id
	}
	rows, err := s.repo.ListSince(ctx, q)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list changes")
	}
	out := &ChangeList{Changes: make([]ChangeDTO, 0, len(rows)), NextCursor: input.Cursor}
	for _, row := range rows {
		out.Changes = append(out.Changes, toDTO(row))
	}
	if len(rows) > 0 {
		out.NextCursor = rows[len(rows)-1].Seq
	}
	return out, nil
}

// MarkSynced flags rows as delivered to live clients.
func (s *Service) MarkSynced(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) > maxSyncBatch {
		return 0, pkgerrors.Newf(pkgerrors.CodeValidation, "at most %d ids per call", maxSyncBatch)
	}
	n, err := s.repo.MarkSynced(ctx, ids)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark changes synced")
	}
	return n, nil
}

func toDTO(row models.Change) ChangeDTO {
	audience := []uuid.UUID(row.Audience)
	if audience == nil {
		audience = []uuid.UUID{}
	}
	return ChangeDTO{
		ID:         row.ID,
		Seq:        row.Seq,
		Type:       row.Type,
		Data:       row.Data.Clone(),
		Audience:   audience,
		OccurredAt: row.OccurredAt,
		CreatedAt:  row.CreatedAt,
	}
}

func asDependency(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
