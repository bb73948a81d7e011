package adminlogs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/auth"
	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/pagination"
	"github.com/cribnosh/cribnosh-backend/pkg/types"
	"github.com/google/uuid"
)

// Entry is one operator action. UserID is the user the action concerns.
type Entry struct {
	AdminID uuid.UUID
	UserID  uuid.UUID
	Action  string
	Details map[string]any
}

type ListInput struct {
	Actor   auth.Actor
	AdminID *uuid.UUID
	Action  string
	Cursor  string
	Limit   int
}

type LogDTO struct {
	ID        uuid.UUID     `json:"id"`
	Action    string        `json:"action"`
	Details   types.JSONMap `json:"details,omitempty"`
	UserID    uuid.UUID     `json:"user_id"`
	AdminID   *uuid.UUID    `json:"admin_id,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

type LogList struct {
	Logs       []LogDTO `json:"logs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type store interface {
	Insert(ctx context.Context, entry *models.AdminLog) error
	List(ctx context.Context, q ListQuery) ([]models.AdminLog, error)
}

type Service struct {
	repo store
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("admin log repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{repo: repo, logg: logg, now: time.Now}, nil
}

// Record appends an entry. Failures are logged and never returned so a completed
// mutation is not reported as failed.
func (s *Service) Record(ctx context.Context, entry Entry) {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		s.logg.Warn(ctx, "admin log entry without action dropped")
		return
	}
	row := &models.AdminLog{
		Action:    action,
		Details:   types.JSONMap(entry.Details).Clone(),
		UserID:    entry.UserID,
		CreatedAt: s.now().UTC(),
	}
	if entry.AdminID != uuid.Nil {
		id := entry.AdminID
		row.AdminID = &id
	}
	if err := s.repo.Insert(ctx, row); err != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"action": action, "admin_id": entry.AdminID.String()})
		s.logg.Error(logCtx, "failed to record admin log", err)
	}
}

func (s *Service) List(ctx context.Context, input ListInput) (*LogList, error) {
	if !input.Actor.IsOperator() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin logs require admin or staff")
	}
	cursor, err := pagination.ParseCursor(input.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(input.Limit)
	q := ListQuery{AdminID: input.AdminID, Cursor: cursor, Limit: pagination.LimitWithBuffer(limit)}
	if action := strings.TrimSpace(input.Action); action != "" {
		q.Action = &action
	}
	rows, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list admin logs")
	}

	out := &LogList{Logs: []LogDTO{}}
	rows, more := pagination.Trim(rows, limit)
	if more {
		last := rows[len(rows)-1]
		out.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	for _, row := range rows {
		out.Logs = append(out.Logs, LogDTO{
			ID:        row.ID,
			Action:    row.Action,
			Details:   row.Details,
			UserID:    row.UserID,
			AdminID:   row.AdminID,
			CreatedAt: row.CreatedAt,
		})
	}
	return out, nil
}
