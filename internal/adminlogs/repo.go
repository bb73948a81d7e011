package adminlogs

import (
	"context"

	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	"github.com/cribnosh/cribnosh-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists append-only operator action records.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, entry *models.AdminLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListQuery filters the log. Nil fields are ignored.
type ListQuery struct {
	AdminID *uuid.UUID
	Action  *string
	Cursor  *pagination.Cursor
	Limit   int
}

func (r *Repository) List(ctx context.Context, q ListQuery) ([]models.AdminLog, error) {
	query := r.db.WithContext(ctx).Model(&models.AdminLog{})
	if q.AdminID != nil {
		query = query.Where("admin_id = ?", *q.AdminID)
	}
	if q.Action != nil {
		query = query.Where("action = ?", *q.Action)
	}
	if q.Cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", q.Cursor.CreatedAt, q.Cursor.CreatedAt, q.Cursor.ID)
	}
	var rows []models.AdminLog
	if err := query.Order("created_at DESC").Order("id DESC").Limit(q.Limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
