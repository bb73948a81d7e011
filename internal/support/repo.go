package support

import (
	"context"

	pkgdb "github.com/cribnosh/cribnosh-backend/pkg/db"
	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, c *models.SupportCase) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.SupportCase, error) {
	var c models.SupportCase
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.SupportCase, error) {
	var c models.SupportCase
	if err := pkgdb.ForUpdate(r.db.WithContext(ctx)).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateFields writes only the given columns so a concurrent last_message sync is not overwritten.
func (r *Repository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.SupportCase{}).Where("id = ?", id).Updates(fields).Error
}

// ListQuery scopes a case listing. A nil UserID lists every case.
type ListQuery struct {
	UserID *uuid.UUID
	Status *enums.SupportStatus
	Limit  int
	Offset int
}

func (r *Repository) List(ctx context.Context, q ListQuery) ([]models.SupportCase, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.SupportCase{})
	if q.UserID != nil {
		query = query.Where("user_id = ?", *q.UserID)
	}
	if q.Status != nil {
		query = query.Where("status = ?", *q.Status)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.SupportCase
	if err := query.Order("created_at DESC").Order("id DESC").Limit(q.Limit).Offset(q.Offset).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// OrderBelongsTo reports whether orderID was placed by userID.
func (r *Repository) OrderBelongsTo(ctx context.Context, orderID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND customer_id = ?", orderID, userID).
		Count(&count).Error
	return count > 0, err
}
