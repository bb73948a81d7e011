package orders

import (
	"context"
	"time"

	pkgdb "github.com/cribnosh/cribnosh-backend/pkg/db"
	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/cribnosh/cribnosh-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// FindForUpdate loads the order and holds its row lock until the transaction ends.
func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := pkgdb.ForUpdate(r.db.WithContext(ctx)).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// ListQuery scopes an order listing. Nil ids mean no filter on that column.
type ListQuery struct {
	CustomerID *uuid.UUID
	ChefID     *uuid.UUID
	Status     *enums.OrderStatus
	Cursor     *pagination.Cursor
	Limit      int
}

func (r *repository) List(ctx context.Context, q ListQuery) ([]models.Order, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{})
	if q.CustomerID != nil {
		query = query.Where("customer_id = ?", *q.CustomerID)
	}
	if q.ChefID != nil {
		query = query.Where("chef_id = ?", *q.ChefID)
	}
	if q.Status != nil {
		query = query.Where("order_status = ?", *q.Status)
	}
	if q.Cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", q.Cursor.CreatedAt, q.Cursor.CreatedAt, q.Cursor.ID)
	}

	var rows []models.Order
	if err := query.Order("created_at DESC").Order("id DESC").Limit(q.Limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Save writes every column of order.
func (r *repository) Save(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Save(order).Error
}

func (r *repository) InsertHistory(ctx context.Context, entry *models.OrderHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderHistory, error) {
	var rows []models.OrderHistory
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("performed_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) InsertNote(ctx context.Context, note *models.OrderNote) error {
	return r.db.WithContext(ctx).Create(note).Error
}

func (r *repository) ListNotes(ctx context.Context, orderID uuid.UUID, includeInternal bool) ([]models.OrderNote, error) {
	query := r.db.WithContext(ctx).Where("order_id = ?", orderID)
	if !includeInternal {
		query = query.Where("note_type <> ?", enums.OrderNoteInternal)
	}
	var rows []models.OrderNote
	if err := query.Order("added_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// FindRefundWindowExpired returns delivered, still-refundable orders whose window closed before now.
func (r *repository) FindRefundWindowExpired(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("order_status = ?", enums.OrderStatusDelivered).
		Where("is_refundable = ?", true).
		Where("refund_eligible_until IS NOT NULL AND refund_eligible_until < ?", now).
		Order("refund_eligible_until ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
