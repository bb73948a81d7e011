package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	"github.com/cribnosh/cribnosh-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository is the notifications store. Every user-facing query is scoped to
// the owning user.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, notifications ...*models.Notification) error
	List(ctx context.Context, params listNotificationsParams) ([]models.Notification, *pagination.Cursor, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
	DeleteExpired(ctx context.Context, readBefore, unreadBefore time.Time) (int64, error)
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	InsertOrderNotification(ctx context.Context, record *models.OrderNotification) error
	InsertOrderHistory(ctx context.Context, entry *models.OrderHistory) error
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

type listNotificationsParams struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     *pagination.Cursor
	UnreadOnly bool
}

type notificationMarkResult struct {
	Updated bool
	Found   bool
}

func (r *gormRepository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &gormRepository{db: tx}
}

func (r *gormRepository) owned(ctx context.Context, userID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
}

func (r *gormRepository) Create(ctx context.Context, notifications ...*models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(notifications).Error
}

// List pages newest first by (created_at, id). The returned cursor is the
// last row of the page, or nil on the final page.
func (r *gormRepository) List(ctx context.Context, params listNotificationsParams) ([]models.Notification, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	q := r.owned(ctx, params.UserID)
	if params.UnreadOnly {
		q = q.Where("read_at IS NULL")
	}
	if c := params.Cursor; c != nil {
		q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))", c.CreatedAt, c.CreatedAt, c.ID)
	}

	var rows []models.Notification
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	if len(rows) <= limit {
		return rows, nil, nil
	}
	rows = rows[:limit]
	last := rows[limit-1]
	return rows, &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
}

func (r *gormRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := r.owned(ctx, userID).Where("read_at IS NULL").Count(&n).Error
	return n, err
}

// MarkRead sets read_at once. Marking an already-read notification reports
// Found without Updated; another user's notification is not Found.
func (r *gormRepository) MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error) {
	var row models.Notification
	err := r.owned(ctx, userID).Select("id", "read_at").Where("id = ?", notificationID).Take(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return notificationMarkResult{}, nil
	case err != nil:
		return notificationMarkResult{}, err
	case row.ReadAt != nil:
		return notificationMarkResult{Found: true}, nil
	}

	res := r.owned(ctx, userID).Where("id = ? AND read_at IS NULL", notificationID).UpdateColumn("read_at", now)
	if res.Error != nil {
		return notificationMarkResult{}, res.Error
	}
	return notificationMarkResult{Found: true, Updated: res.RowsAffected > 0}, nil
}

func (r *gormRepository) MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	res := r.owned(ctx, userID).Where("read_at IS NULL").UpdateColumn("read_at", now)
	return res.RowsAffected, res.Error
}

// DeleteExpired drops read rows created before readBefore and unread rows
// created before unreadBefore.
func (r *gormRepository) DeleteExpired(ctx context.Context, readBefore, unreadBefore time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("(read_at IS NOT NULL AND created_at < ?) OR (read_at IS NULL AND created_at < ?)", readBefore, unreadBefore).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}

func (r *gormRepository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Take(&order, "id = ?", orderID).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *gormRepository) InsertOrderNotification(ctx context.Context, record *models.OrderNotification) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *gormRepository) InsertOrderHistory(ctx context.Context, entry *models.OrderHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}
