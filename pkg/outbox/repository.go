package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/cribnosh/cribnosh-backend/pkg/db"
	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
)

const maxLastErrorBytes = 1024

var errTxRequired = errors.New("outbox: transaction required")

// Repository reads and settles outbox_events rows. Writes that belong to a
// publish claim take the claim's transaction explicitly.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Backlog summarizes rows still waiting to be published.
type Backlog struct {
	Pending int64
	Oldest  *time.Time
}

// unpublished scopes to rows the publisher may still pick up.
func unpublished(q *gorm.DB, maxAttempts int) *gorm.DB {
	q = q.Where("published_at IS NULL")
	if maxAttempts > 0 {
		q = q.Where("attempt_count < ?", maxAttempts)
	}
	return q
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errTxRequired
	}
	return tx.Create(&event).Error
}

// FetchUnpublishedForPublish claims up to limit rows oldest first. On postgres
// the rows are locked with SKIP LOCKED so concurrent publishers split the work.
func (r *Repository) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errTxRequired
	}
	q := unpublished(tx.Model(&models.OutboxEvent{}), maxAttempts).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit)

	var rows []models.OutboxEvent
	if err := dbpkg.ForUpdateSkipLocked(q).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	return r.settle(tx, id, map[string]any{"published_at": r.now().UTC()})
}

// MarkFailedTx counts one more attempt and keeps the row publishable.
func (r *Repository) MarkFailedTx(tx *gorm.DB, id uuid.UUID, cause error) error {
	return r.settle(tx, id, map[string]any{
		"attempt_count": gorm.Expr("attempt_count + 1"),
		"last_error":    errorText(cause),
	})
}

// MarkTerminalTx parks the row at terminalAttempts so it is never fetched again.
func (r *Repository) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, cause error, terminalAttempts int) error {
	updates := map[string]any{"attempt_count": terminalAttempts}
	if cause != nil {
		updates["last_error"] = errorText(cause)
	}
	return r.settle(tx, id, updates)
}

func (r *Repository) settle(tx *gorm.DB, id uuid.UUID, updates map[string]any) error {
	if tx == nil {
		return errTxRequired
	}
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(updates).Error
}

// Backlog counts publishable rows and finds the oldest one.
func (r *Repository) Backlog(ctx context.Context, maxAttempts int) (Backlog, error) {
	var out Backlog
	base := func() *gorm.DB {
		return unpublished(r.db.WithContext(ctx).Model(&models.OutboxEvent{}), maxAttempts)
	}
	if err := base().Count(&out.Pending).Error; err != nil {
		return Backlog{}, err
	}
	if out.Pending == 0 {
		return out, nil
	}

	var oldest models.OutboxEvent
	if err := base().Select("created_at").Order("created_at ASC").Limit(1).Take(&oldest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return out, nil
		}
		return Backlog{}, err
	}
	out.Oldest = &oldest.CreatedAt
	return out, nil
}

// DeletePublishedBefore removes published rows older than cutoff and reports how many went.
func (r *Repository) DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("published_at IS NOT NULL AND published_at < ?", cutoff).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return clipMessage(err.Error(), maxLastErrorBytes)
}
