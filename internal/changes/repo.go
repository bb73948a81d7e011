package changes

import (
	"context"
	"time"

	pkgdb "github.com/cribnosh/cribnosh-backend/pkg/db"
	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const sourceEventConstraint = "changes_source_event_key"

// Repository persists the change feed.
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

func (r *Repository) Insert(ctx context.Context, change *models.Change) error {
	return r.db.WithContext(ctx).Create(change).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Change, error) {
	var change models.Change
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&change).Error; err != nil {
		return nil, err
	}
	return &change, nil
}

func (r *Repository) FindBySourceEvent(ctx context.Context, eventID uuid.UUID) (*models.Change, error) {
	var change models.Change
	if err := r.db.WithContext(ctx).Where("source_event_id = ?", eventID).First(&change).Error; err != nil {
		return nil, err
	}
	return &change, nil
}

// SinceQuery selects rows with a sequence above AfterSeq, oldest first.
// OccurredAfter narrows a first poll that has no cursor yet. Rows inserted
// after InsertedBefore are held back until every lower sequence has had time
// to commit. A nil UserID returns every row; otherwise rows addressed to
// everyone or to the user.
type SinceQuery struct {
	UserID         *uuid.UUID
	AfterSeq       int64
	OccurredAfter  time.Time
	InsertedBefore time.Time
	Limit          int
}

func (r *Repository) ListSince(ctx context.Context, q SinceQuery) ([]models.Change, error) {
	query := r.db.WithContext(ctx).Model(&models.Change{}).Where("seq > ?", q.AfterSeq)
	if !q.OccurredAfter.IsZero() {
		query = query.Where("occurred_at > ?", q.OccurredAfter)
	}
	if !q.InsertedBefore.IsZero() {
		query = query.Where("created_at <= ?", q.InsertedBefore)
	}
	if q.UserID != nil {
		query = audienceScope(query, *q.UserID)
	}
	var rows []models.Change
	if err := query.Order("seq ASC").Limit(q.Limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) MarkSynced(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Change{}).
		Where("id IN ? AND synced = ?", ids, false).
		UpdateColumn("synced", true)
	return res.RowsAffected, res.Error
}

// DeleteSyncedBefore removes fanned-out rows older than cutoff.
func (r *Repository) DeleteSyncedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("synced = ? AND created_at < ?", true, cutoff).
		Delete(&models.Change{})
	return res.RowsAffected, res.Error
}

func audienceScope(query *gorm.DB, userID uuid.UUID) *gorm.DB {
	if query.Dialector != nil && query.Dialector.Name() == pkgdb.DriverPostgres {
		return query.Where("(cardinality(audience) = 0 OR ? = ANY(audience))", userID)
	}
	// sqlite keeps the array literal as text
	return query.Where("(audience = '{}' OR audience LIKE ?)", "%"+userID.String()+"%")
}

func isDuplicateSource(err error) bool {
	return pkgdb.IsUniqueViolation(err, sourceEventConstraint) ||
		pkgdb.IsUniqueViolation(err, "changes.source_event_id")
}
