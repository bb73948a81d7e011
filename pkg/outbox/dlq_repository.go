package outbox

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	"gorm.io/gorm"
)

const maxDLQMessageBytes = 1024

// DLQRepository stores outbox events the publisher gave up on.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx records a dead letter inside the publisher's claim transaction.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("dlq insert requires a transaction")
	}
	if entry.ErrorMessage != nil {
		msg := clipMessage(*entry.ErrorMessage, maxDLQMessageBytes)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// DeleteFailedBefore purges dead letters older than cutoff.
func (r *DLQRepository) DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("failed_at < ?", cutoff).Delete(&models.OutboxDLQ{})
	return res.RowsAffected, res.Error
}

// clipMessage cuts s to at most max bytes without splitting a rune.
func clipMessage(s string, max int) string {
	if len(s) <= max {
		return s
	}
	s = s[:max]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
