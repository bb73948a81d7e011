package orders

import (
	"context"
	"time"

	"github.com/cribnosh/cribnosh-backend/internal/adminlogs"
	"github.com/cribnosh/cribnosh-backend/internal/chat"
	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for orders and their audit tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, query ListQuery) ([]models.Order, error)
	Save(ctx context.Context, order *models.Order) error
	InsertHistory(ctx context.Context, entry *models.OrderHistory) error
	ListHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderHistory, error)
	InsertNote(ctx context.Context, note *models.OrderNote) error
	ListNotes(ctx context.Context, orderID uuid.UUID, includeInternal bool) ([]models.OrderNote, error)
	FindRefundWindowExpired(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// chatPoster writes the status update into the order's chat inside the caller's tx.
type chatPoster interface {
	PostOrderUpdate(ctx context.Context, tx *gorm.DB, update chat.OrderUpdate) (uuid.UUID, error)
}

type adminRecorder interface {
	Record(ctx context.Context, entry adminlogs.Entry)
}

type userLookup interface {
	HasRole(ctx context.Context, id uuid.UUID, roles ...enums.UserRole) (bool, error)
}

type transitionObserver interface {
	ObserveTransition(from, to, result string)
}
