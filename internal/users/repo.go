package users

import (
	"context"

	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository exposes user-related persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new user and returns the persisted model.
func (r *Repository) Create(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	user := dto.ToModel()
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByIDs loads every user in ids. Missing ids are silently absent from the result.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	var out []models.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// HasRole reports whether the active user id holds any of roles.
func (r *Repository) HasRole(ctx context.Context, id uuid.UUID, roles ...enums.UserRole) (bool, error) {
	user, err := r.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	if !user.IsActive() {
		return false, nil
	}
	for _, role := range roles {
		if user.HasRole(role) {
			return true, nil
		}
	}
	return false, nil
}

// MissingIDs returns the ids in want that do not resolve to an active user.
func (r *Repository) MissingIDs(ctx context.Context, want []uuid.UUID) ([]uuid.UUID, error) {
	found, err := r.FindByIDs(ctx, want)
	if err != nil {
		return nil, err
	}
	active := make(map[uuid.UUID]struct{}, len(found))
	for _, u := range found {
		if u.IsActive() {
			active[u.ID] = struct{}{}
		}
	}
	missing := []uuid.UUID{}
	for _, id := range want {
		if _, ok := active[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// UpdateStatus moves the account through its soft lifecycle.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.UserStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("status", status).Error
}
