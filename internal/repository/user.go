package repository

import (
	"context"
	"errors"
	"log/slog"

	"ridehail/internal/models"
	"ridehail/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository maintains the display directory mirrored from the
// identity service.
type UserRepository interface {
	Upsert(ctx context.Context, users ...models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

type userRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db, log: observability.NewRepoLogger("users")}
}

// Upsert inserts users or refreshes their display fields.
func (r *userRepository) Upsert(ctx context.Context, users ...models.User) error {
	if len(users) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "phone", "avatar_url", "updated_at"}),
	}).Create(&users).Error
	if err != nil {
		return fail(ctx, r.log, "upsert_users", err, slog.Int("count", len(users)))
	}
	r.log.LogCreate(ctx, "upsert_users", slog.Int("count", len(users)))
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("User", id)
	}
	if err != nil {
		return nil, fail(ctx, r.log, "get_user", err, slog.String("user_id", id))
	}
	return &u, nil
}

func (r *userRepository) FindByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	var users []models.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id ASC").Find(&users).Error; err != nil {
		return nil, fail(ctx, r.log, "find_users", err, slog.Int("count", len(ids)))
	}
	return users, nil
}
