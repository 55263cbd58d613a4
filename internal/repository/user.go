package repository

import (
	"context"
	"errors"

	"ironflex/backend/internal/models"

	"gorm.io/gorm"
)

// ErrUserNotFound is returned when no user matches
var ErrUserNotFound = errors.New("user not found")

// GormUserRepository persists accounts
type GormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a user repository
func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// Create stores a new user; the model hook hashes the password
func (r *GormUserRepository) Create(ctx context.Context, u *models.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

// ByEmail looks a user up by email
func (r *GormUserRepository) ByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.first(ctx, "email = ?", email)
}

// ByID looks a user up by id
func (r *GormUserRepository) ByID(ctx context.Context, id string) (*models.User, error) {
	return r.first(ctx, "id = ?", id)
}

// TouchLogin records a successful login
func (r *GormUserRepository) TouchLogin(ctx context.Context, u *models.User) error {
	return r.db.WithContext(ctx).Model(u).UpdateColumn("last_login", u.LastLogin).Error
}

func (r *GormUserRepository) first(ctx context.Context, query string, arg any) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where(query, arg).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
