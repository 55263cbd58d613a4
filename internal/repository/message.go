package repository

import (
	"context"
	"time"

	"ironflex/backend/internal/models"

	"gorm.io/gorm"
)

// GormMessageRepository persists conversation messages
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a message repository
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// List returns up to limit messages older than before, newest first
func (r *GormMessageRepository) List(ctx context.Context, before *time.Time, limit int) ([]models.FeedMessage, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Limit(limit)
	if before != nil {
		q = q.Where("created_at < ?", *before)
	}

	var messages []models.FeedMessage
	err := q.Find(&messages).Error
	return messages, err
}

// Create stores a new message
func (r *GormMessageRepository) Create(ctx context.Context, m *models.FeedMessage) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// Delete hard-deletes a message, reporting whether it existed
func (r *GormMessageRepository) Delete(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.FeedMessage{})
	return res.RowsAffected > 0, res.Error
}

// RecentAuthors returns the author ids of the latest n messages, newest first
func (r *GormMessageRepository) RecentAuthors(ctx context.Context, n int) ([]string, error) {
	var authors []string
	err := r.db.WithContext(ctx).Model(&models.FeedMessage{}).
		Order("created_at DESC").
		Limit(n).
		Pluck("author_id", &authors).Error
	return authors, err
}
