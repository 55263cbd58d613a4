package repository

import (
	"context"
	"errors"

	"ironflex/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormModerationRepository stores chat bans and the word blacklist
type GormModerationRepository struct {
	db *gorm.DB
}

// NewGormModerationRepository creates a moderation repository
func NewGormModerationRepository(db *gorm.DB) *GormModerationRepository {
	return &GormModerationRepository{db: db}
}

// ActiveBans returns the user's bans still flagged active
func (r *GormModerationRepository) ActiveBans(ctx context.Context, userID string) ([]models.ChatBan, error) {
	var bans []models.ChatBan
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("created_at DESC").
		Find(&bans).Error
	return bans, err
}

// DeactivateBan clears the active flag on a ban
func (r *GormModerationRepository) DeactivateBan(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.ChatBan{}).
		Where("id = ?", id).
		Update("is_active", false).Error
}

// BlacklistWords returns every forbidden word
func (r *GormModerationRepository) BlacklistWords(ctx context.Context) ([]string, error) {
	var words []string
	err := r.db.WithContext(ctx).Model(&models.BlacklistWord{}).Pluck("word", &words).Error
	return words, err
}

// ErrDuplicateWord is returned when the word is already blacklisted
var ErrDuplicateWord = errors.New("word already blacklisted")

// ListBans returns bans newest first, only active ones unless all is set
func (r *GormModerationRepository) ListBans(ctx context.Context, all bool) ([]models.ChatBan, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if !all {
		q = q.Where("is_active = ?", true)
	}
	var bans []models.ChatBan
	err := q.Find(&bans).Error
	return bans, err
}

// CreateBan replaces the user's active bans with ban
func (r *GormModerationRepository) CreateBan(ctx context.Context, ban *models.ChatBan) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.ChatBan{}).
			Where("user_id = ? AND is_active = ?", ban.UserID, true).
			Update("is_active", false).Error
		if err != nil {
			return err
		}
		return tx.Create(ban).Error
	})
}

// LiftBan deactivates a ban, reporting whether it existed
func (r *GormModerationRepository) LiftBan(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.ChatBan{}).
		Where("id = ?", id).
		Update("is_active", false)
	return res.RowsAffected > 0, res.Error
}

// ListWords returns the blacklist entries newest first
func (r *GormModerationRepository) ListWords(ctx context.Context) ([]models.BlacklistWord, error) {
	var words []models.BlacklistWord
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&words).Error
	return words, err
}

// AddWord stores w, or returns ErrDuplicateWord
func (r *GormModerationRepository) AddWord(ctx context.Context, w *models.BlacklistWord) error {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "word"}}, DoNothing: true}).
		Create(w)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuplicateWord
	}
	return nil
}

// RemoveWord deletes a blacklist entry, reporting whether it existed
func (r *GormModerationRepository) RemoveWord(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&models.BlacklistWord{}, id)
	return res.RowsAffected > 0, res.Error
}
