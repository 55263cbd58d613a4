package repository

import (
	"context"
	"errors"
	"fmt"

	"ironflex/backend/internal/models"
	"ironflex/backend/internal/reaction"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var targetTables = map[reaction.TargetType]string{
	reaction.TargetTopic:    "topics",
	reaction.TargetPost:     "posts",
	reaction.TargetArticle:  "articles",
	reaction.TargetTraining: "trainings",
	reaction.TargetComment:  "comments",
}

func tableFor(t reaction.TargetType) (string, error) {
	table, ok := targetTables[t]
	if !ok {
		return "", reaction.ErrInvalidTarget
	}
	return table, nil
}

func column(f reaction.CounterField) (string, error) {
	switch f {
	case reaction.FieldLikes, reaction.FieldDislikes:
		return string(f), nil
	}
	return "", fmt.Errorf("unknown counter field %q", f)
}

// GormReactionStore implements reaction.Store on postgres
type GormReactionStore struct {
	db   *gorm.DB
	inTx bool
}

// NewGormReactionStore creates a gorm-backed vote store
func NewGormReactionStore(db *gorm.DB) *GormReactionStore {
	return &GormReactionStore{db: db}
}

// TargetExists implements reaction.Store. Inside a transaction the target
// row is locked, serializing concurrent toggles on the same target.
func (r *GormReactionStore) TargetExists(ctx context.Context, t reaction.TargetType, id string) (bool, error) {
	table, err := tableFor(t)
	if err != nil {
		return false, err
	}

	q := r.db.WithContext(ctx).Table(table).Select("id").Where("id = ?", id)
	if r.inTx {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var row struct{ ID string }
	err = q.Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

// GetVote implements reaction.Store
func (r *GormReactionStore) GetVote(ctx context.Context, t reaction.TargetType, id, userID string) (reaction.VoteState, error) {
	var vote models.Vote
	err := r.db.WithContext(ctx).
		Where("target_type = ? AND target_id = ? AND user_id = ?", t, id, userID).
		Take(&vote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return reaction.StateNone, nil
	}
	if err != nil {
		return reaction.StateNone, err
	}
	return reaction.VoteState(vote.Type), nil
}

// PutVote implements reaction.Store
func (r *GormReactionStore) PutVote(ctx context.Context, t reaction.TargetType, id, userID string, state reaction.VoteState) error {
	vote := models.Vote{
		TargetType: string(t),
		TargetID:   id,
		UserID:     userID,
		Type:       string(state),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "target_type"}, {Name: "target_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"type", "updated_at"}),
	}).Create(&vote).Error
}

// DeleteVote implements reaction.Store
func (r *GormReactionStore) DeleteVote(ctx context.Context, t reaction.TargetType, id, userID string) error {
	return r.db.WithContext(ctx).
		Where("target_type = ? AND target_id = ? AND user_id = ?", t, id, userID).
		Delete(&models.Vote{}).Error
}

// ApplyCounterDelta implements reaction.Store
func (r *GormReactionStore) ApplyCounterDelta(ctx context.Context, t reaction.TargetType, id string, field reaction.CounterField, delta int64) error {
	table, err := tableFor(t)
	if err != nil {
		return err
	}
	col, err := column(field)
	if err != nil {
		return err
	}

	res := r.db.WithContext(ctx).Table(table).Where("id = ?", id).
		UpdateColumn(col, gorm.Expr("GREATEST(0, "+col+" + ?)", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return reaction.ErrTargetNotFound
	}
	return nil
}

// Counters implements reaction.Store
func (r *GormReactionStore) Counters(ctx context.Context, t reaction.TargetType, id string) (reaction.Counts, error) {
	table, err := tableFor(t)
	if err != nil {
		return reaction.Counts{}, err
	}

	var c reaction.Counts
	err = r.db.WithContext(ctx).Table(table).Select("likes", "dislikes").Where("id = ?", id).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return reaction.Counts{}, reaction.ErrTargetNotFound
	}
	return c, err
}

// CountVotes implements reaction.Store
func (r *GormReactionStore) CountVotes(ctx context.Context, t reaction.TargetType, id string) (reaction.Counts, error) {
	var rows []struct {
		Type string
		N    int64
	}
	err := r.db.WithContext(ctx).Model(&models.Vote{}).
		Select("type, COUNT(*) AS n").
		Where("target_type = ? AND target_id = ?", t, id).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return reaction.Counts{}, err
	}

	var c reaction.Counts
	for _, row := range rows {
		switch reaction.VoteState(row.Type) {
		case reaction.StateLiked:
			c.Likes = row.N
		case reaction.StateDisliked:
			c.Dislikes = row.N
		}
	}
	return c, nil
}

// SetCounters implements reaction.Store
func (r *GormReactionStore) SetCounters(ctx context.Context, t reaction.TargetType, id string, c reaction.Counts) error {
	table, err := tableFor(t)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Table(table).Where("id = ?", id).
		UpdateColumns(map[string]any{"likes": c.Likes, "dislikes": c.Dislikes}).Error
}

// WithinTx implements reaction.Store
func (r *GormReactionStore) WithinTx(ctx context.Context, fn func(reaction.Store) error) error {
	if r.inTx {
		return fn(r)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormReactionStore{db: tx, inTx: true})
	})
}
