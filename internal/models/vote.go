package models

import "time"

// Vote is one user's current reaction to one target. A single table serves
// all five target kinds; (target_type, target_id, user_id) is unique.
type Vote struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	TargetType string    `json:"target_type" gorm:"type:varchar(16);not null;uniqueIndex:idx_vote_target_user,priority:1"`
	TargetID   string    `json:"target_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_vote_target_user,priority:2"`
	UserID     string    `json:"user_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_vote_target_user,priority:3;index"`
	Type       string    `json:"type" gorm:"type:varchar(8);not null"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName overrides the table name
func (Vote) TableName() string {
	return "votes"
}
