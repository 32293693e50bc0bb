package models

import "time"

// Follow is a directed subscription edge from a follower to an author.
// The composite unique index keeps at most one row per (user, author)
// pair; inserts go through ON CONFLICT DO NOTHING so concurrent
// double-clicks cannot produce duplicates. Self-follows are rejected at
// the handler level, not by a storage constraint.
type Follow struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_follows_user_author" json:"user_id"`
	AuthorID  uint      `gorm:"not null;uniqueIndex:idx_follows_user_author" json:"author_id"`
	User      User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Author    User      `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (Follow) TableName() string {
	return "follows"
}
