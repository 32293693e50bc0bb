package models

import "time"

// Post is a text entry published by a user, optionally filed under a
// group and carrying an image.
//
// CreatedAt is the publication date: set once on create and never
// modified by edits. Listings order by CreatedAt descending with ties
// broken by author ID ascending.
type Post struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Text   string `gorm:"not null" json:"text"`
	UserID uint   `gorm:"not null;index" json:"user_id"`
	User   User   `gorm:"foreignKey:UserID" json:"user"`
	// GroupID is nullable; deleting a group detaches its posts rather
	// than deleting them.
	GroupID *uint  `gorm:"index" json:"group_id,omitempty"`
	Group   *Group `gorm:"foreignKey:GroupID;constraint:OnDelete:SET NULL" json:"group,omitempty"`
	// ImagePath is the stored asset path; only set through a validated
	// upload, never from raw client input.
	ImagePath string `json:"-"`
	// CommentsCount is not persisted; computed at query time.
	CommentsCount int64     `gorm:"-" json:"comments_count"`
	CreatedAt     time.Time `json:"pub_date"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PostOrder is the default listing order for posts everywhere in the app.
const PostOrder = "created_at DESC, user_id ASC"
