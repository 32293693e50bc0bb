package models

// Group is a named section posts can be published under.
type Group struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Slug        string `gorm:"uniqueIndex;not null" json:"slug"`
	Title       string `gorm:"unique;not null" json:"title"`
	Description string `json:"description"`
}
