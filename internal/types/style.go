package types

import (
	"time"
)

// Style is a catalog entry. Immutable while a session references it.
type Style struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	Code         string    `gorm:"size:50;not null;uniqueIndex" json:"code"`
	Name         string    `gorm:"size:100;not null" json:"name"`
	Description  string    `gorm:"type:text" json:"description"`
	Prompt       string    `gorm:"type:text" json:"prompt"`
	IsActive     bool      `gorm:"not null;default:true;index" json:"is_active"`
	ThumbnailURL string    `gorm:"size:1024" json:"thumbnail_url"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

func (Style) TableName() string { return "style" }
