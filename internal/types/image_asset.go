package types

import (
	"time"
)

type ImageKind string

const (
	ImageKindOriginal ImageKind = "ORIGINAL"
	ImageKindAI       ImageKind = "AI"
	ImageKindFinal    ImageKind = "FINAL"
)

// ImageAsset records one stored image belonging to a session. ORIGINAL and
// AI kinds are append-only history; at most one FINAL asset may exist per
// session (partial unique index).
type ImageAsset struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	SessionID   int64     `gorm:"not null;index;uniqueIndex:uniq_final_per_session,where:kind = 'FINAL'" json:"session_id"`
	Session     *Session  `gorm:"constraint:OnDelete:CASCADE;foreignKey:SessionID;references:ID" json:"session,omitempty"`
	Kind        ImageKind `gorm:"size:16;not null;index" json:"kind"`
	StoragePath string    `gorm:"size:512;not null" json:"storage_path"`
	PublicURL   string    `gorm:"size:1024;index" json:"public_url"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	Mime        string    `gorm:"size:64" json:"mime,omitempty"`
	SizeBytes   int64     `json:"size_bytes,omitempty"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

func (ImageAsset) TableName() string { return "image_asset" }
