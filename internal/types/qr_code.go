package types

import (
	"time"
)

type QRStatus string

const (
	QRStatusPending QRStatus = "PENDING"
	QRStatusReady   QRStatus = "READY"
	QRStatusFailed  QRStatus = "FAILED"
)

// QRCode is created before its owning Session and updated asynchronously
// by the QR issuance job. It is not cascade-deleted with the session so
// redirect history survives.
type QRCode struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	Slug         string    `gorm:"size:32;not null;uniqueIndex" json:"slug"`
	QRImagePath  string    `gorm:"size:512" json:"qr_image_path"`
	QRImageURL   string    `gorm:"size:1024" json:"qr_image_url"`
	TargetURL    *string   `gorm:"size:1024" json:"target_url,omitempty"`
	Status       QRStatus  `gorm:"size:16;not null;default:'PENDING';index" json:"status"`
	ErrorMessage string    `gorm:"size:512" json:"error_message"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

func (QRCode) TableName() string { return "qr_code" }
