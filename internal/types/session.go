package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SessionStatus string

const (
	SessionStatusCreated     SessionStatus = "CREATED"
	SessionStatusUploaded    SessionStatus = "UPLOADED"
	SessionStatusAIRequested SessionStatus = "AI_REQUESTED"
	SessionStatusAIReady     SessionStatus = "AI_READY"
	SessionStatusDecorating  SessionStatus = "DECORATING"
	SessionStatusFinalized   SessionStatus = "FINALIZED"
	SessionStatusFailed      SessionStatus = "FAILED"
)

// Session is one photobooth customer interaction, from style selection to
// the finalized shareable image. Status is a strict state machine owned by
// the workflow service.
type Session struct {
	ID              int64          `gorm:"primaryKey" json:"id"`
	UUID            uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"uuid"`
	StyleID         int64          `gorm:"not null;index" json:"style_id"`
	Style           *Style         `gorm:"foreignKey:StyleID;references:ID" json:"style,omitempty"`
	UserPreferences datatypes.JSON `gorm:"type:jsonb" json:"user_preferences,omitempty"`
	Status          SessionStatus  `gorm:"size:32;not null;default:'CREATED';index" json:"status"`
	QRCodeID        *int64         `gorm:"uniqueIndex" json:"qr_code_id,omitempty"`
	QRCode          *QRCode        `gorm:"foreignKey:QRCodeID;references:ID" json:"qr_code,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;index" json:"updated_at"`
}

func (Session) TableName() string { return "session" }

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.UUID == uuid.Nil {
		s.UUID = uuid.New()
	}
	return nil
}
