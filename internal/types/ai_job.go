package types

import (
	"time"

	"gorm.io/datatypes"
)

type AIJobStatus string

const (
	AIJobStatusPending   AIJobStatus = "PENDING"
	AIJobStatusRunning   AIJobStatus = "RUNNING"
	AIJobStatusSucceeded AIJobStatus = "SUCCEEDED"
	AIJobStatusFailed    AIJobStatus = "FAILED"
)

// IsTerminal reports whether no further status transition is permitted.
func (s AIJobStatus) IsTerminal() bool {
	return s == AIJobStatusSucceeded || s == AIJobStatusFailed
}

// AIJob is one attempt to transform an original photo via the external
// generative model. RequestPayload is immutable after creation; the
// terminal status is set exactly once per run.
type AIJob struct {
	ID              int64          `gorm:"primaryKey" json:"id"`
	SessionID       int64          `gorm:"not null;index" json:"session_id"`
	Session         *Session       `gorm:"constraint:OnDelete:CASCADE;foreignKey:SessionID;references:ID" json:"session,omitempty"`
	RequestID       *string        `gorm:"size:100;uniqueIndex" json:"request_id,omitempty"`
	Status          AIJobStatus    `gorm:"size:32;not null;default:'PENDING';index" json:"status"`
	RequestPayload  datatypes.JSON `gorm:"type:jsonb;not null" json:"request_payload"`
	ResponsePayload datatypes.JSON `gorm:"type:jsonb" json:"response_payload,omitempty"`
	AIImageID       *int64         `gorm:"uniqueIndex" json:"ai_image_id,omitempty"`
	AIImage         *ImageAsset    `gorm:"foreignKey:AIImageID;references:ID" json:"ai_image,omitempty"`
	CreatedAt       time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updated_at"`
}

func (AIJob) TableName() string { return "ai_job" }
