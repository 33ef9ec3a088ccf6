package types

import (
	"time"

	"gorm.io/datatypes"
)

type JobRunStatus string

const (
	JobRunStatusQueued    JobRunStatus = "queued"
	JobRunStatusRunning   JobRunStatus = "running"
	JobRunStatusSucceeded JobRunStatus = "succeeded"
	JobRunStatusFailed    JobRunStatus = "failed"
)

// JobRun is one row of the durable work queue. Payload carries the integer
// id of the entity the handler operates on. Delivery is at-least-once:
// handlers must tolerate redelivery of the same run.
type JobRun struct {
	ID          int64          `gorm:"primaryKey" json:"id"`
	JobType     string         `gorm:"size:64;not null;index" json:"job_type"`
	Payload     datatypes.JSON `gorm:"type:jsonb;not null" json:"payload"`
	Status      JobRunStatus   `gorm:"size:16;not null;default:'queued';index" json:"status"`
	Attempts    int            `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts int            `gorm:"not null;default:1" json:"max_attempts"`
	LastError   string         `gorm:"size:1024" json:"last_error,omitempty"`
	LastErrorAt *time.Time     `json:"last_error_at,omitempty"`
	LockedAt    *time.Time     `json:"locked_at,omitempty"`
	HeartbeatAt *time.Time     `json:"heartbeat_at,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (JobRun) TableName() string { return "job_run" }
