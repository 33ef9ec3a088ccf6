package jobs

import (
	"context"
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tigerphoto/photobooth-backend/internal/repos"
	"github.com/tigerphoto/photobooth-backend/internal/types"
)

// Enqueue appends a run to the durable queue. Callers pass the enclosing
// transaction when the enqueue must be atomic with an entity write.
func Enqueue(ctx context.Context, tx *gorm.DB, repo repos.JobRunRepo, jobType string, payload any, maxAttempts int) (*types.JobRun, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	run := &types.JobRun{
		JobType:     jobType,
		Payload:     datatypes.JSON(raw),
		Status:      types.JobRunStatusQueued,
		MaxAttempts: maxAttempts,
	}
	return repo.Create(ctx, tx, run)
}

// QRPayload identifies the QRCode a qr_generate run operates on.
type QRPayload struct {
	QRCodeID int64 `json:"qr_code_id"`
}

// AIPayload identifies the AIJob an ai_transform run operates on.
type AIPayload struct {
	AIJobID int64 `json:"ai_job_id"`
}
