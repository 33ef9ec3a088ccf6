package services

import (
	"context"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tigerphoto/photobooth-backend/internal/apperr"
	"github.com/tigerphoto/photobooth-backend/internal/events"
	"github.com/tigerphoto/photobooth-backend/internal/logger"
	"github.com/tigerphoto/photobooth-backend/internal/repos"
	"github.com/tigerphoto/photobooth-backend/internal/sse"
	"github.com/tigerphoto/photobooth-backend/internal/types"
)

const maxRecordedErrorLen = 500

// aiStateRecorder applies terminal transitions to an AIJob and its session.
// Both producers (the transform job's internal completion path and the
// webhook ingestor) go through it, so the guard lives in one place: a job
// that is already terminal rejects any further terminal transition with
// StateConflict instead of double-writing the ai_image reference.
type aiStateRecorder struct {
	db       *gorm.DB
	log      *logger.Logger
	aiJobs   repos.AIJobRepo
	sessions repos.SessionRepo
	assets   repos.ImageAssetRepo
	pub      events.Publisher
}

// completeSuccess links the produced AI asset, marks the job SUCCEEDED and
// the session AI_READY in one transaction, then publishes "completed".
func (r *aiStateRecorder) completeSuccess(ctx context.Context, jobID int64, sessionID int64, sessionUUID string, asset *types.ImageAsset, responsePayload []byte) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := r.aiJobs.GetByIDForUpdate(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if job == nil {
			return apperr.NotFoundf("ai job %d", jobID)
		}
		if job.Status.IsTerminal() {
			return apperr.StateConflictf("ai job %d is already %s", jobID, job.Status)
		}
		created, err := r.assets.Create(ctx, tx, asset)
		if err != nil {
			return err
		}
		updates := map[string]interface{}{
			"status":      types.AIJobStatusSucceeded,
			"ai_image_id": created.ID,
		}
		if len(responsePayload) > 0 {
			updates["response_payload"] = datatypes.JSON(responsePayload)
		}
		if err := r.aiJobs.UpdateFields(ctx, tx, jobID, updates); err != nil {
			return err
		}
		return r.sessions.UpdateFields(ctx, tx, sessionID, map[string]interface{}{
			"status": types.SessionStatusAIReady,
		})
	})
	if err != nil {
		return err
	}
	r.pub.Publish(ctx, sessionUUID, sse.EventCompleted, map[string]any{
		"image_url": asset.PublicURL,
	})
	return nil
}

// recordFailure marks the job and its session FAILED and publishes
// "failed". Best-effort: a failure while recording failure is logged and
// swallowed, never raised past the caller's handler. An already-terminal
// job is left untouched (dual-producer race).
func (r *aiStateRecorder) recordFailure(ctx context.Context, jobID int64, sessionID int64, sessionUUID string, cause error) {
	msg := cause.Error()
	if len(msg) > maxRecordedErrorLen {
		msg = msg[:maxRecordedErrorLen]
	}
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := r.aiJobs.GetByIDForUpdate(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if job == nil {
			return apperr.NotFoundf("ai job %d", jobID)
		}
		if job.Status.IsTerminal() {
			r.log.Warn("Skipping failure record; ai job already terminal",
				"ai_job_id", jobID, "status", job.Status, "cause", msg)
			return nil
		}
		if err := r.aiJobs.UpdateFields(ctx, tx, jobID, map[string]interface{}{
			"status": types.AIJobStatusFailed,
		}); err != nil {
			return err
		}
		if err := r.sessions.UpdateFields(ctx, tx, sessionID, map[string]interface{}{
			"status": types.SessionStatusFailed,
		}); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		r.log.Error("Failed to record ai job failure", "ai_job_id", jobID, "error", err, "cause", msg)
		return
	}
	if applied {
		r.pub.Publish(ctx, sessionUUID, sse.EventFailed, map[string]any{
			"error": msg,
		})
	}
}
