package services

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tigerphoto/photobooth-backend/internal/apperr"
	"github.com/tigerphoto/photobooth-backend/internal/clients/genai"
	"github.com/tigerphoto/photobooth-backend/internal/clients/httpfetch"
	"github.com/tigerphoto/photobooth-backend/internal/events"
	"github.com/tigerphoto/photobooth-backend/internal/logger"
	"github.com/tigerphoto/photobooth-backend/internal/repos"
	"github.com/tigerphoto/photobooth-backend/internal/sse"
	"github.com/tigerphoto/photobooth-backend/internal/storage"
	"github.com/tigerphoto/photobooth-backend/internal/types"
)

// WebhookPayload is the callback body an external AI provider posts back
// for a job it was handed, correlated by request_id.
type WebhookPayload struct {
	RequestID       string         `json:"request_id" binding:"required"`
	Status          string         `json:"status" binding:"required"`
	ImageURL        string         `json:"image_url"`
	ProgressPercent *int           `json:"progress_percent"`
	Phase           string         `json:"phase"`
	Message         string         `json:"message"`
	Meta            map[string]any `json:"meta"`
}

// WebhookService ingests provider callbacks. It is the second producer of
// AIJob terminal transitions; the shared recorder rejects a transition on a
// job the internal transform path already settled.
type WebhookService struct {
	log      *logger.Logger
	sessions repos.SessionRepo
	aiJobs   repos.AIJobRepo
	fetcher  httpfetch.Fetcher
	store    storage.Storage
	pub      events.Publisher
	recorder *aiStateRecorder
}

func NewWebhookService(
	db *gorm.DB,
	baseLog *logger.Logger,
	sessions repos.SessionRepo,
	aiJobs repos.AIJobRepo,
	assets repos.ImageAssetRepo,
	fetcher httpfetch.Fetcher,
	store storage.Storage,
	pub events.Publisher,
) *WebhookService {
	log := baseLog.With("component", "WebhookService")
	return &WebhookService{
		log:      log,
		sessions: sessions,
		aiJobs:   aiJobs,
		fetcher:  fetcher,
		store:    store,
		pub:      pub,
		recorder: &aiStateRecorder{
			db:       db,
			log:      log,
			aiJobs:   aiJobs,
			sessions: sessions,
			assets:   assets,
			pub:      pub,
		},
	}
}

// Ingest applies one callback. Unknown request_id is NotFound with no
// mutation. A terminal transition on an already settled job is
// StateConflict; a progress update after settlement is dropped so a late
// RUNNING callback never regresses the status.
func (s *WebhookService) Ingest(ctx context.Context, payload WebhookPayload) error {
	job, err := s.aiJobs.GetByRequestID(ctx, nil, payload.RequestID)
	if err != nil {
		return err
	}
	if job == nil {
		return apperr.NotFoundf("no ai job for request_id %s", payload.RequestID)
	}
	session, err := s.sessions.GetByID(ctx, nil, job.SessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return apperr.NotFoundf("session %d", job.SessionID)
	}
	sessionUUID := session.UUID.String()
	raw, err := json.Marshal(payload)
	if err != nil {
		return apperr.Validationf("unencodable webhook payload: %v", err)
	}

	switch payload.Status {
	case "RUNNING":
		return s.ingestProgress(ctx, job, sessionUUID, payload, raw)
	case "SUCCEEDED":
		if payload.ImageURL == "" {
			s.recorder.recordFailure(ctx, job.ID, session.ID, sessionUUID,
				fmt.Errorf("provider reported success without image_url"))
			return nil
		}
		return s.ingestSuccess(ctx, job, session, sessionUUID, payload, raw)
	default:
		cause := fmt.Errorf("provider reported %s", payload.Status)
		if payload.Message != "" {
			cause = fmt.Errorf("provider reported %s: %s", payload.Status, payload.Message)
		}
		s.recorder.recordFailure(ctx, job.ID, session.ID, sessionUUID, cause)
		return nil
	}
}

func (s *WebhookService) ingestProgress(ctx context.Context, job *types.AIJob, sessionUUID string, payload WebhookPayload, raw []byte) error {
	if job.Status.IsTerminal() {
		s.log.Warn("Dropping late progress callback; ai job already terminal",
			"ai_job_id", job.ID, "status", job.Status, "request_id", payload.RequestID)
		return nil
	}
	if err := s.aiJobs.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
		"status":           types.AIJobStatusRunning,
		"response_payload": datatypes.JSON(raw),
	}); err != nil {
		return err
	}
	data := map[string]any{
		"phase":   payload.Phase,
		"message": payload.Message,
	}
	if payload.ProgressPercent != nil {
		data["progress_percent"] = *payload.ProgressPercent
	}
	s.pub.Publish(ctx, sessionUUID, sse.EventProgress, data)
	return nil
}

func (s *WebhookService) ingestSuccess(ctx context.Context, job *types.AIJob, session *types.Session, sessionUUID string, payload WebhookPayload, raw []byte) error {
	data, mime, err := s.fetcher.Fetch(ctx, payload.ImageURL)
	if err != nil {
		s.recorder.recordFailure(ctx, job.ID, session.ID, sessionUUID, err)
		return err
	}
	if mime == "" {
		mime = "image/png"
	}
	asset, err := storeAIResult(ctx, s.store, session.ID, genai.InlineImage{MimeType: mime, Data: data})
	if err != nil {
		s.recorder.recordFailure(ctx, job.ID, session.ID, sessionUUID, err)
		return err
	}
	return s.recorder.completeSuccess(ctx, job.ID, session.ID, sessionUUID, asset, raw)
}
