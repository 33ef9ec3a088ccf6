package services

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	"github.com/tigerphoto/photobooth-backend/internal/apperr"
	"github.com/tigerphoto/photobooth-backend/internal/clients/genai"
	"github.com/tigerphoto/photobooth-backend/internal/clients/httpfetch"
	"github.com/tigerphoto/photobooth-backend/internal/events"
	"github.com/tigerphoto/photobooth-backend/internal/imaging"
	"github.com/tigerphoto/photobooth-backend/internal/jobs"
	"github.com/tigerphoto/photobooth-backend/internal/logger"
	"github.com/tigerphoto/photobooth-backend/internal/repos"
	"github.com/tigerphoto/photobooth-backend/internal/sse"
	"github.com/tigerphoto/photobooth-backend/internal/storage"
	"github.com/tigerphoto/photobooth-backend/internal/styles"
	"github.com/tigerphoto/photobooth-backend/internal/types"
)

// AITransformService runs the stylization job for one AIJob: fetch the
// original capture, build the style-specific request, call the generative
// backend, and store the result. Runs once per job; operators re-trigger
// failures explicitly instead of the queue retrying a paid model call.
type AITransformService struct {
	db       *gorm.DB
	log      *logger.Logger
	sessions repos.SessionRepo
	aiJobs   repos.AIJobRepo
	assets   repos.ImageAssetRepo
	store    storage.Storage
	fetcher  httpfetch.Fetcher
	model    genai.Client
	registry *styles.Registry
	pub      events.Publisher
	recorder *aiStateRecorder
}

func NewAITransformService(
	db *gorm.DB,
	baseLog *logger.Logger,
	sessions repos.SessionRepo,
	aiJobs repos.AIJobRepo,
	assets repos.ImageAssetRepo,
	store storage.Storage,
	fetcher httpfetch.Fetcher,
	model genai.Client,
	registry *styles.Registry,
	pub events.Publisher,
) *AITransformService {
	log := baseLog.With("component", "AITransformService")
	return &AITransformService{
		db:       db,
		log:      log,
		sessions: sessions,
		aiJobs:   aiJobs,
		assets:   assets,
		store:    store,
		fetcher:  fetcher,
		model:    model,
		registry: registry,
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

func (s *AITransformService) Type() string { return jobs.TypeAITransform }

func (s *AITransformService) Run(ctx context.Context, run *types.JobRun) error {
	var payload jobs.AIPayload
	if err := json.Unmarshal(run.Payload, &payload); err != nil {
		return apperr.Validationf("malformed ai payload: %v", err)
	}
	if payload.AIJobID == 0 {
		return apperr.Validationf("ai payload missing ai_job_id")
	}
	return s.Transform(ctx, payload.AIJobID)
}

// Transform executes the stylization pipeline. Failures are recorded on the
// job and session and republished as a "failed" event before the error is
// re-raised to the queue.
func (s *AITransformService) Transform(ctx context.Context, aiJobID int64) error {
	job, err := s.aiJobs.GetByID(ctx, nil, aiJobID)
	if err != nil {
		return err
	}
	if job == nil {
		return apperr.NotFoundf("ai job %d", aiJobID)
	}
	if job.Status.IsTerminal() {
		// Redelivered run of an already settled job; nothing to do.
		s.log.Warn("Skipping transform; ai job already terminal", "ai_job_id", aiJobID, "status", job.Status)
		return nil
	}
	session, err := s.sessions.GetByID(ctx, nil, job.SessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return apperr.NotFoundf("session %d", job.SessionID)
	}
	sessionUUID := session.UUID.String()

	if err := s.aiJobs.UpdateFields(ctx, nil, aiJobID, map[string]interface{}{
		"status": types.AIJobStatusRunning,
	}); err != nil {
		return err
	}
	s.pub.Publish(ctx, sessionUUID, sse.EventProgress, map[string]any{
		"progress_percent": 0,
		"phase":            "started",
		"message":          "AI transform started",
	})

	asset, raw, err := s.generate(ctx, session)
	if err != nil {
		s.recorder.recordFailure(ctx, aiJobID, session.ID, sessionUUID, err)
		return err
	}
	if err := s.recorder.completeSuccess(ctx, aiJobID, session.ID, sessionUUID, asset, raw); err != nil {
		if !errors.Is(err, apperr.ErrStateConflict) {
			s.recorder.recordFailure(ctx, aiJobID, session.ID, sessionUUID, err)
		}
		return err
	}
	return nil
}

func (s *AITransformService) generate(ctx context.Context, session *types.Session) (*types.ImageAsset, []byte, error) {
	original, err := s.assets.LatestBySessionAndKind(ctx, nil, session.ID, types.ImageKindOriginal)
	if err != nil {
		return nil, nil, err
	}
	if original == nil {
		return nil, nil, apperr.MissingInputf("session %s has no original image", session.UUID)
	}
	if original.PublicURL == "" {
		return nil, nil, apperr.MissingInputf("original image %d has no public url", original.ID)
	}

	data, mime, err := s.fetcher.Fetch(ctx, original.PublicURL)
	if err != nil {
		return nil, nil, err
	}
	if _, _, _, err := imaging.ProbeDimensions(data); err != nil {
		return nil, nil, apperr.Validationf("original image is not decodable: %v", err)
	}
	if mime == "" {
		mime = original.Mime
	}
	if mime == "" {
		mime = "image/jpeg"
	}

	if session.Style == nil {
		return nil, nil, apperr.MissingInputf("session %s has no style loaded", session.UUID)
	}
	strategy := s.registry.For(session.Style.Code)
	prompt := styles.PromptFor(session.Style)
	req, err := strategy.Build(ctx, session.Style, prompt, genai.InlineImage{MimeType: mime, Data: data})
	if err != nil {
		return nil, nil, err
	}

	result, err := s.model.GenerateImage(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	asset, err := storeAIResult(ctx, s.store, session.ID, result.Image)
	if err != nil {
		return nil, nil, err
	}
	return asset, result.RawResponse, nil
}

// storeAIResult uploads a produced image and shapes the AI-kind asset row.
// Shared by the transform job and the webhook ingestor.
func storeAIResult(ctx context.Context, store storage.Storage, sessionID int64, img genai.InlineImage) (*types.ImageAsset, error) {
	mime := img.MimeType
	if mime == "" {
		mime = "image/png"
	}
	objectName := storage.BuildObjectName("ai", "result"+extForMime(mime))
	path, publicURL, err := store.PutBytes(ctx, img.Data, objectName, mime)
	if err != nil {
		return nil, err
	}
	asset := &types.ImageAsset{
		SessionID:   sessionID,
		Kind:        types.ImageKindAI,
		StoragePath: path,
		PublicURL:   publicURL,
		Mime:        mime,
		SizeBytes:   int64(len(img.Data)),
	}
	if w, h, _, err := imaging.ProbeDimensions(img.Data); err == nil {
		asset.Width = w
		asset.Height = h
	}
	return asset, nil
}

func extForMime(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "image/png":
		return ".png"
	default:
		return ".png"
	}
}
