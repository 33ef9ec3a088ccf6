package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tigerphoto/photobooth-backend/internal/apperr"
	"github.com/tigerphoto/photobooth-backend/internal/imaging"
	"github.com/tigerphoto/photobooth-backend/internal/jobs"
	"github.com/tigerphoto/photobooth-backend/internal/logger"
	qrpkg "github.com/tigerphoto/photobooth-backend/internal/qr"
	"github.com/tigerphoto/photobooth-backend/internal/repos"
	"github.com/tigerphoto/photobooth-backend/internal/storage"
	"github.com/tigerphoto/photobooth-backend/internal/styles"
	"github.com/tigerphoto/photobooth-backend/internal/types"
)

const (
	qrJobMaxAttempts = 3
	aiJobMaxAttempts = 1
)

// uploadAllowed lists the statuses an ORIGINAL upload is accepted from.
// Guests may retake their photo until the AI pipeline is in flight, and
// again after it settled.
var uploadAllowed = map[types.SessionStatus]bool{
	types.SessionStatusCreated:  true,
	types.SessionStatusUploaded: true,
	types.SessionStatusAIReady:  true,
	types.SessionStatusFailed:   true,
}

// finalizeAllowed lists the statuses Finalize is accepted from. A session
// may be finalized straight from the upload (skipping stylization) or after
// the AI/decoration steps.
var finalizeAllowed = map[types.SessionStatus]bool{
	types.SessionStatusUploaded:   true,
	types.SessionStatusAIReady:    true,
	types.SessionStatusDecorating: true,
}

// Workflow is the session state machine owner. Every status transition of
// a Session funnels through it; handlers never write session status
// directly.
type Workflow struct {
	db       *gorm.DB
	log      *logger.Logger
	sessions repos.SessionRepo
	stylesR  repos.StyleRepo
	qrCodes  repos.QRCodeRepo
	assets   repos.ImageAssetRepo
	aiJobs   repos.AIJobRepo
	jobRuns  repos.JobRunRepo
	store    storage.Storage
	registry *styles.Registry
	baseURL  string
}

func NewWorkflow(
	db *gorm.DB,
	baseLog *logger.Logger,
	sessions repos.SessionRepo,
	stylesRepo repos.StyleRepo,
	qrCodes repos.QRCodeRepo,
	assets repos.ImageAssetRepo,
	aiJobs repos.AIJobRepo,
	jobRuns repos.JobRunRepo,
	store storage.Storage,
	registry *styles.Registry,
	baseURL string,
) *Workflow {
	return &Workflow{
		db:       db,
		log:      baseLog.With("component", "Workflow"),
		sessions: sessions,
		stylesR:  stylesRepo,
		qrCodes:  qrCodes,
		assets:   assets,
		aiJobs:   aiJobs,
		jobRuns:  jobRuns,
		store:    store,
		registry: registry,
		baseURL:  baseURL,
	}
}

// Create opens a session for a style, issuing its QR code row and slug in
// the same transaction and queueing PNG generation. Returns as soon as the
// rows are committed; the QR image materializes asynchronously.
func (w *Workflow) Create(ctx context.Context, styleCode string, preferences json.RawMessage) (*types.Session, error) {
	style, err := w.stylesR.GetByCode(ctx, nil, styleCode)
	if err != nil {
		return nil, err
	}
	if style == nil {
		return nil, apperr.NotFoundf("style %q", styleCode)
	}
	if !style.IsActive {
		return nil, apperr.Validationf("style %q is not active", styleCode)
	}

	var session *types.Session
	err = w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slug, err := qrpkg.NewSlug()
		if err != nil {
			return err
		}
		code, err := w.qrCodes.Create(ctx, tx, &types.QRCode{
			Slug:   slug,
			Status: types.QRStatusPending,
		})
		if err != nil {
			return err
		}
		s := &types.Session{
			StyleID:  style.ID,
			Status:   types.SessionStatusCreated,
			QRCodeID: &code.ID,
		}
		if len(preferences) > 0 {
			s.UserPreferences = datatypes.JSON(preferences)
		}
		if s, err = w.sessions.Create(ctx, tx, s); err != nil {
			return err
		}
		if _, err := jobs.Enqueue(ctx, tx, w.jobRuns, jobs.TypeQRGenerate,
			jobs.QRPayload{QRCodeID: code.ID}, qrJobMaxAttempts); err != nil {
			return err
		}
		s.Style = style
		s.QRCode = code
		session = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	w.log.Info("Session created", "session_uuid", session.UUID, "style", style.Code, "slug", session.QRCode.Slug)
	return session, nil
}

// Upload stores a guest capture as a new ORIGINAL asset and moves the
// session to UPLOADED. Repeat uploads append; the latest one wins for the
// transform.
func (w *Workflow) Upload(ctx context.Context, sessionUUID uuid.UUID, filename, contentType string, data []byte) (*types.Session, *types.ImageAsset, error) {
	session, err := w.mustSession(ctx, sessionUUID)
	if err != nil {
		return nil, nil, err
	}
	if !uploadAllowed[session.Status] {
		return nil, nil, apperr.StateConflictf("cannot upload in status %s", session.Status)
	}
	if len(data) == 0 {
		return nil, nil, apperr.Validationf("empty upload")
	}
	width, height, format, err := imaging.ProbeDimensions(data)
	if err != nil {
		return nil, nil, apperr.Validationf("upload is not a decodable image: %v", err)
	}
	if contentType == "" {
		contentType = "image/" + format
	}

	objectName := storage.BuildObjectName("original", filename)
	path, publicURL, err := w.store.PutBytes(ctx, data, objectName, contentType)
	if err != nil {
		return nil, nil, err
	}

	asset := &types.ImageAsset{
		SessionID:   session.ID,
		Kind:        types.ImageKindOriginal,
		StoragePath: path,
		PublicURL:   publicURL,
		Width:       width,
		Height:      height,
		Mime:        contentType,
		SizeBytes:   int64(len(data)),
	}
	err = w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if asset, err = w.assets.Create(ctx, tx, asset); err != nil {
			return err
		}
		return w.sessions.UpdateFields(ctx, tx, session.ID, map[string]interface{}{
			"status": types.SessionStatusUploaded,
		})
	})
	if err != nil {
		return nil, nil, err
	}
	session.Status = types.SessionStatusUploaded
	return session, asset, nil
}

// RequestTransform opens an AIJob for the session's latest original and
// queues the stylization run. Allowed only from UPLOADED.
func (w *Workflow) RequestTransform(ctx context.Context, sessionUUID uuid.UUID) (*types.AIJob, error) {
	session, err := w.mustSession(ctx, sessionUUID)
	if err != nil {
		return nil, err
	}
	if session.Status != types.SessionStatusUploaded {
		return nil, apperr.StateConflictf("cannot request transform in status %s", session.Status)
	}
	return w.openAIJob(ctx, session)
}

// RetryTransform re-queues stylization for a session whose previous attempt
// failed. Each retry is a fresh AIJob; the failed one stays as history.
func (w *Workflow) RetryTransform(ctx context.Context, sessionUUID uuid.UUID) (*types.AIJob, error) {
	session, err := w.mustSession(ctx, sessionUUID)
	if err != nil {
		return nil, err
	}
	if session.Status != types.SessionStatusFailed {
		return nil, apperr.StateConflictf("cannot retry transform in status %s", session.Status)
	}
	last, err := w.aiJobs.GetLatestBySession(ctx, nil, session.ID)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, apperr.StateConflictf("session %s has no transform to retry", sessionUUID)
	}
	return w.openAIJob(ctx, session)
}

func (w *Workflow) openAIJob(ctx context.Context, session *types.Session) (*types.AIJob, error) {
	original, err := w.assets.LatestBySessionAndKind(ctx, nil, session.ID, types.ImageKindOriginal)
	if err != nil {
		return nil, err
	}
	if original == nil {
		return nil, apperr.MissingInputf("session %s has no original image", session.UUID)
	}
	if session.Style == nil {
		return nil, apperr.MissingInputf("session %s has no style loaded", session.UUID)
	}

	requestPayload, err := json.Marshal(map[string]any{
		"style_code": session.Style.Code,
		"strategy":   w.registry.For(session.Style.Code).Name(),
		"prompt":     styles.PromptFor(session.Style),
		"source_url": original.PublicURL,
	})
	if err != nil {
		return nil, err
	}

	var job *types.AIJob
	err = w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err = w.aiJobs.Create(ctx, tx, &types.AIJob{
			SessionID:      session.ID,
			Status:         types.AIJobStatusPending,
			RequestPayload: datatypes.JSON(requestPayload),
		})
		if err != nil {
			return err
		}
		if err := w.sessions.UpdateFields(ctx, tx, session.ID, map[string]interface{}{
			"status": types.SessionStatusAIRequested,
		}); err != nil {
			return err
		}
		_, err = jobs.Enqueue(ctx, tx, w.jobRuns, jobs.TypeAITransform,
			jobs.AIPayload{AIJobID: job.ID}, aiJobMaxAttempts)
		return err
	})
	if err != nil {
		return nil, err
	}
	w.log.Info("Transform queued", "session_uuid", session.UUID, "ai_job_id", job.ID)
	return job, nil
}

// Decorate marks the session as being composed with overlays on the booth
// client. Allowed only from AI_READY.
func (w *Workflow) Decorate(ctx context.Context, sessionUUID uuid.UUID) (*types.Session, error) {
	session, err := w.mustSession(ctx, sessionUUID)
	if err != nil {
		return nil, err
	}
	if session.Status != types.SessionStatusAIReady {
		return nil, apperr.StateConflictf("cannot decorate in status %s", session.Status)
	}
	if err := w.sessions.UpdateFields(ctx, nil, session.ID, map[string]interface{}{
		"status": types.SessionStatusDecorating,
	}); err != nil {
		return nil, err
	}
	session.Status = types.SessionStatusDecorating
	return session, nil
}

// Finalize stores the composed FINAL image, points the session's QR slug at
// it and closes the session. A second finalize trips the one-FINAL-per-
// session constraint and is rejected as a conflict.
func (w *Workflow) Finalize(ctx context.Context, sessionUUID uuid.UUID, filename, contentType string, data []byte) (*types.Session, *types.ImageAsset, error) {
	session, err := w.mustSession(ctx, sessionUUID)
	if err != nil {
		return nil, nil, err
	}
	if !finalizeAllowed[session.Status] {
		return nil, nil, apperr.StateConflictf("cannot finalize in status %s", session.Status)
	}
	if len(data) == 0 {
		return nil, nil, apperr.Validationf("empty upload")
	}
	width, height, format, err := imaging.ProbeDimensions(data)
	if err != nil {
		return nil, nil, apperr.Validationf("upload is not a decodable image: %v", err)
	}
	if contentType == "" {
		contentType = "image/" + format
	}

	objectName := storage.BuildObjectName("final", filename)
	path, publicURL, err := w.store.PutBytes(ctx, data, objectName, contentType)
	if err != nil {
		return nil, nil, err
	}

	asset := &types.ImageAsset{
		SessionID:   session.ID,
		Kind:        types.ImageKindFinal,
		StoragePath: path,
		PublicURL:   publicURL,
		Width:       width,
		Height:      height,
		Mime:        contentType,
		SizeBytes:   int64(len(data)),
	}
	err = w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if asset, err = w.assets.Create(ctx, tx, asset); err != nil {
			if apperr.IsUniqueViolation(err) {
				return apperr.StateConflictf("session %s is already finalized", sessionUUID)
			}
			return err
		}
		if session.QRCodeID != nil {
			if err := w.qrCodes.UpdateFields(ctx, tx, *session.QRCodeID, map[string]interface{}{
				"target_url": publicURL,
			}); err != nil {
				return err
			}
		}
		return w.sessions.UpdateFields(ctx, tx, session.ID, map[string]interface{}{
			"status": types.SessionStatusFinalized,
		})
	})
	if err != nil {
		return nil, nil, err
	}
	session.Status = types.SessionStatusFinalized
	w.log.Info("Session finalized", "session_uuid", session.UUID, "final_url", publicURL)
	return session, asset, nil
}

// Detail returns a session with its style, QR code, assets and latest AI
// job resolved.
func (w *Workflow) Detail(ctx context.Context, sessionUUID uuid.UUID) (*types.Session, []*types.ImageAsset, *types.AIJob, error) {
	session, err := w.mustSession(ctx, sessionUUID)
	if err != nil {
		return nil, nil, nil, err
	}
	assets, err := w.assets.ListBySession(ctx, nil, session.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	job, err := w.aiJobs.GetLatestBySession(ctx, nil, session.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	return session, assets, job, nil
}

// List pages through sessions, newest activity first.
func (w *Workflow) List(ctx context.Context, page, pageSize int) ([]*types.Session, int64, error) {
	return w.sessions.List(ctx, nil, page, pageSize)
}

// ActiveStyles lists the styles selectable on the booth.
func (w *Workflow) ActiveStyles(ctx context.Context) ([]*types.Style, error) {
	return w.stylesR.ListActive(ctx, nil)
}

// RedirectURL derives the short URL a session's QR slug encodes. This is
// what the booth shows the guest right after create, before the PNG exists.
func (w *Workflow) RedirectURL(slug string) string {
	return qrpkg.BuildRedirectURL(w.baseURL, slug)
}

// QRStatus resolves a QR code row by slug for polling clients.
func (w *Workflow) QRStatus(ctx context.Context, slug string) (*types.QRCode, error) {
	code, err := w.qrCodes.GetBySlug(ctx, nil, slug)
	if err != nil {
		return nil, err
	}
	if code == nil {
		return nil, apperr.NotFoundf("qr slug %q", slug)
	}
	return code, nil
}

// Redirect resolution outcome for a scanned slug.
type RedirectResult struct {
	// TargetURL is non-empty only when the slug is bound to a final image.
	TargetURL string
	// Pending is true for a known slug whose session has not finalized.
	Pending bool
}

// ResolveRedirect maps a scanned slug to its final image URL. An unknown
// slug is NotFound; a known slug without a target is reported pending.
func (w *Workflow) ResolveRedirect(ctx context.Context, slug string) (RedirectResult, error) {
	code, err := w.qrCodes.GetBySlug(ctx, nil, slug)
	if err != nil {
		return RedirectResult{}, err
	}
	if code == nil {
		return RedirectResult{}, apperr.NotFoundf("qr slug %q", slug)
	}
	if code.TargetURL == nil || *code.TargetURL == "" {
		return RedirectResult{Pending: true}, nil
	}
	return RedirectResult{TargetURL: *code.TargetURL}, nil
}

func (w *Workflow) mustSession(ctx context.Context, sessionUUID uuid.UUID) (*types.Session, error) {
	session, err := w.sessions.GetByUUID(ctx, nil, sessionUUID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperr.NotFoundf("session %s", sessionUUID)
	}
	return session, nil
}
