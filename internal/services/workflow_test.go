package services

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tigerphoto/photobooth-backend/internal/apperr"
	"github.com/tigerphoto/photobooth-backend/internal/clients/httpfetch"
	"github.com/tigerphoto/photobooth-backend/internal/jobs"
	"github.com/tigerphoto/photobooth-backend/internal/styles"
	"github.com/tigerphoto/photobooth-backend/internal/types"
)

var slugPattern = regexp.MustCompile(`^[A-Za-z0-9_]{9}$`)

func newWorkflow(t *testing.T, env *testEnv) *Workflow {
	t.Helper()
	registry := styles.NewRegistry(&fakeFetcher{responses: map[string][]byte{}})
	return NewWorkflow(env.db, env.log, env.sessions, env.stylesR, env.qrCodes, env.assets, env.aiJobs, env.jobRuns, env.store, registry, "https://booth.test")
}

var _ httpfetch.Fetcher = (*fakeFetcher)(nil)

func TestWorkflowCreate_IssuesQRAndQueuesJob(t *testing.T) {
	env := newTestEnv(t)
	seedStyle(t, env.db, "tiger")
	w := newWorkflow(t, env)
	ctx := context.Background()

	session, err := w.Create(ctx, "tiger", json.RawMessage(`{"lang":"en"}`))
	require.NoError(t, err)
	require.Equal(t, types.SessionStatusCreated, session.Status)
	require.NotEqual(t, uuid.Nil, session.UUID)
	require.NotNil(t, session.QRCode)
	require.Equal(t, types.QRStatusPending, session.QRCode.Status)
	require.True(t, slugPattern.MatchString(session.QRCode.Slug), "slug %q", session.QRCode.Slug)

	var run types.JobRun
	require.NoError(t, env.db.First(&run, "job_type = ?", jobs.TypeQRGenerate).Error)
	require.Equal(t, types.JobRunStatusQueued, run.Status)
	require.Equal(t, 3, run.MaxAttempts)
	var payload jobs.QRPayload
	require.NoError(t, json.Unmarshal(run.Payload, &payload))
	require.Equal(t, session.QRCode.ID, payload.QRCodeID)
}

func TestWorkflowCreate_RejectsUnknownAndInactiveStyle(t *testing.T) {
	env := newTestEnv(t)
	inactive := seedStyle(t, env.db, "retired")
	require.NoError(t, env.db.Model(inactive).Update("is_active", false).Error)
	w := newWorkflow(t, env)
	ctx := context.Background()

	_, err := w.Create(ctx, "nope", nil)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = w.Create(ctx, "retired", nil)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestWorkflowUpload_AppendsOriginalsAndRepeats(t *testing.T) {
	env := newTestEnv(t)
	seedStyle(t, env.db, "tiger")
	w := newWorkflow(t, env)
	ctx := context.Background()

	session, err := w.Create(ctx, "tiger", nil)
	require.NoError(t, err)

	img := tinyPNG(t)
	_, first, err := w.Upload(ctx, session.UUID, "shot.png", "image/png", img)
	require.NoError(t, err)
	require.Equal(t, types.ImageKindOriginal, first.Kind)
	require.Equal(t, 2, first.Width)

	// A retake is allowed from UPLOADED and becomes the effective capture.
	_, second, err := w.Upload(ctx, session.UUID, "shot2.png", "image/png", img)
	require.NoError(t, err)
	require.Greater(t, second.ID, first.ID)

	latest, err := env.assets.LatestBySessionAndKind(ctx, nil, second.SessionID, types.ImageKindOriginal)
	require.NoError(t, err)
	require.Equal(t, second.ID, latest.ID)
}

func TestWorkflowUpload_RejectsNonImageAndBadState(t *testing.T) {
	env := newTestEnv(t)
	seedStyle(t, env.db, "tiger")
	w := newWorkflow(t, env)
	ctx := context.Background()

	session, err := w.Create(ctx, "tiger", nil)
	require.NoError(t, err)

	_, _, err = w.Upload(ctx, session.UUID, "notes.txt", "text/plain", []byte("not an image"))
	require.ErrorIs(t, err, apperr.ErrValidation)

	require.NoError(t, env.sessions.UpdateFields(ctx, nil, session.ID, map[string]interface{}{
		"status": types.SessionStatusAIRequested,
	}))
	_, _, err = w.Upload(ctx, session.UUID, "shot.png", "image/png", tinyPNG(t))
	require.ErrorIs(t, err, apperr.ErrStateConflict)
}

func TestWorkflowRequestTransform_QueuesJobAndMovesState(t *testing.T) {
	env := newTestEnv(t)
	seedStyle(t, env.db, "tiger")
	w := newWorkflow(t, env)
	ctx := context.Background()

	session, err := w.Create(ctx, "tiger", nil)
	require.NoError(t, err)

	// No original yet.
	_, err = w.RequestTransform(ctx, session.UUID)
	require.ErrorIs(t, err, apperr.ErrStateConflict)

	_, _, err = w.Upload(ctx, session.UUID, "shot.png", "image/png", tinyPNG(t))
	require.NoError(t, err)

	job, err := w.RequestTransform(ctx, session.UUID)
	require.NoError(t, err)
	require.Equal(t, types.AIJobStatusPending, job.Status)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(job.RequestPayload, &payload))
	require.Equal(t, "tiger", payload["style_code"])
	require.Equal(t, "reference_guided", payload["strategy"])
	require.NotEmpty(t, payload["prompt"])

	reloaded, err := env.sessions.GetByUUID(ctx, nil, session.UUID)
	require.NoError(t, err)
	require.Equal(t, types.SessionStatusAIRequested, reloaded.Status)

	var run types.JobRun
	require.NoError(t, env.db.First(&run, "job_type = ?", jobs.TypeAITransform).Error)
	require.Equal(t, 1, run.MaxAttempts)
}

func TestWorkflowRetryTransform_OnlyAfterFailure(t *testing.T) {
	env := newTestEnv(t)
	seedStyle(t, env.db, "tiger")
	w := newWorkflow(t, env)
	ctx := context.Background()

	session, err := w.Create(ctx, "tiger", nil)
	require.NoError(t, err)
	_, _, err = w.Upload(ctx, session.UUID, "shot.png", "image/png", tinyPNG(t))
	require.NoError(t, err)

	_, err = w.RetryTransform(ctx, session.UUID)
	require.ErrorIs(t, err, apperr.ErrStateConflict)

	first, err := w.RequestTransform(ctx, session.UUID)
	require.NoError(t, err)
	require.NoError(t, env.aiJobs.UpdateFields(ctx, nil, first.ID, map[string]interface{}{
		"status": types.AIJobStatusFailed,
	}))
	require.NoError(t, env.sessions.UpdateFields(ctx, nil, session.ID, map[string]interface{}{
		"status": types.SessionStatusFailed,
	}))

	retry, err := w.RetryTransform(ctx, session.UUID)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, retry.ID, "retry must open a fresh job")
}

func TestWorkflowFinalize_BindsSlugAndRejectsSecondCall(t *testing.T) {
	env := newTestEnv(t)
	seedStyle(t, env.db, "tiger")
	w := newWorkflow(t, env)
	ctx := context.Background()

	session, err := w.Create(ctx, "tiger", nil)
	require.NoError(t, err)
	_, _, err = w.Upload(ctx, session.UUID, "shot.png", "image/png", tinyPNG(t))
	require.NoError(t, err)

	finalized, asset, err := w.Finalize(ctx, session.UUID, "final.png", "image/png", tinyPNG(t))
	require.NoError(t, err)
	require.Equal(t, types.SessionStatusFinalized, finalized.Status)
	require.Equal(t, types.ImageKindFinal, asset.Kind)

	code, err := env.qrCodes.GetByID(ctx, nil, *session.QRCodeID)
	require.NoError(t, err)
	require.NotNil(t, code.TargetURL)
	require.Equal(t, asset.PublicURL, *code.TargetURL)

	// The second composite must not displace the first.
	_, _, err = w.Finalize(ctx, session.UUID, "final2.png", "image/png", tinyPNG(t))
	require.ErrorIs(t, err, apperr.ErrStateConflict)
}

func TestWorkflowResolveRedirect(t *testing.T) {
	env := newTestEnv(t)
	seedStyle(t, env.db, "tiger")
	w := newWorkflow(t, env)
	ctx := context.Background()

	_, err := w.ResolveRedirect(ctx, "missing99")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	session, err := w.Create(ctx, "tiger", nil)
	require.NoError(t, err)
	slug := session.QRCode.Slug

	pending, err := w.ResolveRedirect(ctx, slug)
	require.NoError(t, err)
	require.True(t, pending.Pending)
	require.Empty(t, pending.TargetURL)

	_, _, err = w.Upload(ctx, session.UUID, "shot.png", "image/png", tinyPNG(t))
	require.NoError(t, err)
	_, asset, err := w.Finalize(ctx, session.UUID, "final.png", "image/png", tinyPNG(t))
	require.NoError(t, err)

	bound, err := w.ResolveRedirect(ctx, slug)
	require.NoError(t, err)
	require.False(t, bound.Pending)
	require.Equal(t, asset.PublicURL, bound.TargetURL)
}

func TestWorkflowDecorate(t *testing.T) {
	env := newTestEnv(t)
	seedStyle(t, env.db, "tiger")
	w := newWorkflow(t, env)
	ctx := context.Background()

	session, err := w.Create(ctx, "tiger", nil)
	require.NoError(t, err)

	_, err = w.Decorate(ctx, session.UUID)
	require.ErrorIs(t, err, apperr.ErrStateConflict)

	require.NoError(t, env.sessions.UpdateFields(ctx, nil, session.ID, map[string]interface{}{
		"status": types.SessionStatusAIReady,
	}))
	decorated, err := w.Decorate(ctx, session.UUID)
	require.NoError(t, err)
	require.Equal(t, types.SessionStatusDecorating, decorated.Status)
}

func TestWorkflowDetail_UnknownSession(t *testing.T) {
	env := newTestEnv(t)
	w := newWorkflow(t, env)

	_, _, _, err := w.Detail(context.Background(), uuid.New())
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
