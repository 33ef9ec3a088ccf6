package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tigerphoto/photobooth-backend/internal/clients/genai"
	"github.com/tigerphoto/photobooth-backend/internal/db"
	"github.com/tigerphoto/photobooth-backend/internal/logger"
	"github.com/tigerphoto/photobooth-backend/internal/repos"
	"github.com/tigerphoto/photobooth-backend/internal/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow_test.db")
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	return gdb
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	require.NoError(t, err)
	return log
}

func seedStyle(t *testing.T, gdb *gorm.DB, code string) *types.Style {
	t.Helper()
	style := &types.Style{
		Code:     code,
		Name:     code,
		Prompt:   "render in the " + code + " style",
		IsActive: true,
	}
	require.NoError(t, gdb.Create(style).Error)
	return style
}

// tinyPNG returns a decodable 2x2 image for upload tests.
func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// fakeStorage records every PutBytes and serves deterministic urls.
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	failErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (f *fakeStorage) PutBytes(_ context.Context, data []byte, objectName, _ string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return "", "", f.failErr
	}
	f.objects[objectName] = data
	return "mem://" + objectName, "https://cdn.test/" + objectName, nil
}

// fakeFetcher serves bytes keyed by url.
type fakeFetcher struct {
	responses map[string][]byte
	mime      string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, string, error) {
	data, ok := f.responses[url]
	if !ok {
		return nil, "", fmt.Errorf("no response registered for %s", url)
	}
	mime := f.mime
	if mime == "" {
		mime = "image/png"
	}
	return data, mime, nil
}

// fakeGenAI returns a canned image or error.
type fakeGenAI struct {
	result *genai.GenerateResult
	err    error
	calls  int
}

func (f *fakeGenAI) GenerateImage(_ context.Context, _ genai.GenerateRequest) (*genai.GenerateResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	SessionUUID string
	Event       string
	Data        any
}

func (p *recordingPublisher) Publish(_ context.Context, sessionUUID string, event string, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{SessionUUID: sessionUUID, Event: event, Data: data})
}

func (p *recordingPublisher) byName(event string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	db       *gorm.DB
	log      *logger.Logger
	sessions repos.SessionRepo
	stylesR  repos.StyleRepo
	qrCodes  repos.QRCodeRepo
	assets   repos.ImageAssetRepo
	aiJobs   repos.AIJobRepo
	jobRuns  repos.JobRunRepo
	store    *fakeStorage
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gdb := newTestDB(t)
	log := newTestLogger(t)
	return &testEnv{
		db:       gdb,
		log:      log,
		sessions: repos.NewSessionRepo(gdb, log),
		stylesR:  repos.NewStyleRepo(gdb, log),
		qrCodes:  repos.NewQRCodeRepo(gdb, log),
		assets:   repos.NewImageAssetRepo(gdb, log),
		aiJobs:   repos.NewAIJobRepo(gdb, log),
		jobRuns:  repos.NewJobRunRepo(gdb, log),
		store:    newFakeStorage(),
	}
}
