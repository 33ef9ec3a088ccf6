package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tigerphoto/photobooth-backend/internal/logger"
	"github.com/tigerphoto/photobooth-backend/internal/types"
)

type fakeQueue struct {
	mu         sync.Mutex
	pending    []*types.JobRun
	updates    map[int64][]map[string]interface{}
	heartbeats map[int64]int
}

func newFakeQueue(runs ...*types.JobRun) *fakeQueue {
	return &fakeQueue{
		pending:    runs,
		updates:    make(map[int64][]map[string]interface{}),
		heartbeats: make(map[int64]int),
	}
}

func (q *fakeQueue) ClaimNextRunnable(_ context.Context, _ *gorm.DB, _, _ time.Duration) (*types.JobRun, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, nil
	}
	run := q.pending[0]
	q.pending = q.pending[1:]
	run.Status = types.JobRunStatusRunning
	run.Attempts++
	return run, nil
}

func (q *fakeQueue) UpdateFields(_ context.Context, _ *gorm.DB, id int64, updates map[string]interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.updates[id] = append(q.updates[id], updates)
	return nil
}

func (q *fakeQueue) Heartbeat(_ context.Context, _ *gorm.DB, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.heartbeats[id]++
	return nil
}

func (q *fakeQueue) heartbeatCount(id int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heartbeats[id]
}

func (q *fakeQueue) lastUpdate(id int64) map[string]interface{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	ups := q.updates[id]
	if len(ups) == 0 {
		return nil
	}
	return ups[len(ups)-1]
}

type stubHandler struct {
	jobType string
	err     error
	panics  bool
	delay   time.Duration
	ran     int
}

func (h *stubHandler) Type() string { return h.jobType }

func (h *stubHandler) Run(_ context.Context, _ *types.JobRun) error {
	h.ran++
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	if h.panics {
		panic("boom")
	}
	return h.err
}

func newTestWorker(t *testing.T, queue Queue, handlers ...Handler) *Worker {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	registry := NewRegistry()
	for _, h := range handlers {
		if err := registry.Register(h); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	return NewWorker(log, queue, registry, 1)
}

func TestDispatch_SuccessMarksSucceeded(t *testing.T) {
	handler := &stubHandler{jobType: "qr_generate"}
	queue := newFakeQueue()
	w := newTestWorker(t, queue, handler)

	run := &types.JobRun{ID: 7, JobType: "qr_generate", Attempts: 1}
	w.dispatch(context.Background(), w.log, run)

	if handler.ran != 1 {
		t.Fatalf("handler ran %d times", handler.ran)
	}
	update := queue.lastUpdate(7)
	if update == nil || update["status"] != types.JobRunStatusSucceeded {
		t.Fatalf("unexpected final update %v", update)
	}
}

func TestDispatch_HandlerErrorMarksFailedWithTruncatedMessage(t *testing.T) {
	handler := &stubHandler{
		jobType: "ai_transform",
		err:     errors.New(strings.Repeat("x", maxErrorLen+200)),
	}
	queue := newFakeQueue()
	w := newTestWorker(t, queue, handler)

	run := &types.JobRun{ID: 9, JobType: "ai_transform", Attempts: 1}
	w.dispatch(context.Background(), w.log, run)

	update := queue.lastUpdate(9)
	if update == nil || update["status"] != types.JobRunStatusFailed {
		t.Fatalf("unexpected final update %v", update)
	}
	if msg := update["last_error"].(string); len(msg) != maxErrorLen {
		t.Fatalf("expected error truncated to %d, got %d", maxErrorLen, len(msg))
	}
	if update["last_error_at"] == nil {
		t.Fatal("last_error_at not set")
	}
}

func TestDispatch_PanicIsRecoveredAndRecorded(t *testing.T) {
	handler := &stubHandler{jobType: "ai_transform", panics: true}
	queue := newFakeQueue()
	w := newTestWorker(t, queue, handler)

	run := &types.JobRun{ID: 3, JobType: "ai_transform", Attempts: 1}
	w.dispatch(context.Background(), w.log, run)

	update := queue.lastUpdate(3)
	if update == nil || update["status"] != types.JobRunStatusFailed {
		t.Fatalf("unexpected final update %v", update)
	}
	if msg := update["last_error"].(string); !strings.Contains(msg, "panic") {
		t.Fatalf("panic not recorded: %q", msg)
	}
}

func TestDispatch_RefreshesHeartbeatWhileHandlerRuns(t *testing.T) {
	handler := &stubHandler{jobType: "ai_transform", delay: 120 * time.Millisecond}
	queue := newFakeQueue()
	w := newTestWorker(t, queue, handler)
	w.heartbeat = 20 * time.Millisecond

	run := &types.JobRun{ID: 11, JobType: "ai_transform", Attempts: 1}
	w.dispatch(context.Background(), w.log, run)

	if beats := queue.heartbeatCount(11); beats < 2 {
		t.Fatalf("expected repeated heartbeats during a slow handler, got %d", beats)
	}
	update := queue.lastUpdate(11)
	if update == nil || update["status"] != types.JobRunStatusSucceeded {
		t.Fatalf("unexpected final update %v", update)
	}
}

func TestDispatch_HeartbeatStopsAfterHandlerReturns(t *testing.T) {
	handler := &stubHandler{jobType: "qr_generate"}
	queue := newFakeQueue()
	w := newTestWorker(t, queue, handler)
	w.heartbeat = 10 * time.Millisecond

	run := &types.JobRun{ID: 13, JobType: "qr_generate", Attempts: 1}
	w.dispatch(context.Background(), w.log, run)

	settled := queue.heartbeatCount(13)
	time.Sleep(50 * time.Millisecond)
	if after := queue.heartbeatCount(13); after != settled {
		t.Fatalf("heartbeat kept firing after dispatch returned: %d -> %d", settled, after)
	}
}

func TestDispatch_MissingHandlerMarksFailed(t *testing.T) {
	queue := newFakeQueue()
	w := newTestWorker(t, queue)

	run := &types.JobRun{ID: 5, JobType: "unregistered", Attempts: 1}
	w.dispatch(context.Background(), w.log, run)

	update := queue.lastUpdate(5)
	if update == nil || update["status"] != types.JobRunStatusFailed {
		t.Fatalf("unexpected final update %v", update)
	}
}

func TestWorkerLoop_DrainsQueueUntilCancelled(t *testing.T) {
	handler := &stubHandler{jobType: "qr_generate"}
	queue := newFakeQueue(
		&types.JobRun{ID: 1, JobType: "qr_generate"},
		&types.JobRun{ID: 2, JobType: "qr_generate"},
	)
	w := newTestWorker(t, queue, handler)

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)

	deadline := time.After(5 * time.Second)
	for {
		if queue.lastUpdate(1) != nil && queue.lastUpdate(2) != nil {
			break
		}
		select {
		case <-deadline:
			cancel()
			t.Fatal("worker never drained the queue")
		case <-time.After(50 * time.Millisecond):
		}
	}
	cancel()
}
