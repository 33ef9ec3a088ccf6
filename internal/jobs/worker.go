package jobs

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tigerphoto/photobooth-backend/internal/logger"
	"github.com/tigerphoto/photobooth-backend/internal/types"
)

const (
	pollInterval = 1 * time.Second
	// RetryDelay is the fixed delay before a failed run with attempts left
	// becomes claimable again.
	RetryDelay   = 5 * time.Second
	staleRunning = 2 * time.Minute
	// heartbeatInterval must stay well under staleRunning or a slow but
	// live handler (the generative call alone may take two minutes) gets
	// re-claimed by another worker mid-flight.
	heartbeatInterval = 30 * time.Second

	maxErrorLen = 1000
)

// Queue is the claim/update surface the worker needs; satisfied by
// repos.JobRunRepo and by in-memory fakes in tests.
type Queue interface {
	ClaimNextRunnable(ctx context.Context, tx *gorm.DB, retryDelay, staleRunning time.Duration) (*types.JobRun, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id int64, updates map[string]interface{}) error
	Heartbeat(ctx context.Context, tx *gorm.DB, id int64) error
}

// Worker is the asynchronous execution tier: a pool of goroutines polling
// the durable queue and dispatching runs to registered handlers. Handler
// errors are recorded on the run and never crash the worker.
type Worker struct {
	log       *logger.Logger
	queue     Queue
	registry  *Registry
	count     int
	heartbeat time.Duration
}

func NewWorker(baseLog *logger.Logger, queue Queue, registry *Registry, count int) *Worker {
	if count < 1 {
		count = 1
	}
	return &Worker{
		log:       baseLog.With("component", "JobWorker"),
		queue:     queue,
		registry:  registry,
		count:     count,
		heartbeat: heartbeatInterval,
	}
}

// Start launches the pool and returns immediately. The pool drains when
// ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.count; i++ {
		workerLog := w.log.With("worker", i)
		g.Go(func() error {
			w.loop(ctx, workerLog)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
	}()
}

func (w *Worker) loop(ctx context.Context, log *logger.Logger) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run, err := w.queue.ClaimNextRunnable(ctx, nil, RetryDelay, staleRunning)
			if err != nil {
				log.Warn("ClaimNextRunnable failed", "error", err)
				continue
			}
			if run == nil {
				continue
			}
			w.dispatch(ctx, log, run)
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, log *logger.Logger, run *types.JobRun) {
	handler, ok := w.registry.Get(run.JobType)
	if !ok {
		log.Warn("No handler registered for job_type", "job_type", run.JobType, "job_id", run.ID)
		w.markFailed(ctx, log, run, fmt.Errorf("no handler registered for job_type=%s", run.JobType))
		return
	}

	// Refresh the run's heartbeat while the handler executes so a slow but
	// live run never crosses the stale-claim cutoff.
	stopBeat := make(chan struct{})
	beatDone := make(chan struct{})
	go func() {
		defer close(beatDone)
		ticker := time.NewTicker(w.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-stopBeat:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.queue.Heartbeat(ctx, nil, run.ID); err != nil {
					log.Warn("Heartbeat failed", "job_id", run.ID, "error", err)
				}
			}
		}
	}()

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Job handler panic", "job_id", run.ID, "job_type", run.JobType, "panic", r)
				runErr = fmt.Errorf("panic: %v", r)
			}
		}()
		runErr = handler.Run(ctx, run)
	}()
	close(stopBeat)
	<-beatDone

	if runErr != nil {
		w.markFailed(ctx, log, run, runErr)
		return
	}
	if err := w.queue.UpdateFields(ctx, nil, run.ID, map[string]interface{}{
		"status": types.JobRunStatusSucceeded,
	}); err != nil {
		log.Warn("Failed to mark run succeeded", "job_id", run.ID, "error", err)
	}
}

func (w *Worker) markFailed(ctx context.Context, log *logger.Logger, run *types.JobRun, runErr error) {
	msg := runErr.Error()
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	log.Warn("Job run failed", "job_id", run.ID, "job_type", run.JobType, "attempt", run.Attempts, "error", msg)
	if err := w.queue.UpdateFields(ctx, nil, run.ID, map[string]interface{}{
		"status":        types.JobRunStatusFailed,
		"last_error":    msg,
		"last_error_at": time.Now(),
	}); err != nil {
		log.Warn("Failed to mark run failed", "job_id", run.ID, "error", err)
	}
}
