// Package jobs accepts new merge jobs, persists them before
// acknowledgement, and hands them to the pipeline without blocking the
// caller.
package jobs

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/semaphore"

	"shortstack/internal/domain"
	"shortstack/internal/store"
)

// ErrNoRunningJob is returned when cancel targets a job with no in-flight
// pipeline.
var ErrNoRunningJob = errors.New("no running job")

// PipelineRunner executes the full pipeline for one persisted job.
type PipelineRunner interface {
	Run(ctx context.Context, jobID string)
}

// Dispatcher owns job admission and pipeline handoff. The handoff is
// crash-safe: the job record is durable before the pipeline is launched,
// and launch never blocks the submitter.
type Dispatcher struct {
	store  *store.Store
	engine PipelineRunner
	sem    *semaphore.Weighted
	logger hclog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewDispatcher creates a dispatcher bounded to maxConcurrent pipelines.
func NewDispatcher(st *store.Store, engine PipelineRunner, maxConcurrent int, logger hclog.Logger) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		store:      st,
		engine:     engine,
		sem:        semaphore.NewWeighted(int64(maxConcurrent)),
		logger:     logger,
		baseCtx:    ctx,
		baseCancel: cancel,
		cancels:    make(map[string]context.CancelFunc),
	}
}

// Submit creates a job in queued state, persists it, and launches its
// pipeline asynchronously. The returned job is already durable.
func (d *Dispatcher) Submit(layout domain.Layout, inputAPath, inputBPath string) (domain.Job, error) {
	job := domain.Job{
		ID:         uuid.NewString(),
		Status:     domain.JobStatusQueued,
		Layout:     layout,
		InputAPath: inputAPath,
		InputBPath: inputBPath,
		CreatedAt:  time.Now().UTC(),
	}

	if err := d.store.Put(job); err != nil {
		return domain.Job{}, err
	}

	d.launch(job.ID)
	d.logger.Info("job submitted", "job", job.ID, "layout", layout)
	return job, nil
}

// Status returns a snapshot of one job.
func (d *Dispatcher) Status(id string) (domain.Job, error) {
	return d.store.Get(id)
}

// Cancel requests best-effort cancellation of an in-flight job.
func (d *Dispatcher) Cancel(id string) error {
	job, err := d.store.Get(id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return store.ErrTerminal
	}

	d.mu.Lock()
	cancel, ok := d.cancels[id]
	d.mu.Unlock()
	if !ok {
		return ErrNoRunningJob
	}

	cancel()
	d.logger.Info("job cancellation requested", "job", id)
	return nil
}

// Resume re-dispatches non-terminal jobs recovered from disk at startup.
// Jobs whose input files vanished with the previous process are marked
// failed instead of being left stuck.
func (d *Dispatcher) Resume() {
	for _, job := range d.store.List() {
		if job.Status.Terminal() {
			continue
		}

		if !fileExists(job.InputAPath) || !fileExists(job.InputBPath) {
			if err := d.store.MarkFailed(job.ID, "input files missing after restart"); err != nil {
				d.logger.Error("cannot fail unresumable job", "job", job.ID, "error", err)
			}
			continue
		}

		// The pipeline restarts from the beginning, so the record is
		// reset to queued before any poller can observe it.
		job.Status = domain.JobStatusQueued
		job.Progress = 0
		job.Result = nil
		job.Error = ""
		if err := d.store.Put(job); err != nil {
			d.logger.Error("cannot requeue recovered job", "job", job.ID, "error", err)
			continue
		}

		d.logger.Info("resuming recovered job", "job", job.ID)
		d.launch(job.ID)
	}
}

// Shutdown waits for in-flight pipelines to drain. When the context ends
// first, remaining pipelines are cancelled and awaited.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		d.baseCancel()
		<-done
	}
	d.baseCancel()
}

// launch starts one pipeline on a bounded worker slot.
func (d *Dispatcher) launch(jobID string) {
	ctx, cancel := context.WithCancel(d.baseCtx)

	d.mu.Lock()
	d.cancels[jobID] = cancel
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			cancel()
			d.mu.Lock()
			delete(d.cancels, jobID)
			d.mu.Unlock()
		}()

		if err := d.sem.Acquire(ctx, 1); err != nil {
			if d.baseCtx.Err() != nil {
				// Shutdown before the job ever started; the queued record
				// stays durable for the next startup resume.
				d.logger.Warn("job never acquired a worker slot", "job", jobID, "error", err)
				return
			}
			// Cancelled while waiting for a slot: the job must still reach
			// a terminal state.
			if err := d.store.MarkFailed(jobID, "job cancelled"); err != nil {
				d.logger.Error("cannot fail cancelled job", "job", jobID, "error", err)
			}
			return
		}
		defer d.sem.Release(1)

		d.engine.Run(ctx, jobID)
	}()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
