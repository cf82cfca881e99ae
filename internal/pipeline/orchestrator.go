package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrShuttingDown is returned by Submit after Stop.
var ErrShuttingDown = errors.New("orchestrator is shutting down")

// Orchestrator runs uploaded PDFs through a Runner in the background.
type Orchestrator struct {
	jobs    *JobStore
	queue   chan *Job
	runner  *Runner
	log     *slog.Logger
	workers int

	cleanupEvery time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// NewOrchestrator creates the job queue. Call Start to launch workers.
func NewOrchestrator(runner *Runner, queueSize, workers int, jobTTL time.Duration, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		jobs:         NewJobStore(jobTTL),
		queue:        make(chan *Job, max(queueSize, 1)),
		runner:       runner,
		log:          log,
		workers:      max(workers, 1),
		cleanupEvery: 5 * time.Minute,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.workers {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					o.process(workerCtx, job)
				}
			}
		}()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(o.cleanupEvery)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				if n := o.jobs.Cleanup(); n > 0 {
					o.log.Info("expired jobs removed", "count", n)
				}
			}
		}
	}()
}

func (o *Orchestrator) process(ctx context.Context, job *Job) {
	log := o.log.With("job_id", job.ID, "filename", job.Filename)

	// Rasterizers read from disk and the output stem is the file name.
	dir, err := os.MkdirTemp("", "cpextract-job-")
	if err != nil {
		o.fail(job, log, fmt.Errorf("create job dir: %w", err))
		return
	}
	defer os.RemoveAll(dir)
	pdfPath := filepath.Join(dir, job.Filename)
	if err := os.WriteFile(pdfPath, job.FileData(), 0o600); err != nil {
		o.fail(job, log, fmt.Errorf("write upload: %w", err))
		return
	}
	job.ReleaseFileData()

	progress := func(stage string, page, total int) {
		switch stage {
		case StageRendering:
			job.SetStatus(StatusRendering, stage)
		case StageRecognizing:
			job.SetStatus(StatusRecognizing, stage)
			job.SetPages(page, total)
		default:
			job.SetStatus(StatusSplitting, stage)
		}
	}

	res, err := o.runner.process(ctx, pdfPath, progress)
	res.Source = job.Filename
	job.SetResult(res)
	if err != nil {
		o.fail(job, log, err)
		return
	}
	log.Info("job completed", "problems", len(res.Problems), "issues", len(res.Issues))
	job.SetStatus(StatusCompleted, "done")
}

func (o *Orchestrator) fail(job *Job, log *slog.Logger, err error) {
	log.Error("job failed", "error", err)
	job.AddError(err.Error())
	job.SetStatus(StatusFailed, "failed")
}

// Stop cancels running jobs and waits for workers to exit. Later calls are
// no-ops.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	close(o.queue)
	o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
}

// Submit queues a new job for processing. It fails once Stop has been called.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		job.SetStatus(StatusFailed, "shutting_down")
		return ErrShuttingDown
	}
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("job queue is full (%d)", cap(o.queue))
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}
