package main

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/turtacn/Regolith-Intelligence/internal/application/extraction"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/database/redis"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
	"github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

// ErrBatchRunning is returned when a trigger fires while another batch holds
// the lock, in this process or another worker.
var ErrBatchRunning = errors.New(errors.ErrCodeConflict, "a batch is already running")

// ErrShuttingDown is returned by triggers that fire after Shutdown.
var ErrShuttingDown = errors.New(errors.ErrCodeServiceUnavailable, "worker is shutting down")

// Pipeline runs one batch over a document source.
type Pipeline interface {
	Run(ctx context.Context, src extraction.DocumentSource, req extraction.RunRequest) (*extraction.Report, error)
}

// RunnerConfig holds the defaults applied to triggers that leave them empty.
type RunnerConfig struct {
	Source  string
	DocsDir string
}

// Runner serializes batch runs started by the schedule, the document
// watcher and batch.requested events.
type Runner struct {
	cfg       RunnerConfig
	pipeline  func(ctx context.Context) (Pipeline, error)
	documents func(kind, dir string) (extraction.DocumentSource, error)
	lock      redis.DistributedLock
	logger    logging.Logger

	mu      sync.Mutex
	closing atomic.Bool
}

// NewRunner builds a Runner.  A fresh pipeline is built per run so catalog
// changes are picked up.  lock may be nil for a single worker.
func NewRunner(
	cfg RunnerConfig,
	pipeline func(ctx context.Context) (Pipeline, error),
	documents func(kind, dir string) (extraction.DocumentSource, error),
	lock redis.DistributedLock,
	logger logging.Logger,
) *Runner {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Runner{cfg: cfg, pipeline: pipeline, documents: documents, lock: lock, logger: logger}
}

// Trigger runs one batch unless one is already running, in which case it
// returns ErrBatchRunning.
func (r *Runner) Trigger(ctx context.Context, trigger string, req simulant.BatchRequested) (*extraction.Report, error) {
	log := r.logger.With(logging.String("trigger", trigger))

	mode, err := extraction.ParseMode(req.Mode)
	if err != nil {
		return nil, err
	}
	if mode == extraction.ModeInteractive {
		return nil, errors.New(errors.ErrCodeBadRequest, "interactive mode needs a terminal; use the regolith CLI")
	}

	if !r.mu.TryLock() {
		log.Info("batch skipped, another run is in progress")
		return nil, ErrBatchRunning
	}
	defer r.mu.Unlock()
	if r.closing.Load() {
		return nil, ErrShuttingDown
	}

	if r.lock != nil {
		ok, err := r.lock.TryLock(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			log.Info("batch skipped, another worker holds the lock")
			return nil, ErrBatchRunning
		}
		defer func() {
			if err := r.lock.Unlock(context.Background()); err != nil {
				log.Warn("release batch lock", logging.Err(err))
			}
		}()
	}

	source := req.Source
	if source == "" {
		source = r.cfg.Source
	}
	dir := r.cfg.DocsDir
	if req.Prefix != "" && source != "minio" {
		dir = req.Prefix
	}
	src, err := r.documents(source, dir)
	if err != nil {
		return nil, err
	}
	p, err := r.pipeline(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	log.Info("batch started", logging.String("source", source), logging.String("dir", dir), logging.String("run_id", req.RunID))
	report, err := p.Run(ctx, src, extraction.RunRequest{
		RunID:    req.RunID,
		Simulant: req.Simulant,
		Mode:     mode,
		DryRun:   req.DryRun,
	})
	if err != nil {
		log.Error("batch failed", logging.Err(err), logging.Duration("elapsed", time.Since(start)))
		return report, err
	}
	log.Info("batch finished", report.Fields()...)
	return report, nil
}

// Shutdown refuses new triggers and waits for the running batch, if any,
// until ctx is done.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.closing.Store(true)
	done := make(chan struct{})
	go func() {
		r.mu.Lock()
		r.mu.Unlock()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
