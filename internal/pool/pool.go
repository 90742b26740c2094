// Package pool runs admitted jobs. It owns the concurrency cap, the FIFO
// dispatch order, per-job cancellation, and the retry policy around the
// fetch engine.
package pool

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/ytgrab/ytgrab/internal/config"
	"github.com/ytgrab/ytgrab/internal/constants"
	"github.com/ytgrab/ytgrab/internal/domain"
	"github.com/ytgrab/ytgrab/internal/engine"
	"github.com/ytgrab/ytgrab/internal/logger"
	"github.com/ytgrab/ytgrab/internal/progress"
	"github.com/ytgrab/ytgrab/internal/registry"
	"github.com/ytgrab/ytgrab/internal/storage"
	"github.com/ytgrab/ytgrab/internal/tagging"
)

// Archiver records terminal jobs for the history endpoint. *store.DB
// satisfies it; tests run without one.
type Archiver interface {
	Archive(job *domain.Job) error
}

type Pool struct {
	reg      *registry.Registry
	eng      engine.Engine
	archiver Archiver
	cfg      *config.Config
	logger   *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	sem  chan struct{}
	kick chan struct{}

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func New(reg *registry.Registry, eng engine.Engine, archiver Archiver, cfg *config.Config, log *logger.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	if log == nil {
		log = logger.Default()
	}

	return &Pool{
		reg:      reg,
		eng:      eng,
		archiver: archiver,
		cfg:      cfg,
		logger:   log.WithComponent("pool"),
		ctx:      ctx,
		cancel:   cancel,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		kick:     make(chan struct{}, 1),
		cancels:  make(map[string]context.CancelFunc),
	}
}

func (p *Pool) Start() {
	p.logger.Info("Starting pool", "max_concurrent", p.cfg.MaxConcurrent)
	p.wg.Add(1)
	go p.dispatchLoop()
}

func (p *Pool) Stop() {
	p.logger.Info("Stopping pool")
	p.cancel()
	p.wg.Wait()
}

// Submit nudges the dispatcher so a freshly admitted job does not wait for
// the next poll tick. Never blocks.
func (p *Pool) Submit(id string) {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Cancel requests cancellation of a job. Terminal jobs are a no-op; queued
// jobs cancel immediately; running jobs are signalled and settle within the
// grace period. Idempotent.
func (p *Pool) Cancel(id string) error {
	if cancel := p.lookupCancel(id); cancel != nil {
		cancel()
		return nil
	}

	err := p.reg.Transition(id, domain.JobStateCancelled, &domain.Result{
		ErrorKind: domain.ErrorKindCancelled,
		Message:   "cancelled before start",
	})
	if err == nil {
		p.logger.Info("Cancelled queued job", "job_id", id)
		p.archive(id)
		return nil
	}
	if errors.Is(err, registry.ErrNotFound) {
		return err
	}
	if errors.Is(err, registry.ErrIllegalTransition) {
		// The job either started between the lookup and the transition,
		// or is already terminal. Both resolve to a no-op or a signal.
		if cancel := p.lookupCancel(id); cancel != nil {
			cancel()
		}
		return nil
	}
	return err
}

func (p *Pool) lookupCancel(id string) context.CancelFunc {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancels[id]
}

func (p *Pool) registerCancel(id string, cancel context.CancelFunc) {
	p.mu.Lock()
	p.cancels[id] = cancel
	p.mu.Unlock()
}

func (p *Pool) unregisterCancel(id string) {
	p.mu.Lock()
	delete(p.cancels, id)
	p.mu.Unlock()
}

func (p *Pool) dispatchLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(constants.DefaultPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.dispatch()
		case <-p.kick:
			p.dispatch()
		}
	}
}

// dispatch starts queued jobs in admission order while capacity remains.
func (p *Pool) dispatch() {
	for _, id := range p.reg.QueuedIDs() {
		select {
		case p.sem <- struct{}{}:
		default:
			return
		}

		jobCtx, jobCancel := context.WithCancel(p.ctx)

		// Register before the transition so a concurrent Cancel always
		// finds either a queued job or a live cancel func.
		p.registerCancel(id, jobCancel)

		if err := p.reg.Transition(id, domain.JobStateRunning, nil); err != nil {
			// Cancelled while queued.
			p.unregisterCancel(id)
			jobCancel()
			<-p.sem
			continue
		}

		p.wg.Add(1)
		go func(id string) {
			defer p.wg.Done()
			defer func() { <-p.sem }()
			defer p.unregisterCancel(id)
			defer jobCancel()
			p.runJob(jobCtx, id)
		}(id)
	}
}

func (p *Pool) runJob(ctx context.Context, id string) {
	log := p.logger.WithJob(id)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic in job", "panic", r)
			_ = p.reg.Transition(id, domain.JobStateFailed, &domain.Result{
				ErrorKind: domain.ErrorKindEngineFailure,
				Message:   fmt.Sprintf("panic: %v", r),
			})
			p.archive(id)
		}
	}()

	job, err := p.reg.Get(id)
	if err != nil {
		log.Error("Job vanished before run", "error", err)
		return
	}

	log.Info("Running job", "url", job.Request.URL, "format", job.Request.FormatType)

	destDir := filepath.Join(p.cfg.DownloadsDir, id)
	if err := storage.EnsureDir(destDir); err != nil {
		p.finish(id, domain.JobStateFailed, &domain.Result{
			ErrorKind: domain.ErrorKindStorageFailure,
			Message:   fmt.Sprintf("failed to create job directory: %v", err),
		})
		return
	}

	reporter := progress.NewReporter(p.reg, id)

	result, fetchErr := p.fetchWithRetry(ctx, job, destDir, reporter)
	reporter.Close()

	if fetchErr != nil {
		kind := engine.Classify(fetchErr)
		if ctx.Err() != nil || kind == domain.ErrorKindCancelled {
			log.Info("Job cancelled")
			p.finish(id, domain.JobStateCancelled, &domain.Result{
				ErrorKind: domain.ErrorKindCancelled,
				Message:   "cancelled",
			})
		} else {
			log.Error("Job failed", "kind", kind, "error", fetchErr)
			p.finish(id, domain.JobStateFailed, &domain.Result{
				ErrorKind: kind,
				Message:   fetchErr.Error(),
			})
		}
		if err := storage.RemoveDir(destDir); err != nil {
			log.Warn("Failed to remove job directory", "error", err)
		}
		return
	}

	if job.Request.FormatType == constants.FormatMP3 {
		meta := tagging.Metadata{
			Title:   titleFromPath(result.FilePath),
			Comment: job.Request.URL,
		}
		if result.Title != "" {
			meta.Title = result.Title
		}
		meta.Uploader = result.Uploader
		if err := tagging.TagFile(result.FilePath, meta); err != nil {
			log.Warn("Failed to tag file", "error", err)
		}
	}

	log.Info("Job completed", "file_path", result.FilePath, "file_size", result.FileSize)
	p.finish(id, domain.JobStateCompleted, &domain.Result{
		FilePath: result.FilePath,
		FileSize: result.FileSize,
	})
}

// fetchWithRetry drives the engine, retrying transient failures with an
// exponentially growing backoff.
func (p *Pool) fetchWithRetry(ctx context.Context, job *domain.Job, destDir string, reporter *progress.Reporter) (*engine.FetchResult, error) {
	req := engine.FetchRequest{
		URL:            job.Request.URL,
		Quality:        job.Request.Quality,
		FormatType:     job.Request.FormatType,
		Cookies:        job.Request.Cookies,
		CustomFilename: job.Request.CustomFilename,
		DestDir:        destDir,
		MaxFileSize:    p.cfg.MaxFileSize,
		OnProgress:     reporter.Report,
	}

	var result *engine.FetchResult
	var err error

	for attempt := 0; attempt < constants.DefaultRetryCount; attempt++ {
		result, err = p.fetchWithGrace(ctx, req)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil || !engine.Classify(err).Retryable() {
			return nil, err
		}
		if attempt == constants.DefaultRetryCount-1 {
			break
		}

		backoff := constants.DefaultRetryBase << attempt
		p.logger.WithJob(job.ID).Warn("Retrying fetch", "attempt", attempt+1, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(backoff):
		}
	}
	return nil, err
}

// fetchWithGrace runs one engine invocation. On cancellation the engine gets
// the grace period to wind down before the job settles regardless.
func (p *Pool) fetchWithGrace(ctx context.Context, req engine.FetchRequest) (*engine.FetchResult, error) {
	type outcome struct {
		result *engine.FetchResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := p.eng.Fetch(ctx, req)
		done <- outcome{result, err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		select {
		case out := <-done:
			return out.result, out.err
		case <-time.After(p.cfg.CancelGrace):
			return nil, &engine.Error{Kind: domain.ErrorKindCancelled, Message: "engine did not stop within the grace period"}
		}
	}
}

// finish performs the terminal transition and archives the outcome.
func (p *Pool) finish(id string, state domain.JobState, result *domain.Result) {
	if err := p.reg.Transition(id, state, result); err != nil {
		p.logger.WithJob(id).Error("Failed terminal transition", "state", state, "error", err)
		return
	}
	p.archive(id)
}

func (p *Pool) archive(id string) {
	if p.archiver == nil {
		return
	}
	job, err := p.reg.Get(id)
	if err != nil {
		return
	}
	if err := p.archiver.Archive(job); err != nil {
		p.logger.WithJob(id).Warn("Failed to archive job", "error", err)
	}
}

func titleFromPath(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)]
}
