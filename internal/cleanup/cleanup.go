// Package cleanup reclaims disk and memory held by terminal jobs past
// their retention period.
package cleanup

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/ytgrab/ytgrab/internal/config"
	"github.com/ytgrab/ytgrab/internal/logger"
	"github.com/ytgrab/ytgrab/internal/ratelimit"
	"github.com/ytgrab/ytgrab/internal/registry"
	"github.com/ytgrab/ytgrab/internal/storage"
)

// Purger drops archived history rows older than a cutoff. *store.DB
// satisfies it.
type Purger interface {
	PurgeOlderThan(cutoff time.Time) (int64, error)
}

type Scheduler struct {
	reg     *registry.Registry
	purger  Purger
	limiter *ratelimit.Limiter
	cfg     *config.Config
	logger  *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now func() time.Time
}

func New(reg *registry.Registry, purger Purger, limiter *ratelimit.Limiter, cfg *config.Config, log *logger.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	if log == nil {
		log = logger.Default()
	}

	return &Scheduler{
		reg:     reg,
		purger:  purger,
		limiter: limiter,
		cfg:     cfg,
		logger:  log.WithComponent("cleanup"),
		ctx:     ctx,
		cancel:  cancel,
		now:     time.Now,
	}
}

func (s *Scheduler) Start() {
	s.logger.Info("Starting cleanup scheduler", "interval", s.cfg.CleanupInterval, "retention", s.cfg.Retention)
	s.wg.Add(1)
	go s.loop()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			removed := s.Sweep(s.cfg.Retention)
			if removed > 0 {
				s.logger.Info("Cleanup sweep finished", "removed", removed)
			}
		}
	}
}

// Sweep removes terminal jobs that finished more than olderThan ago,
// together with their artifacts, and returns how many jobs were removed.
// Queued and running jobs are never touched.
func (s *Scheduler) Sweep(olderThan time.Duration) int {
	cutoff := s.now().Add(-olderThan)

	removed := 0
	for _, job := range s.reg.ExpiredTerminal(cutoff) {
		if job.Result != nil && job.Result.FilePath != "" {
			if err := storage.RemoveFile(job.Result.FilePath); err != nil {
				s.logger.Warn("Failed to remove artifact", "job_id", job.ID, "error", err)
			}
		}
		if err := storage.RemoveDir(filepath.Join(s.cfg.DownloadsDir, job.ID)); err != nil {
			s.logger.Warn("Failed to remove job directory", "job_id", job.ID, "error", err)
		}
		s.reg.Remove(job.ID)
		removed++
	}

	if s.purger != nil {
		if _, err := s.purger.PurgeOlderThan(cutoff); err != nil {
			s.logger.Warn("Failed to purge history", "error", err)
		}
	}
	if s.limiter != nil {
		s.limiter.EvictStale()
	}

	return removed
}
